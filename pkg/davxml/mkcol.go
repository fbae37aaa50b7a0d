package davxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/r9s-ai/cardq/pkg/cardreport"
)

// Mkcol is a decoded extended MKCOL body (RFC 5689).
type Mkcol struct {
	AddressBook bool
	DisplayName string
	Description string
}

type xmlMkcol struct {
	XMLName xml.Name `xml:"DAV: mkcol"`
	Set     []struct {
		Prop struct {
			ResourceType *struct {
				Any []struct {
					XMLName xml.Name
				} `xml:",any"`
			} `xml:"DAV: resourcetype"`
			DisplayName *string `xml:"DAV: displayname"`
			Description *string `xml:"urn:ietf:params:xml:ns:carddav addressbook-description"`
		} `xml:"DAV: prop"`
	} `xml:"DAV: set"`
}

// DecodeMkcol reads an extended MKCOL body.
func DecodeMkcol(r io.Reader) (*Mkcol, error) {
	var x xmlMkcol
	if err := xml.NewDecoder(r).Decode(&x); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	out := &Mkcol{}
	for _, set := range x.Set {
		if rt := set.Prop.ResourceType; rt != nil {
			for _, el := range rt.Any {
				if el.XMLName.Space == cardreport.NSCardDAV && el.XMLName.Local == "addressbook" {
					out.AddressBook = true
				}
			}
		}
		if set.Prop.DisplayName != nil {
			out.DisplayName = strings.TrimSpace(*set.Prop.DisplayName)
		}
		if set.Prop.Description != nil {
			out.Description = strings.TrimSpace(*set.Prop.Description)
		}
	}
	return out, nil
}
