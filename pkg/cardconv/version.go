package cardconv

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/r9s-ai/cardq/pkg/vcard"
)

const appleOmitYear = "1604"

var binaryProps = map[string]bool{"PHOTO": true, "LOGO": true, "SOUND": true, "KEY": true}

// dropped from vCard 4.0 output; these properties do not exist there.
var v4Removed = map[string]bool{"NAME": true, "MAILER": true, "LABEL": true, "CLASS": true}

// ConvertCard returns a copy of card converted to the target version. VERSION
// and PRODID are replaced; every other property is mapped one by one.
func (cv *Converter) ConvertCard(card *vcard.Card, target vcard.DocType) *vcard.Card {
	out := vcard.New(target)
	out.AddValue("PRODID", cv.ProductID)
	for _, p := range card.Props {
		if p.Name == "VERSION" || p.Name == "PRODID" {
			continue
		}
		if target == vcard.DocVCard40 {
			convertPropertyTo4(out, p.Clone())
		} else {
			convertPropertyTo3(out, p.Clone())
		}
	}
	return out
}

func convertPropertyTo4(out *vcard.Card, p *vcard.Property) {
	if v4Removed[p.Name] {
		return
	}
	p.DelParam("CHARSET")
	if strings.EqualFold(p.ParamValue("VALUE"), "phone-number") {
		p.DelParam("VALUE")
	}
	if binaryProps[p.Name] && p.ValueKind() == vcard.ValueBinary {
		binaryToURI(p)
		out.Add(p)
		return
	}
	p.DelParam("ENCODING")
	if p.HasType("PREF") {
		removeType(p, "PREF")
		p.SetParam("PREF", "1")
	}

	switch p.Name {
	case "BDAY", "ANNIVERSARY":
		if omit := p.ParamValue("X-APPLE-OMIT-YEAR"); omit != "" {
			if y, m, d := vcard.DateParts(p.Raw); y == omit {
				p.Raw = "--" + m + d
			}
			p.DelParam("X-APPLE-OMIT-YEAR")
		}
	case "X-ANNIVERSARY":
		p.Name = "ANNIVERSARY"
	case "X-ADDRESSBOOKSERVER-KIND":
		p.Name = "KIND"
		p.Raw = strings.ToLower(p.Raw)
	case "X-ADDRESSBOOKSERVER-MEMBER":
		p.Name = "MEMBER"
	case "X-ABSHOWAS":
		if strings.EqualFold(p.Value(), "COMPANY") {
			k := vcard.NewProperty("KIND", "org")
			k.Group = p.Group
			p = k
		}
	}
	out.Add(p)
}

func convertPropertyTo3(out *vcard.Card, p *vcard.Property) {
	if prm, ok := p.Param("PREF"); ok {
		if prm.Value() == "1" {
			p.AddParamValue("TYPE", "PREF")
		}
		p.DelParam("PREF")
	}
	if binaryProps[p.Name] && strings.HasPrefix(strings.ToLower(p.Raw), "data:") {
		if uriToBinary(p) {
			out.Add(p)
			return
		}
	}
	if binaryProps[p.Name] && p.ValueKind() == vcard.ValueURI && !p.HasParam("VALUE") {
		p.SetParam("VALUE", "uri")
	}

	switch p.Name {
	case "BDAY", "ANNIVERSARY":
		if y, m, d := vcard.DateParts(p.Raw); y == "" && m != "" && d != "" {
			p.Raw = appleOmitYear + "-" + m + "-" + d
			p.SetParam("X-APPLE-OMIT-YEAR", appleOmitYear)
		}
		if p.Name == "ANNIVERSARY" {
			addAppleAnniversary(out, p)
			return
		}
	case "KIND":
		switch strings.ToLower(p.Value()) {
		case "org":
			x := vcard.NewProperty("X-ABSHOWAS", "COMPANY")
			x.Group = p.Group
			p = x
		case "individual":
			return
		case "group":
			p.Name = "X-ADDRESSBOOKSERVER-KIND"
			p.Raw = "GROUP"
		}
	case "MEMBER":
		p.Name = "X-ADDRESSBOOKSERVER-MEMBER"
	}
	out.Add(p)
}

// addAppleAnniversary writes ANNIVERSARY as X-ANNIVERSARY plus a labelled
// X-ABDATE in a fresh item group.
func addAppleAnniversary(out *vcard.Card, p *vcard.Property) {
	x := p.Clone()
	x.Name = "X-ANNIVERSARY"
	out.Add(x)

	group := ""
	for i := 1; ; i++ {
		group = fmt.Sprintf("ITEM%d", i)
		if len(out.Select(group+".")) == 0 {
			break
		}
	}
	abDate := p.Clone()
	abDate.Name = "X-ABDATE"
	abDate.Group = group
	label := vcard.NewProperty("X-ABLABEL", "_$!<Anniversary>!$_")
	label.Group = group
	out.Add(abDate, label)
}

func binaryToURI(p *vcard.Property) {
	mimeType := "application/octet-stream"
	if prm, ok := p.Param("TYPE"); ok {
		var keep []string
		for _, v := range prm.Values {
			for _, t := range strings.Split(v, ",") {
				switch strings.ToUpper(t) {
				case "JPEG", "PNG", "GIF":
					mimeType = "image/" + strings.ToLower(t)
				default:
					keep = append(keep, t)
				}
			}
		}
		if len(keep) > 0 {
			p.SetParam("TYPE", keep...)
		} else {
			p.DelParam("TYPE")
		}
	}
	p.DelParam("ENCODING")
	p.DelParam("VALUE")
	payload := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, p.Raw)
	p.Raw = "data:" + mimeType + ";base64," + payload
}

// uriToBinary rewrites a base64 data URI as ENCODING=b with an upper-case
// TYPE. It returns false for data URIs it cannot decode.
func uriToBinary(p *vcard.Property) bool {
	head, payload, ok := strings.Cut(p.Raw[len("data:"):], ",")
	if !ok || !strings.HasSuffix(strings.ToLower(head), ";base64") {
		return false
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return false
	}
	mimeType := strings.TrimSuffix(strings.ToLower(head), ";base64")
	p.DelParam("VALUE")
	p.SetParam("ENCODING", "b")
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" && sub != "octet-stream" {
		p.SetParam("TYPE", strings.ToUpper(sub))
	}
	p.Raw = payload
	return true
}

func removeType(p *vcard.Property, t string) {
	prm, ok := p.Param("TYPE")
	if !ok {
		return
	}
	var keep []string
	for _, v := range prm.Values {
		for _, part := range strings.Split(v, ",") {
			if !strings.EqualFold(part, t) {
				keep = append(keep, part)
			}
		}
	}
	if len(keep) == 0 {
		p.DelParam("TYPE")
		return
	}
	p.SetParam("TYPE", keep...)
}
