package davxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/r9s-ai/cardq/pkg/cardfilter"
	"github.com/r9s-ai/cardq/pkg/cardreport"
)

// EncodeQuery renders an addressbook-query body. Path and Depth travel in
// the request line and headers and are ignored here.
func EncodeQuery(req cardreport.QueryRequest) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<card:addressbook-query xmlns:d="DAV:" xmlns:card="` + cardreport.NSCardDAV + `">`)
	writePropRequest(&b, req.Properties, req.ContentType, req.Version, req.AddressDataProps)
	b.WriteString(`<card:filter test="` + req.Filter.Test.String() + `">`)
	for _, pf := range req.Filter.Filters {
		b.WriteString(`<card:prop-filter name="` + attr(pf.Name) + `" test="` + pf.Test.String() + `">`)
		if pf.IsNotDefined {
			b.WriteString("<card:is-not-defined/>")
		}
		for _, prm := range pf.ParamFilters {
			b.WriteString(`<card:param-filter name="` + attr(prm.Name) + `">`)
			if prm.IsNotDefined {
				b.WriteString("<card:is-not-defined/>")
			}
			if prm.TextMatch != nil {
				writeTextMatch(&b, *prm.TextMatch)
			}
			b.WriteString("</card:param-filter>")
		}
		for _, tm := range pf.TextMatches {
			writeTextMatch(&b, tm)
		}
		b.WriteString("</card:prop-filter>")
	}
	b.WriteString("</card:filter>")
	if req.Limit > 0 {
		b.WriteString("<card:limit><card:nresults>" + strconv.Itoa(req.Limit) + "</card:nresults></card:limit>")
	}
	b.WriteString("</card:addressbook-query>\n")
	return b.Bytes()
}

// EncodeMultiget renders an addressbook-multiget body for hrefs.
func EncodeMultiget(hrefs []string, props []cardreport.PropName, contentType, version string) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<card:addressbook-multiget xmlns:d="DAV:" xmlns:card="` + cardreport.NSCardDAV + `">`)
	writePropRequest(&b, props, contentType, version, nil)
	for _, h := range hrefs {
		b.WriteString("<d:href>" + EscapeText(h) + "</d:href>")
	}
	b.WriteString("</card:addressbook-multiget>\n")
	return b.Bytes()
}

func writePropRequest(b *bytes.Buffer, props []cardreport.PropName, contentType, version string, allow []string) {
	if len(props) == 0 {
		return
	}
	b.WriteString("<d:prop>")
	for _, n := range props {
		if n != cardreport.AddressData {
			writeProperty(b, cardreport.Property{Name: n})
			continue
		}
		b.WriteString("<card:address-data")
		if contentType != "" {
			b.WriteString(` content-type="` + attr(contentType) + `"`)
		}
		if version != "" {
			b.WriteString(` version="` + attr(version) + `"`)
		}
		if len(allow) == 0 {
			b.WriteString("/>")
			continue
		}
		b.WriteString(">")
		for _, a := range allow {
			b.WriteString(`<card:prop name="` + attr(a) + `"/>`)
		}
		b.WriteString("</card:address-data>")
	}
	b.WriteString("</d:prop>")
}

func writeTextMatch(b *bytes.Buffer, tm cardfilter.TextMatch) {
	collation := tm.Collation
	if collation == "" {
		collation = cardfilter.DefaultCollation
	}
	negate := "no"
	if tm.Negate {
		negate = "yes"
	}
	b.WriteString(`<card:text-match collation="` + attr(collation) + `" match-type="` + tm.MatchType.String() + `" negate-condition="` + negate + `">`)
	b.WriteString(EscapeText(tm.Value))
	b.WriteString("</card:text-match>")
}

var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func attr(s string) string {
	return attrEscaper.Replace(s)
}

type xmlAnyProp struct {
	XMLName xml.Name
	Inner   string `xml:",innerxml"`
	Text    string `xml:",chardata"`
}

type xmlPropStat struct {
	Prop   xmlPropList `xml:"DAV: prop"`
	Status string      `xml:"DAV: status"`
}

type xmlPropList struct {
	Any []xmlAnyProp `xml:",any"`
}

type xmlResponse struct {
	Href      string        `xml:"DAV: href"`
	Status    string        `xml:"DAV: status"`
	PropStats []xmlPropStat `xml:"DAV: propstat"`
}

type xmlMultiStatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []xmlResponse `xml:"DAV: response"`
}

// DecodeMultiStatus parses a multistatus body. Response paths hold the
// hrefs as sent by the server. Properties with element content are
// returned in InnerXML, others in Text.
func DecodeMultiStatus(r io.Reader) ([]cardreport.Response, error) {
	var ms xmlMultiStatus
	if err := xml.NewDecoder(r).Decode(&ms); err != nil {
		return nil, fmt.Errorf("decode multistatus: %w", err)
	}
	out := make([]cardreport.Response, 0, len(ms.Responses))
	for _, xr := range ms.Responses {
		resp := cardreport.Response{Path: strings.TrimSpace(xr.Href)}
		if xr.Status != "" {
			resp.Status = parseStatus(xr.Status)
		}
		for _, ps := range xr.PropStats {
			code := parseStatus(ps.Status)
			for _, p := range ps.Prop.Any {
				name := cardreport.PropName{Space: p.XMLName.Space, Local: p.XMLName.Local}
				if code != 200 {
					resp.NotFound = append(resp.NotFound, name)
					continue
				}
				prop := cardreport.Property{Name: name}
				if strings.Contains(p.Inner, "<") {
					prop.InnerXML = p.Inner
				} else {
					prop.Text = p.Text
				}
				resp.Found = append(resp.Found, prop)
			}
		}
		out = append(out, resp)
	}
	return out, nil
}

// parseStatus extracts the code from "HTTP/1.1 200 OK".
func parseStatus(s string) int {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}
