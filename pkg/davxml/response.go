package davxml

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/r9s-ai/cardq/pkg/cardreport"
)

// NSCardq qualifies cardq specific error elements.
const NSCardq = "urn:r9s-ai:cardq"

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

var prefixes = map[string]string{
	cardreport.NSDAV:            "d",
	cardreport.NSCardDAV:        "card",
	cardreport.NSCalendarServer: "cs",
}

// Error conditions.
var (
	SupportedReport = cardreport.PropName{Space: cardreport.NSDAV, Local: "supported-report"}
	// SupportedAddressData is the precondition for rejected card payloads.
	SupportedAddressData = cardreport.PropName{Space: cardreport.NSCardDAV, Local: "supported-address-data"}
	ValidAddressData     = cardreport.PropName{Space: cardreport.NSCardDAV, Local: "valid-address-data"}
	MaxResourceSize      = cardreport.PropName{Space: cardreport.NSCardDAV, Local: "max-resource-size"}
	ValidResourceType    = cardreport.PropName{Space: cardreport.NSDAV, Local: "valid-resourcetype"}
)

// CR is escaped so CRLF line endings of card data survive XML line-end
// normalization.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#13;")

// EscapeText escapes s for use as XML character data.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

func statusLine(code int) string {
	return "HTTP/1.1 " + strconv.Itoa(code) + " " + http.StatusText(code)
}

// EncodeMultiStatus renders ms. href maps store paths to response hrefs.
// With minimal set, 404 propstat blocks are left out.
func EncodeMultiStatus(ms *cardreport.MultiStatus, href func(string) string, minimal bool) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<d:multistatus xmlns:d="DAV:" xmlns:card="` + cardreport.NSCardDAV + `" xmlns:cs="` + cardreport.NSCalendarServer + `">`)
	b.WriteByte('\n')
	for _, r := range ms.Responses {
		b.WriteString("<d:response><d:href>")
		h := r.Path
		if href != nil {
			h = href(r.Path)
		}
		b.WriteString(EscapeText(h))
		b.WriteString("</d:href>")
		if r.Status != 0 {
			b.WriteString("<d:status>" + statusLine(r.Status) + "</d:status></d:response>\n")
			continue
		}
		showMissing := len(r.NotFound) > 0 && !minimal
		if len(r.Found) > 0 || !showMissing {
			b.WriteString("<d:propstat><d:prop>")
			for _, p := range r.Found {
				writeProperty(&b, p)
			}
			b.WriteString("</d:prop><d:status>" + statusLine(http.StatusOK) + "</d:status></d:propstat>")
		}
		if showMissing {
			b.WriteString("<d:propstat><d:prop>")
			for _, n := range r.NotFound {
				writeProperty(&b, cardreport.Property{Name: n})
			}
			b.WriteString("</d:prop><d:status>" + statusLine(http.StatusNotFound) + "</d:status></d:propstat>")
		}
		b.WriteString("</d:response>\n")
	}
	b.WriteString("</d:multistatus>\n")
	return b.Bytes()
}

func writeProperty(b *bytes.Buffer, p cardreport.Property) {
	open, close := elementTags(p.Name)
	if p.InnerXML == "" && p.Text == "" {
		b.WriteString(strings.TrimSuffix(open, ">") + "/>")
		return
	}
	b.WriteString(open)
	if p.InnerXML != "" {
		b.WriteString(p.InnerXML)
	} else {
		b.WriteString(EscapeText(p.Text))
	}
	b.WriteString(close)
}

// elementTags returns the start and end tags for name. Unknown namespaces
// are declared on the element itself.
func elementTags(name cardreport.PropName) (string, string) {
	if prefix, ok := prefixes[name.Space]; ok {
		return "<" + prefix + ":" + name.Local + ">", "</" + prefix + ":" + name.Local + ">"
	}
	if name.Space == "" {
		return "<" + name.Local + ` xmlns="">`, "</" + name.Local + ">"
	}
	return "<x:" + name.Local + ` xmlns:x="` + attr(name.Space) + `">`, "</x:" + name.Local + ">"
}

// EncodeError renders a DAV error body with a precondition element and an
// optional message.
func EncodeError(condition cardreport.PropName, message string) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<d:error xmlns:d="DAV:" xmlns:card="` + cardreport.NSCardDAV + `" xmlns:cq="` + NSCardq + `">`)
	if condition.Local != "" {
		writeProperty(&b, cardreport.Property{Name: condition})
	}
	if message != "" {
		b.WriteString("<cq:message>" + EscapeText(message) + "</cq:message>")
	}
	b.WriteString("</d:error>\n")
	return b.Bytes()
}
