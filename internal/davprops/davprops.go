// Package davprops computes the WebDAV and CardDAV properties of stored
// resources. The same values back REPORT responses and PROPFIND.
package davprops

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/r9s-ai/cardq/internal/store"
	"github.com/r9s-ai/cardq/pkg/cardconv"
	"github.com/r9s-ai/cardq/pkg/cardfilter"
	"github.com/r9s-ai/cardq/pkg/cardreport"
)

// Property names.
var (
	ResourceType           = dav("resourcetype")
	DisplayName            = dav("displayname")
	GetETag                = dav("getetag")
	GetContentType         = dav("getcontenttype")
	GetContentLength       = dav("getcontentlength")
	GetLastModified        = dav("getlastmodified")
	SupportedReportSet     = dav("supported-report-set")
	AddressbookDescription = carddav("addressbook-description")
	MaxResourceSize        = carddav("max-resource-size")
	SupportedAddressData   = carddav("supported-address-data")
	SupportedCollationSet  = carddav("supported-collation-set")
	GetCTag                = cardreport.PropName{Space: cardreport.NSCalendarServer, Local: "getctag"}
)

func dav(local string) cardreport.PropName {
	return cardreport.PropName{Space: cardreport.NSDAV, Local: local}
}

func carddav(local string) cardreport.PropName {
	return cardreport.PropName{Space: cardreport.NSCardDAV, Local: local}
}

const (
	xmlnsDAV     = ` xmlns="DAV:"`
	xmlnsCardDAV = ` xmlns="` + cardreport.NSCardDAV + `"`
)

type userAgentKey struct{}

// WithUserAgent records the client User-Agent for getcontenttype.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

func userAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

// Builder resolves properties. CTag may be nil, in which case getctag is
// never found.
type Builder struct {
	MaxResourceSize int64
	CTag            func(ctx context.Context, path string) (string, error)
}

var (
	_ cardreport.PropertyFetcher = (*Builder)(nil)
	_ store.PropSource           = (*Builder)(nil)
)

// FetchProperties returns the values of names that apply to res, in the
// order requested.
func (b *Builder) FetchProperties(ctx context.Context, res cardreport.Resource, names []cardreport.PropName) ([]cardreport.Property, error) {
	out := make([]cardreport.Property, 0, len(names))
	for _, n := range names {
		p, ok, err := b.property(ctx, res, n)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// DeadProps returns the CardDAV specific properties that a generic WebDAV
// server does not know about.
func (b *Builder) DeadProps(ctx context.Context, res cardreport.Resource) []cardreport.Property {
	var names []cardreport.PropName
	switch res.Kind {
	case cardreport.KindAddressBook:
		names = []cardreport.PropName{
			ResourceType, DisplayName, AddressbookDescription, GetCTag, SupportedReportSet,
			MaxResourceSize, SupportedAddressData, SupportedCollationSet,
		}
	case cardreport.KindCard:
		names = []cardreport.PropName{GetContentType, SupportedReportSet}
	default:
		return nil
	}
	props, err := b.FetchProperties(ctx, res, names)
	if err != nil {
		return nil
	}
	return props
}

func (b *Builder) property(ctx context.Context, res cardreport.Resource, n cardreport.PropName) (cardreport.Property, bool, error) {
	p := cardreport.Property{Name: n}
	isCard := res.Kind == cardreport.KindCard
	isBook := res.Kind == cardreport.KindAddressBook
	switch n {
	case ResourceType:
		switch {
		case isBook:
			p.InnerXML = "<collection" + xmlnsDAV + "/><addressbook" + xmlnsCardDAV + "/>"
		case res.Kind.IsCollection():
			p.InnerXML = "<collection" + xmlnsDAV + "/>"
		}
	case DisplayName:
		if res.DisplayName == "" {
			return p, false, nil
		}
		p.Text = res.DisplayName
	case AddressbookDescription:
		if !isBook || res.Description == "" {
			return p, false, nil
		}
		p.Text = res.Description
	case GetETag:
		if res.Kind.IsCollection() {
			return p, false, nil
		}
		p.Text = store.ETag(res)
	case GetContentType:
		if !isCard {
			return p, false, nil
		}
		p.Text = ContentType(userAgent(ctx))
	case GetContentLength:
		if res.Kind.IsCollection() {
			return p, false, nil
		}
		p.Text = strconv.FormatInt(res.Size, 10)
	case GetLastModified:
		if res.ModTime.IsZero() {
			return p, false, nil
		}
		p.Text = res.ModTime.UTC().Format(http.TimeFormat)
	case GetCTag:
		if !res.Kind.IsCollection() || b.CTag == nil {
			return p, false, nil
		}
		v, err := b.CTag(ctx, res.Path)
		if err != nil {
			return p, false, err
		}
		p.Text = v
	case SupportedReportSet:
		if !isBook && !isCard {
			return p, false, nil
		}
		p.InnerXML = supportedReport("addressbook-query") + supportedReport("addressbook-multiget")
	case MaxResourceSize:
		if !isBook || b.MaxResourceSize <= 0 {
			return p, false, nil
		}
		p.Text = strconv.FormatInt(b.MaxResourceSize, 10)
	case SupportedAddressData:
		if !isBook {
			return p, false, nil
		}
		p.InnerXML = addressDataType(cardconv.MediaTypeVCard, "3.0") +
			addressDataType(cardconv.MediaTypeVCard, "4.0") +
			addressDataType(cardconv.MediaTypeJCard, "4.0")
	case SupportedCollationSet:
		if !isBook {
			return p, false, nil
		}
		var sb strings.Builder
		for _, c := range cardfilter.SupportedCollations {
			sb.WriteString("<supported-collation" + xmlnsCardDAV + ">" + c + "</supported-collation>")
		}
		p.InnerXML = sb.String()
	default:
		return p, false, nil
	}
	return p, true, nil
}

// ContentType is the getcontenttype of a card for the given client.
// Thunderbird only recognizes the legacy text/x-vcard type.
func ContentType(ua string) string {
	if strings.Contains(ua, "Thunderbird") {
		return "text/x-vcard; charset=utf-8"
	}
	return cardconv.MediaTypeVCard + "; charset=utf-8"
}

func supportedReport(name string) string {
	return "<supported-report" + xmlnsDAV + "><report" + xmlnsDAV + "><" + name + xmlnsCardDAV + "/></report></supported-report>"
}

func addressDataType(contentType, version string) string {
	return "<address-data-type" + xmlnsCardDAV + ` content-type="` + contentType + `" version="` + version + `"/>`
}
