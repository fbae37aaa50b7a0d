// Package davxml decodes and encodes the CardDAV REPORT bodies served by
// cardq.
package davxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/r9s-ai/cardq/pkg/cardfilter"
	"github.com/r9s-ai/cardq/pkg/cardreport"
)

var (
	// ErrBadRequest marks malformed or invalid report bodies.
	ErrBadRequest = errors.New("bad report request")
	// ErrUnsupportedReport is returned for report types other than
	// addressbook-query and addressbook-multiget.
	ErrUnsupportedReport = errors.New("report not supported")
)

// Report names.
var (
	AddressbookQuery    = xml.Name{Space: cardreport.NSCardDAV, Local: "addressbook-query"}
	AddressbookMultiget = xml.Name{Space: cardreport.NSCardDAV, Local: "addressbook-multiget"}
)

// Report is a decoded REPORT body. Exactly one field is set. Multiget
// paths hold the raw hrefs of the request.
type Report struct {
	Query    *cardreport.QueryRequest
	Multiget *cardreport.MultigetRequest
}

type xmlNamed struct {
	Name string `xml:"name,attr"`
}

type xmlPropElem struct {
	XMLName     xml.Name
	ContentType string     `xml:"content-type,attr"`
	Version     string     `xml:"version,attr"`
	Props       []xmlNamed `xml:"urn:ietf:params:xml:ns:carddav prop"`
}

type xmlProp struct {
	Any []xmlPropElem `xml:",any"`
}

type xmlTextMatch struct {
	Collation string `xml:"collation,attr"`
	MatchType string `xml:"match-type,attr"`
	Negate    string `xml:"negate-condition,attr"`
	Value     string `xml:",chardata"`
}

type xmlParamFilter struct {
	Name         string        `xml:"name,attr"`
	IsNotDefined *struct{}     `xml:"urn:ietf:params:xml:ns:carddav is-not-defined"`
	TextMatch    *xmlTextMatch `xml:"urn:ietf:params:xml:ns:carddav text-match"`
}

type xmlPropFilter struct {
	Name         string           `xml:"name,attr"`
	Test         string           `xml:"test,attr"`
	IsNotDefined *struct{}        `xml:"urn:ietf:params:xml:ns:carddav is-not-defined"`
	TextMatches  []xmlTextMatch   `xml:"urn:ietf:params:xml:ns:carddav text-match"`
	ParamFilters []xmlParamFilter `xml:"urn:ietf:params:xml:ns:carddav param-filter"`
}

type xmlFilter struct {
	Test        string          `xml:"test,attr"`
	PropFilters []xmlPropFilter `xml:"urn:ietf:params:xml:ns:carddav prop-filter"`
}

type xmlLimit struct {
	NResults string `xml:"urn:ietf:params:xml:ns:carddav nresults"`
}

type xmlQuery struct {
	XMLName xml.Name   `xml:"urn:ietf:params:xml:ns:carddav addressbook-query"`
	Prop    *xmlProp   `xml:"DAV: prop"`
	Filter  *xmlFilter `xml:"urn:ietf:params:xml:ns:carddav filter"`
	Limit   *xmlLimit  `xml:"urn:ietf:params:xml:ns:carddav limit"`
}

type xmlMultiget struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav addressbook-multiget"`
	Prop    *xmlProp `xml:"DAV: prop"`
	Hrefs   []string `xml:"DAV: href"`
}

// DecodeReport reads a REPORT body.
func DecodeReport(r io.Reader) (*Report, error) {
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty request body", ErrBadRequest)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name {
		case AddressbookQuery:
			var q xmlQuery
			if err := d.DecodeElement(&q, &start); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
			req, err := q.request()
			if err != nil {
				return nil, err
			}
			return &Report{Query: req}, nil
		case AddressbookMultiget:
			var m xmlMultiget
			if err := d.DecodeElement(&m, &start); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
			req := &cardreport.MultigetRequest{}
			for _, h := range m.Hrefs {
				if h = strings.TrimSpace(h); h != "" {
					req.Paths = append(req.Paths, h)
				}
			}
			req.Properties, req.ContentType, req.Version, _ = m.Prop.properties()
			return &Report{Multiget: req}, nil
		default:
			return nil, fmt.Errorf("%w: {%s}%s", ErrUnsupportedReport, start.Name.Space, start.Name.Local)
		}
	}
}

// properties returns the requested names plus the address-data options.
func (p *xmlProp) properties() (names []cardreport.PropName, contentType, version string, allow []string) {
	if p == nil {
		return nil, "", "", nil
	}
	for _, el := range p.Any {
		name := cardreport.PropName{Space: el.XMLName.Space, Local: el.XMLName.Local}
		names = append(names, name)
		if name != cardreport.AddressData {
			continue
		}
		contentType = strings.TrimSpace(el.ContentType)
		version = strings.TrimSpace(el.Version)
		if contentType == "" {
			contentType = "text/vcard"
		}
		if version == "" {
			version = "3.0"
		}
		for _, n := range el.Props {
			if n.Name != "" {
				allow = append(allow, n.Name)
			}
		}
	}
	return names, contentType, version, allow
}

func (q *xmlQuery) request() (*cardreport.QueryRequest, error) {
	req := &cardreport.QueryRequest{}
	req.Properties, req.ContentType, req.Version, req.AddressDataProps = q.Prop.properties()
	if q.Filter != nil {
		fs, err := q.Filter.filterSet()
		if err != nil {
			return nil, err
		}
		req.Filter = fs
	}
	if q.Limit != nil {
		n, err := strconv.Atoi(strings.TrimSpace(q.Limit.NResults))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: the limit must be a non-negative integer", ErrBadRequest)
		}
		req.Limit = n
	}
	return req, nil
}

func (f *xmlFilter) filterSet() (cardfilter.FilterSet, error) {
	test, err := cardfilter.ParseTest(f.Test)
	if err != nil {
		return cardfilter.FilterSet{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	fs := cardfilter.FilterSet{Test: test}
	for _, pf := range f.PropFilters {
		out, err := pf.propertyFilter()
		if err != nil {
			return cardfilter.FilterSet{}, err
		}
		fs.Filters = append(fs.Filters, out)
	}
	return fs, nil
}

func (pf *xmlPropFilter) propertyFilter() (cardfilter.PropertyFilter, error) {
	name := strings.TrimSpace(pf.Name)
	if name == "" {
		return cardfilter.PropertyFilter{}, fmt.Errorf("%w: prop-filter requires a name attribute", ErrBadRequest)
	}
	test, err := cardfilter.ParseTest(pf.Test)
	if err != nil {
		return cardfilter.PropertyFilter{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	out := cardfilter.PropertyFilter{Name: name, Test: test, IsNotDefined: pf.IsNotDefined != nil}
	for _, prm := range pf.ParamFilters {
		pname := strings.TrimSpace(prm.Name)
		if pname == "" {
			return cardfilter.PropertyFilter{}, fmt.Errorf("%w: param-filter requires a name attribute", ErrBadRequest)
		}
		pfOut := cardfilter.ParamFilter{Name: pname, IsNotDefined: prm.IsNotDefined != nil}
		if prm.TextMatch != nil {
			tm, err := prm.TextMatch.textMatch()
			if err != nil {
				return cardfilter.PropertyFilter{}, err
			}
			pfOut.TextMatch = &tm
		}
		out.ParamFilters = append(out.ParamFilters, pfOut)
	}
	for _, x := range pf.TextMatches {
		tm, err := x.textMatch()
		if err != nil {
			return cardfilter.PropertyFilter{}, err
		}
		out.TextMatches = append(out.TextMatches, tm)
	}
	return out, nil
}

func (x *xmlTextMatch) textMatch() (cardfilter.TextMatch, error) {
	collation := strings.TrimSpace(x.Collation)
	if collation == "" {
		collation = cardfilter.DefaultCollation
	}
	if err := cardfilter.ValidateCollation(collation); err != nil {
		return cardfilter.TextMatch{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	mt, err := cardfilter.ParseMatchType(x.MatchType)
	if err != nil {
		return cardfilter.TextMatch{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return cardfilter.TextMatch{
		Value:     x.Value,
		Collation: collation,
		MatchType: mt,
		Negate:    strings.EqualFold(strings.TrimSpace(x.Negate), "yes"),
	}, nil
}
