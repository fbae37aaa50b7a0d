package davxml

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/r9s-ai/cardq/pkg/cardfilter"
	"github.com/r9s-ai/cardq/pkg/cardreport"
)

const queryBody = `<?xml version="1.0" encoding="utf-8" ?>
<C:addressbook-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:prop>
    <D:getetag/>
    <C:address-data content-type="text/vcard" version="4.0">
      <C:prop name="VERSION"/>
      <C:prop name="EMAIL"/>
    </C:address-data>
  </D:prop>
  <C:filter test="allof">
    <C:prop-filter name="NICKNAME">
      <C:text-match collation="i;ascii-casemap" match-type="equals">me</C:text-match>
    </C:prop-filter>
    <C:prop-filter name="EMAIL" test="allof">
      <C:param-filter name="TYPE">
        <C:text-match negate-condition="yes">work</C:text-match>
      </C:param-filter>
      <C:is-not-defined/>
    </C:prop-filter>
  </C:filter>
  <C:limit><C:nresults>10</C:nresults></C:limit>
</C:addressbook-query>`

func TestDecodeReport_Query(t *testing.T) {
	rep, err := DecodeReport(strings.NewReader(queryBody))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if rep.Query == nil || rep.Multiget != nil {
		t.Fatalf("report=%+v", rep)
	}
	q := rep.Query
	wantProps := []cardreport.PropName{{Space: "DAV:", Local: "getetag"}, cardreport.AddressData}
	if diff := cmp.Diff(wantProps, q.Properties); diff != "" {
		t.Fatalf("props (-want +got):\n%s", diff)
	}
	if q.ContentType != "text/vcard" || q.Version != "4.0" || q.Limit != 10 {
		t.Fatalf("content=%q version=%q limit=%d", q.ContentType, q.Version, q.Limit)
	}
	if diff := cmp.Diff([]string{"VERSION", "EMAIL"}, q.AddressDataProps); diff != "" {
		t.Fatalf("allow (-want +got):\n%s", diff)
	}
	want := cardfilter.FilterSet{
		Test: cardfilter.AllOf,
		Filters: []cardfilter.PropertyFilter{
			{
				Name: "NICKNAME",
				TextMatches: []cardfilter.TextMatch{{
					Value: "me", Collation: cardfilter.CollationASCIICasemap, MatchType: cardfilter.Equals,
				}},
			},
			{
				Name:         "EMAIL",
				Test:         cardfilter.AllOf,
				IsNotDefined: true,
				ParamFilters: []cardfilter.ParamFilter{{
					Name: "TYPE",
					TextMatch: &cardfilter.TextMatch{
						Value: "work", Collation: cardfilter.CollationUnicodeCasemap, MatchType: cardfilter.Contains, Negate: true,
					},
				}},
			},
		},
	}
	if diff := cmp.Diff(want, q.Filter); diff != "" {
		t.Fatalf("filter (-want +got):\n%s", diff)
	}
}

func TestDecodeReport_Defaults(t *testing.T) {
	body := `<C:addressbook-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
<D:prop><C:address-data/></D:prop><C:filter/></C:addressbook-query>`
	rep, err := DecodeReport(strings.NewReader(body))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	q := rep.Query
	if q.ContentType != "text/vcard" || q.Version != "3.0" || q.Limit != 0 || q.Filter.Test != cardfilter.AnyOf || !q.Filter.Empty() {
		t.Fatalf("query=%+v", q)
	}
}

func TestDecodeReport_Errors(t *testing.T) {
	bad := map[string]string{
		"malformed":      `<C:addressbook-query xmlns:C="urn:ietf:params:xml:ns:carddav">`,
		"empty":          ``,
		"bad test":       `<C:addressbook-query xmlns:C="urn:ietf:params:xml:ns:carddav"><C:filter test="some"/></C:addressbook-query>`,
		"bad collation":  `<C:addressbook-query xmlns:C="urn:ietf:params:xml:ns:carddav"><C:filter><C:prop-filter name="FN"><C:text-match collation="i;klingon">x</C:text-match></C:prop-filter></C:filter></C:addressbook-query>`,
		"bad match-type": `<C:addressbook-query xmlns:C="urn:ietf:params:xml:ns:carddav"><C:filter><C:prop-filter name="FN"><C:text-match match-type="regex">x</C:text-match></C:prop-filter></C:filter></C:addressbook-query>`,
		"no name":        `<C:addressbook-query xmlns:C="urn:ietf:params:xml:ns:carddav"><C:filter><C:prop-filter/></C:filter></C:addressbook-query>`,
		"bad limit":      `<C:addressbook-query xmlns:C="urn:ietf:params:xml:ns:carddav"><C:limit><C:nresults>ten</C:nresults></C:limit></C:addressbook-query>`,
	}
	for name, body := range bad {
		_, err := DecodeReport(strings.NewReader(body))
		if !errors.Is(err, ErrBadRequest) {
			t.Fatalf("%s: err=%v, want ErrBadRequest", name, err)
		}
	}
	_, err := DecodeReport(strings.NewReader(`<D:sync-collection xmlns:D="DAV:"/>`))
	if !errors.Is(err, ErrUnsupportedReport) {
		t.Fatalf("sync-collection err=%v", err)
	}
}

func TestDecodeReport_Multiget(t *testing.T) {
	body := `<C:addressbook-multiget xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:prop><D:getetag/><C:address-data content-type="application/vcard+json"/></D:prop>
  <D:href>/dav/book/a.vcf</D:href>
  <D:href> /dav/book/b.vcf </D:href>
</C:addressbook-multiget>`
	rep, err := DecodeReport(strings.NewReader(body))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	m := rep.Multiget
	if diff := cmp.Diff([]string{"/dav/book/a.vcf", "/dav/book/b.vcf"}, m.Paths); diff != "" {
		t.Fatalf("hrefs (-want +got):\n%s", diff)
	}
	if m.ContentType != "application/vcard+json" || len(m.Properties) != 2 {
		t.Fatalf("multiget=%+v", m)
	}
}

func TestEncodeQuery_RoundTrip(t *testing.T) {
	req := cardreport.QueryRequest{
		Properties:       []cardreport.PropName{{Space: "DAV:", Local: "getetag"}, cardreport.AddressData},
		ContentType:      "text/vcard",
		Version:          "4.0",
		AddressDataProps: []string{"EMAIL"},
		Limit:            3,
		Filter: cardfilter.FilterSet{Test: cardfilter.AllOf, Filters: []cardfilter.PropertyFilter{{
			Name:         "FN",
			ParamFilters: []cardfilter.ParamFilter{{Name: "LANGUAGE", IsNotDefined: true}},
			TextMatches:  []cardfilter.TextMatch{{Value: "a<b & c", Collation: cardfilter.CollationOctet, MatchType: cardfilter.StartsWith}},
		}}},
	}
	rep, err := DecodeReport(bytes.NewReader(EncodeQuery(req)))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if diff := cmp.Diff(&req, rep.Query); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestEncodeMultiget_RoundTrip(t *testing.T) {
	body := EncodeMultiget([]string{"/a.vcf", "/b&c.vcf"}, []cardreport.PropName{cardreport.AddressData}, "text/vcard", "4.0")
	rep, err := DecodeReport(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if diff := cmp.Diff([]string{"/a.vcf", "/b&c.vcf"}, rep.Multiget.Paths); diff != "" {
		t.Fatalf("hrefs (-want +got):\n%s", diff)
	}
	if rep.Multiget.Version != "4.0" {
		t.Fatalf("version=%q", rep.Multiget.Version)
	}
}

func multiStatusFixture() *cardreport.MultiStatus {
	etag := cardreport.PropName{Space: "DAV:", Local: "getetag"}
	rtype := cardreport.PropName{Space: "DAV:", Local: "resourcetype"}
	custom := cardreport.PropName{Space: "urn:x", Local: "color"}
	return &cardreport.MultiStatus{Responses: []cardreport.Response{
		{
			Path: "/book/a.vcf",
			Found: []cardreport.Property{
				{Name: etag, Text: `"abc"`},
				{Name: cardreport.AddressData, Text: "BEGIN:VCARD\r\nFN:A & B <x>\r\nEND:VCARD\r\n"},
			},
			NotFound: []cardreport.PropName{custom},
		},
		{Path: "/book/missing.vcf", Status: http.StatusNotFound},
		{Path: "/book", Found: []cardreport.Property{{Name: rtype, InnerXML: "<d:collection/><card:addressbook/>"}}},
	}}
}

func TestEncodeMultiStatus_DecodesBack(t *testing.T) {
	body := EncodeMultiStatus(multiStatusFixture(), func(p string) string { return "/dav" + p }, false)
	s := string(body)
	if !strings.Contains(s, "<x:color xmlns:x=\"urn:x\"/>") || !strings.Contains(s, "HTTP/1.1 404 Not Found") {
		t.Fatalf("body=%s", s)
	}
	resps, err := DecodeMultiStatus(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(resps) != 3 {
		t.Fatalf("responses=%d", len(resps))
	}
	a := resps[0]
	if a.Path != "/dav/book/a.vcf" || len(a.Found) != 2 || len(a.NotFound) != 1 {
		t.Fatalf("a=%+v", a)
	}
	if got := a.Found[1].Text; got != "BEGIN:VCARD\r\nFN:A & B <x>\r\nEND:VCARD\r\n" {
		t.Fatalf("address-data=%q", got)
	}
	if resps[1].Status != http.StatusNotFound {
		t.Fatalf("missing=%+v", resps[1])
	}
	if !strings.Contains(resps[2].Found[0].InnerXML, "addressbook") {
		t.Fatalf("resourcetype=%+v", resps[2].Found[0])
	}
}

func TestEncodeMultiStatus_QuotesNamespaceAttribute(t *testing.T) {
	odd := cardreport.PropName{Space: `urn:a"b&c<d`, Local: "color"}
	ms := &cardreport.MultiStatus{Responses: []cardreport.Response{
		{Path: "/book/a.vcf", NotFound: []cardreport.PropName{odd}},
	}}
	body := EncodeMultiStatus(ms, nil, false)
	if !strings.Contains(string(body), `xmlns:x="urn:a&quot;b&amp;c&lt;d"`) {
		t.Fatalf("body=%s", body)
	}
	resps, err := DecodeMultiStatus(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("err=%v body=%s", err, body)
	}
	if len(resps) != 1 || len(resps[0].NotFound) != 1 || resps[0].NotFound[0] != odd {
		t.Fatalf("responses=%+v", resps)
	}
}

func TestEncodeMultiStatus_Minimal(t *testing.T) {
	body := string(EncodeMultiStatus(multiStatusFixture(), nil, true))
	if strings.Contains(body, "color") {
		t.Fatalf("minimal body kept 404 propstat: %s", body)
	}
	if !strings.Contains(body, "<d:href>/book/missing.vcf</d:href><d:status>HTTP/1.1 404 Not Found</d:status>") {
		t.Fatalf("missing resource must stay: %s", body)
	}
}

func TestEncodeError(t *testing.T) {
	body := string(EncodeError(SupportedReport, "nope & nope"))
	if !strings.Contains(body, "<d:supported-report/>") || !strings.Contains(body, "<cq:message>nope &amp; nope</cq:message>") {
		t.Fatalf("body=%s", body)
	}
}

func TestDecodeMkcol(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8" ?>
<D:mkcol xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:set><D:prop>
    <D:resourcetype><D:collection/><C:addressbook/></D:resourcetype>
    <D:displayname> Lisa's Contacts </D:displayname>
    <C:addressbook-description xml:lang="en">My primary address book.</C:addressbook-description>
  </D:prop></D:set>
</D:mkcol>`
	m, err := DecodeMkcol(strings.NewReader(body))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := Mkcol{AddressBook: true, DisplayName: "Lisa's Contacts", Description: "My primary address book."}
	if *m != want {
		t.Fatalf("mkcol=%+v", *m)
	}

	m, err = DecodeMkcol(strings.NewReader(`<D:mkcol xmlns:D="DAV:"><D:set><D:prop><D:resourcetype><D:collection/></D:resourcetype></D:prop></D:set></D:mkcol>`))
	if err != nil || m.AddressBook {
		t.Fatalf("plain collection: %+v err=%v", m, err)
	}
	if _, err := DecodeMkcol(strings.NewReader(`<D:propfind xmlns:D="DAV:"/>`)); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("wrong root err=%v", err)
	}
}
