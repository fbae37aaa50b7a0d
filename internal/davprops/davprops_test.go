package davprops

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/r9s-ai/cardq/pkg/cardreport"
)

func book() cardreport.Resource {
	return cardreport.Resource{Path: "/book", Kind: cardreport.KindAddressBook, DisplayName: "Friends"}
}

func card() cardreport.Resource {
	return cardreport.Resource{Path: "/book/a.vcf", Kind: cardreport.KindCard, Size: 42, ModTime: time.Unix(1700000000, 0)}
}

func TestFetchProperties_Card(t *testing.T) {
	b := &Builder{MaxResourceSize: 100}
	names := []cardreport.PropName{GetContentLength, GetETag, GetCTag, GetContentType, ResourceType, MaxResourceSize, GetLastModified}
	props, err := b.FetchProperties(context.Background(), card(), names)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	got := map[cardreport.PropName]cardreport.Property{}
	var order []cardreport.PropName
	for _, p := range props {
		got[p.Name] = p
		order = append(order, p.Name)
	}
	if len(order) != 5 || order[0] != GetContentLength || order[1] != GetETag {
		t.Fatalf("order=%v", order)
	}
	if got[GetContentLength].Text != "42" {
		t.Fatalf("length=%q", got[GetContentLength].Text)
	}
	if got[GetContentType].Text != "text/vcard; charset=utf-8" {
		t.Fatalf("content type=%q", got[GetContentType].Text)
	}
	if got[GetLastModified].Text != "Tue, 14 Nov 2023 22:13:20 GMT" {
		t.Fatalf("last modified=%q", got[GetLastModified].Text)
	}
	if p := got[ResourceType]; p.Text != "" || p.InnerXML != "" {
		t.Fatalf("card resourcetype=%+v", p)
	}
	if _, ok := got[GetCTag]; ok {
		t.Fatalf("cards have no ctag")
	}
}

func TestFetchProperties_ThunderbirdQuirk(t *testing.T) {
	ctx := WithUserAgent(context.Background(), "Mozilla/5.0 Thunderbird/115.0")
	props, err := (&Builder{}).FetchProperties(ctx, card(), []cardreport.PropName{GetContentType})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if props[0].Text != "text/x-vcard; charset=utf-8" {
		t.Fatalf("content type=%q", props[0].Text)
	}
}

func TestDeadProps_AddressBook(t *testing.T) {
	b := &Builder{
		MaxResourceSize: 1000,
		CTag:            func(ctx context.Context, p string) (string, error) { return "ctag-" + p, nil },
	}
	props := b.DeadProps(context.Background(), book())
	got := map[cardreport.PropName]cardreport.Property{}
	for _, p := range props {
		got[p.Name] = p
	}
	if !strings.Contains(got[ResourceType].InnerXML, `<addressbook xmlns="urn:ietf:params:xml:ns:carddav"/>`) {
		t.Fatalf("resourcetype=%q", got[ResourceType].InnerXML)
	}
	if got[GetCTag].Text != "ctag-/book" || got[DisplayName].Text != "Friends" || got[MaxResourceSize].Text != "1000" {
		t.Fatalf("props=%+v", got)
	}
	if _, ok := got[AddressbookDescription]; ok {
		t.Fatalf("empty description must be left out")
	}
	if n := strings.Count(got[SupportedAddressData].InnerXML, "<address-data-type"); n != 3 {
		t.Fatalf("address data types=%d", n)
	}
	if !strings.Contains(got[SupportedCollationSet].InnerXML, ">i;unicode-casemap<") {
		t.Fatalf("collations=%q", got[SupportedCollationSet].InnerXML)
	}
	if !strings.Contains(got[SupportedReportSet].InnerXML, "addressbook-multiget") {
		t.Fatalf("reports=%q", got[SupportedReportSet].InnerXML)
	}
}

func TestDeadProps_PlainCollection(t *testing.T) {
	if props := (&Builder{}).DeadProps(context.Background(), cardreport.Resource{Path: "/", Kind: cardreport.KindCollection}); props != nil {
		t.Fatalf("props=%+v", props)
	}
}

func TestFetchProperties_CTagError(t *testing.T) {
	boom := errors.New("boom")
	b := &Builder{CTag: func(context.Context, string) (string, error) { return "", boom }}
	if _, err := b.FetchProperties(context.Background(), book(), []cardreport.PropName{GetCTag}); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}
