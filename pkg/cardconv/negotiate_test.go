package cardconv

import "testing"

func TestNegotiate(t *testing.T) {
	cases := []struct {
		in      string
		dialect Dialect
		media   string
	}{
		{"", VCard3, MediaTypeVCard},
		{"text/vcard", VCard3, MediaTypeVCard},
		{"text/x-vcard", VCard3, MediaTypeVCard},
		{"text/vcard; version=3.0", VCard3, MediaTypeVCard},
		{"text/vcard; version=4.0", VCard4, MediaTypeVCard4},
		{"application/vcard+json", JCard, MediaTypeJCard},
		{"application/json", VCard3, MediaTypeVCard},
		{"garbage", VCard3, MediaTypeVCard},
		{"*/*", VCard3, MediaTypeVCard},
		{"text/*", VCard3, MediaTypeVCard},
		{"text/vcard;q=0.5, application/vcard+json", JCard, MediaTypeJCard},
		{"application/vcard+json;q=0.2, text/vcard;version=4.0;q=0.9", VCard4, MediaTypeVCard4},
		{"TEXT/VCARD; VERSION=4.0", VCard4, MediaTypeVCard4},
		{"application/vcard+json;q=0", VCard3, MediaTypeVCard},
	}
	for _, tc := range cases {
		got := Negotiate(tc.in)
		if got.Dialect != tc.dialect || got.MediaType != tc.media {
			t.Fatalf("Negotiate(%q)=%+v, want %v %q", tc.in, got, tc.dialect, tc.media)
		}
	}
}

func TestNegotiateRequest(t *testing.T) {
	if got := NegotiateRequest("", ""); got != Default {
		t.Fatalf("empty=%+v", got)
	}
	if got := NegotiateRequest("text/vcard", "4.0"); got.Dialect != VCard4 {
		t.Fatalf("v4=%+v", got)
	}
	if got := NegotiateRequest("", "4.0"); got.Dialect != VCard4 {
		t.Fatalf("version only=%+v", got)
	}
	if got := NegotiateRequest("application/vcard+json", ""); got.Dialect != JCard {
		t.Fatalf("json=%+v", got)
	}
	if got := (Negotiation{VCard4, MediaTypeVCard4}).ContentType(); got != "text/vcard; version=4.0; charset=utf-8" {
		t.Fatalf("content type=%q", got)
	}
}
