// Package cardconv negotiates card media types and converts cards between
// vCard 3.0, vCard 4.0 and jCard.
package cardconv

import (
	"mime"
	"strconv"
	"strings"
)

// Dialect is a wire encoding of a card.
type Dialect int

const (
	VCard3 Dialect = iota
	VCard4
	JCard
)

func (d Dialect) String() string {
	switch d {
	case VCard4:
		return "vcard4"
	case JCard:
		return "jcard"
	default:
		return "vcard3"
	}
}

// Media types reported for negotiated dialects.
const (
	MediaTypeVCard   = "text/vcard"
	MediaTypeVCard3  = "text/vcard; version=3.0"
	MediaTypeVCard4  = "text/vcard; version=4.0"
	MediaTypeXVCard  = "text/x-vcard"
	MediaTypeJCard   = "application/vcard+json"
	charsetUTF8Param = "; charset=utf-8"
)

// Negotiation is the outcome of content negotiation.
type Negotiation struct {
	Dialect   Dialect
	MediaType string
}

// ContentType returns MediaType with a utf-8 charset parameter.
func (n Negotiation) ContentType() string {
	return n.MediaType + charsetUTF8Param
}

type candidate struct {
	mediaType  string
	negotiated Negotiation
}

// candidates in server preference order. The legacy alias and the bare type
// both resolve to vCard 3.0 reported as text/vcard.
var candidates = []candidate{
	{MediaTypeXVCard, Negotiation{VCard3, MediaTypeVCard}},
	{MediaTypeVCard, Negotiation{VCard3, MediaTypeVCard}},
	{MediaTypeVCard4, Negotiation{VCard4, MediaTypeVCard4}},
	{MediaTypeVCard3, Negotiation{VCard3, MediaTypeVCard}},
	{MediaTypeJCard, Negotiation{JCard, MediaTypeJCard}},
}

// Default is used when nothing in the input is acceptable.
var Default = Negotiation{Dialect: VCard3, MediaType: MediaTypeVCard}

type mediaRange struct {
	typ, subtype string
	params       map[string]string
	quality      float64
}

// Negotiate picks a dialect from an Accept header value or a requested
// content type. The candidate that matches the highest quality range wins;
// ties go to the more specific range and then to the earlier candidate.
// Empty or unrecognised input yields Default.
func Negotiate(input string) Negotiation {
	if strings.TrimSpace(input) == "" {
		return Default
	}
	options := make([]mediaRange, len(candidates))
	for i, c := range candidates {
		options[i], _ = parseMediaRange(c.mediaType)
	}
	var (
		best            = -1
		bestQuality     float64
		bestSpecificity int
	)
	for _, part := range strings.Split(input, ",") {
		proposal, ok := parseMediaRange(part)
		if !ok || proposal.quality < bestQuality {
			continue
		}
		for i, opt := range options {
			if proposal.typ != "*" && proposal.typ != opt.typ {
				continue
			}
			if proposal.subtype != "*" && proposal.subtype != opt.subtype {
				continue
			}
			if !paramsCovered(opt.params, proposal.params) {
				continue
			}
			specificity := len(opt.params)
			if proposal.typ != "*" {
				specificity += 20
			}
			if proposal.subtype != "*" {
				specificity += 10
			}
			if best < 0 ||
				proposal.quality > bestQuality ||
				(proposal.quality == bestQuality && specificity > bestSpecificity) ||
				(proposal.quality == bestQuality && specificity == bestSpecificity && i < best) {
				best, bestQuality, bestSpecificity = i, proposal.quality, specificity
			}
		}
	}
	if best < 0 || bestQuality <= 0 {
		return Default
	}
	return candidates[best].negotiated
}

// paramsCovered reports whether every option parameter appears on the
// proposal with the same value.
func paramsCovered(option, proposal map[string]string) bool {
	for k, v := range option {
		if pv, ok := proposal[k]; !ok || pv != v {
			return false
		}
	}
	return true
}

func parseMediaRange(s string) (mediaRange, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return mediaRange{}, false
	}
	if s == "*" {
		s = "*/*"
	}
	mt, params, err := mime.ParseMediaType(s)
	if err != nil {
		return mediaRange{}, false
	}
	typ, subtype, ok := strings.Cut(mt, "/")
	if !ok {
		return mediaRange{}, false
	}
	r := mediaRange{typ: typ, subtype: subtype, params: map[string]string{}, quality: 1}
	for k, v := range params {
		if k == "q" {
			q, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return mediaRange{}, false
			}
			r.quality = q
			continue
		}
		r.params[k] = v
	}
	return r, true
}

// NegotiateRequest combines an address-data content type and version into
// one negotiation input. An empty content type means text/vcard.
func NegotiateRequest(contentType, version string) Negotiation {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		ct = MediaTypeVCard
	}
	if v := strings.TrimSpace(version); v != "" {
		ct += "; version=" + v
	}
	return Negotiate(ct)
}
