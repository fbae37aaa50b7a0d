package cardconv

import (
	"fmt"
	"strings"

	"github.com/r9s-ai/cardq/pkg/vcard"
)

// DefaultProductID is written as PRODID on converted cards.
const DefaultProductID = "-//r9s-ai//cardq//EN"

// alwaysKept properties survive every projection.
var alwaysKept = []string{"UID", "VERSION", "FN"}

// Converter converts stored card bytes to a negotiated dialect.
type Converter struct {
	ProductID string
}

// NewConverter returns a Converter stamping productID on converted cards.
// An empty productID selects DefaultProductID.
func NewConverter(productID string) *Converter {
	if strings.TrimSpace(productID) == "" {
		productID = DefaultProductID
	}
	return &Converter{ProductID: productID}
}

var defaultConverter = NewConverter("")

// Convert uses a converter with DefaultProductID.
func Convert(data []byte, target Dialect, allow []string) ([]byte, error) {
	return defaultConverter.Convert(data, target, allow)
}

// Convert parses data, optionally keeps only the allow-listed properties,
// and encodes the card in the target dialect. When no projection is
// requested and data is already vCard text of the target version, data is
// returned unchanged.
func (cv *Converter) Convert(data []byte, target Dialect, allow []string) ([]byte, error) {
	card, fromJSON, err := vcard.Read(data)
	if err != nil {
		return nil, fmt.Errorf("convert card: %w", err)
	}
	projected := len(allow) > 0
	if projected {
		Project(card, allow)
	}
	doc := card.DocType()
	switch target {
	case JCard:
		if doc != vcard.DocVCard40 {
			card = cv.ConvertCard(card, vcard.DocVCard40)
		}
		out, err := card.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode jcard: %w", err)
		}
		return out, nil
	case VCard4:
		return cv.encodeText(data, card, vcard.DocVCard40, projected || fromJSON), nil
	default:
		return cv.encodeText(data, card, vcard.DocVCard30, projected || fromJSON), nil
	}
}

func (cv *Converter) encodeText(orig []byte, card *vcard.Card, version vcard.DocType, changed bool) []byte {
	if card.DocType() == version {
		if !changed {
			return orig
		}
		return card.Serialize()
	}
	return cv.ConvertCard(card, version).Serialize()
}

// Project removes every property not in allow. UID, VERSION and FN are
// always kept. Names are case-insensitive.
func Project(card *vcard.Card, allow []string) {
	keep := make(map[string]bool, len(allow)+len(alwaysKept))
	for _, n := range alwaysKept {
		keep[n] = true
	}
	for _, n := range allow {
		keep[strings.ToUpper(strings.TrimSpace(n))] = true
	}
	card.Keep(keep)
}
