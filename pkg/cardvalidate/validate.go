// Package cardvalidate checks uploaded cards against the CardDAV profile
// and repairs what can be repaired.
package cardvalidate

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/r9s-ai/cardq/pkg/vcard"
)

// Options control a single validation run.
type Options struct {
	// Strict disables repairs. Problems that would be repaired become fatal.
	Strict bool
}

// Result is the outcome of an accepted card.
type Result struct {
	// Data is the card to store. It differs from the input when Modified is
	// set.
	Data     []byte
	Modified bool
	// Warning is the text of the most severe message, empty when the card
	// was clean.
	Warning  string
	Level    Level
	Messages []Message
}

// Validator runs the profile rules. The zero value is ready to use.
type Validator struct {
	// NewUID generates UIDs for cards that lack one. Defaults to random
	// UUIDs.
	NewUID func() string
}

// New returns a Validator with default settings.
func New() *Validator {
	return &Validator{}
}

func (v *Validator) newUID() string {
	if v != nil && v.NewUID != nil {
		return v.NewUID()
	}
	return uuid.NewString()
}

// Validate runs every profile rule against c. Repairs are applied in place
// when repair is set, even when a later rule reports a fatal message.
func (v *Validator) Validate(c *vcard.Card, repair bool) []Message {
	var out []Message
	for _, r := range profile {
		out = append(out, r(v, c, repair)...)
	}
	return out
}

// ValidateAndRepair parses data (vCard text or jCard), checks that it is a
// VCARD, validates it and returns the bytes to store. Rejections are
// returned as *RejectError.
func (v *Validator) ValidateAndRepair(data []byte, opts Options) (Result, error) {
	before := data
	card, fromJSON, err := vcard.Read(data)
	if err != nil {
		return Result{}, reject(ErrParse, "This resource only supports valid vCard or jCard data. Parse error: "+err.Error(), err)
	}
	res := Result{Data: data}
	if fromJSON {
		res.Data = card.Serialize()
		res.Modified = true
	}
	if card.Kind != vcard.KindVCard {
		return Result{}, reject(ErrKindMismatch, "This collection can only support vcard objects.", nil)
	}

	res.Messages = v.Validate(card, !opts.Strict)
	for _, m := range res.Messages {
		if m.Level > res.Level {
			res.Level = m.Level
			res.Warning = m.Text
		}
		switch m.Level {
		case LevelInfo:
			res.Modified = true
		case LevelFatal:
			return Result{}, reject(ErrValidationFatal, "Validation error in vCard: "+m.Text, nil)
		}
	}
	if res.Warning != "" {
		res.Data = card.Serialize()
		if !res.Modified && !bytes.Equal(res.Data, before) {
			res.Modified = true
		}
	}
	return res, nil
}
