package cardvalidate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/r9s-ai/cardq/pkg/vcard"
	"golang.org/x/text/encoding/charmap"
)

// rule inspects a card and, when repair is set, fixes what it can.
type rule func(v *Validator, c *vcard.Card, repair bool) []Message

var profile = []rule{
	checkVersion,
	checkUID,
	checkFN,
	checkCardinality,
	checkPropertyNames,
	checkEncoding,
	checkEncodingParam,
	checkAdvisories,
}

// atMostOnce lists properties that may appear zero or one time.
var atMostOnce = []string{"ANNIVERSARY", "BDAY", "GENDER", "KIND", "N", "PRODID", "REV", "UID"}

var knownKinds = map[string]bool{"individual": true, "group": true, "org": true, "location": true}

var (
	validPropertyName = regexp.MustCompile(`^[A-Z0-9-]+$`)
	validGroupName    = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	invalidNameChars  = regexp.MustCompile(`[^A-Z0-9-]`)
	controlChars      = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

func checkVersion(_ *Validator, c *vcard.Card, repair bool) []Message {
	versions := c.Select("VERSION")
	if len(versions) != 1 {
		return []Message{{Level: LevelFatal, Property: "VERSION", Text: "The VERSION property must appear in the VCARD component exactly 1 time"}}
	}
	switch vcard.DocTypeOf(versions[0].Value()) {
	case vcard.DocVCard30, vcard.DocVCard40:
		return nil
	case vcard.DocVCard21:
		return []Message{{Level: LevelFatal, Property: "VERSION", Text: "CardDAV servers are not allowed to accept vCard 2.1."}}
	default:
		if repair {
			versions[0].SetValue("4.0")
		}
		return []Message{{Level: LevelFatal, Property: "VERSION", Text: "Only vcard version 4.0 (RFC6350) and version 3.0 (RFC2426) are supported."}}
	}
}

func checkUID(v *Validator, c *vcard.Card, repair bool) []Message {
	if c.Has("UID") {
		return nil
	}
	if repair {
		c.AddValue("UID", v.newUID())
	}
	return []Message{{Level: repairedLevel(repair), Property: "UID", Text: "vCards on CardDAV servers MUST have a UID property."}}
}

func checkFN(_ *Validator, c *vcard.Card, repair bool) []Message {
	switch n := len(c.Select("FN")); {
	case n == 1:
		return nil
	case n > 1:
		return []Message{{Level: LevelFatal, Property: "FN", Text: "The FN property must appear in the VCARD component exactly 1 time"}}
	}
	level := LevelFatal
	if repair {
		if fn := deriveFN(c); fn != "" {
			c.AddValue("FN", fn)
			level = LevelInfo
		}
	}
	return []Message{{Level: level, Property: "FN", Text: "The FN property must appear in the VCARD component exactly 1 time"}}
}

// deriveFN builds a formatted name from N, ORG, NICKNAME or EMAIL, in that
// order.
func deriveFN(c *vcard.Card) string {
	if n := c.Get("N"); n != nil {
		parts := n.Parts()
		family := strings.TrimSpace(parts[0])
		given := ""
		if len(parts) > 1 {
			given = strings.TrimSpace(parts[1])
		}
		if fn := strings.TrimSpace(given + " " + family); fn != "" {
			return fn
		}
	}
	if org := c.Get("ORG"); org != nil {
		if s := strings.TrimSpace(org.Parts()[0]); s != "" {
			return s
		}
	}
	if nick := c.Get("NICKNAME"); nick != nil {
		if s := strings.TrimSpace(nick.Parts()[0]); s != "" {
			return s
		}
	}
	if email := c.Get("EMAIL"); email != nil {
		return strings.TrimSpace(email.Value())
	}
	return ""
}

func checkCardinality(_ *Validator, c *vcard.Card, _ bool) []Message {
	var out []Message
	for _, name := range atMostOnce {
		if len(c.Select(name)) > 1 {
			out = append(out, Message{
				Level:    LevelFatal,
				Property: name,
				Text:     fmt.Sprintf("The %s property must not appear more than once in the VCARD component", name),
			})
		}
	}
	return out
}

// cleanName upper-cases name, turns underscores into dashes and drops every
// other character outside the name set. The result may be empty.
func cleanName(name string) string {
	name = strings.ReplaceAll(strings.ToUpper(name), "_", "-")
	return invalidNameChars.ReplaceAllString(name, "")
}

// checkPropertyNames checks property and group names against the name
// character set. A property whose name has nothing left after cleaning is
// removed; such a group is dropped.
func checkPropertyNames(_ *Validator, c *vcard.Card, repair bool) []Message {
	var out []Message
	kept := c.Props[:0:0]
	for _, p := range c.Props {
		if p.Group != "" && !validGroupName.MatchString(p.Group) {
			out = append(out, Message{
				Level:    repairedLevel(repair),
				Property: p.Name,
				Text:     fmt.Sprintf("The group name %q is invalid. Valid group names contain only letters, digits and dashes.", p.Group),
			})
			if repair {
				p.Group = cleanName(p.Group)
			}
		}
		if validPropertyName.MatchString(p.Name) {
			kept = append(kept, p)
			continue
		}
		name := cleanName(p.Name)
		if name == "" {
			out = append(out, Message{
				Level:    repairedLevel(repair),
				Property: p.Name,
				Text:     fmt.Sprintf("The property name %q has no valid characters. The property has been removed.", p.Name),
			})
			if !repair {
				kept = append(kept, p)
			}
			continue
		}
		out = append(out, Message{
			Level:    repairedLevel(repair),
			Property: p.Name,
			Text:     fmt.Sprintf("The property name %q is invalid. Valid property names contain only letters, digits and dashes.", p.Name),
		})
		if repair {
			p.Name = name
		}
		kept = append(kept, p)
	}
	c.Props = kept
	return out
}

// checkEncoding finds values, parameter values and groups that are not
// UTF-8 or carry control characters. Invalid UTF-8 is decoded as
// Windows-1252.
func checkEncoding(_ *Validator, c *vcard.Card, repair bool) []Message {
	var out []Message
	for _, p := range c.Props {
		out = append(out, checkText(p.Name, "Property", &p.Raw, repair)...)
		out = append(out, checkText(p.Name, "Group", &p.Group, repair)...)
		for i := range p.Params {
			for j := range p.Params[i].Values {
				out = append(out, checkText(p.Name, "Parameter "+p.Params[i].Name, &p.Params[i].Values[j], repair)...)
			}
		}
	}
	return out
}

func checkText(prop, what string, s *string, repair bool) []Message {
	var out []Message
	if !utf8.ValidString(*s) {
		out = append(out, Message{
			Level:    repairedLevel(repair),
			Property: prop,
			Text:     what + " is not valid UTF-8!",
		})
		if repair {
			if d, err := charmap.Windows1252.NewDecoder().String(*s); err == nil {
				*s = d
			} else {
				*s = strings.ToValidUTF8(*s, "")
			}
		}
	}
	if loc := controlChars.FindStringIndex(*s); loc != nil {
		out = append(out, Message{
			Level:    repairedLevel(repair),
			Property: prop,
			Text:     fmt.Sprintf("%s contained a control character (0x%02x)", what, (*s)[loc[0]]),
		})
		if repair {
			*s = controlChars.ReplaceAllString(*s, "")
		}
	}
	return out
}

func checkEncodingParam(_ *Validator, c *vcard.Card, repair bool) []Message {
	doc := c.DocType()
	var out []Message
	for _, p := range c.Props {
		prm, ok := p.Param("ENCODING")
		if !ok {
			continue
		}
		enc := strings.ToUpper(prm.Value())
		switch {
		case doc == vcard.DocVCard40:
			out = append(out, Message{Level: LevelFatal, Property: p.Name, Text: "ENCODING parameter is not valid in vCard 4."})
		case enc == "B":
		case enc == "BASE64":
			out = append(out, Message{
				Level:    repairedLevel(repair),
				Property: p.Name,
				Text:     "ENCODING=BASE64 has been transformed to ENCODING=B.",
			})
			if repair {
				p.SetParam("ENCODING", "B")
			}
		default:
			out = append(out, Message{Level: LevelFatal, Property: p.Name, Text: fmt.Sprintf("ENCODING=%s is not valid for this document type.", enc)})
		}
	}
	return out
}

// checkAdvisories reports suspicious values that are stored unchanged.
func checkAdvisories(_ *Validator, c *vcard.Card, _ bool) []Message {
	var out []Message
	if fn := c.Get("FN"); fn != nil && strings.TrimSpace(fn.Value()) == "" {
		out = append(out, Message{Level: LevelWarning, Property: "FN", Text: "FN property has an empty value"})
	}
	for _, p := range c.Select("EMAIL") {
		v := strings.TrimSpace(p.Value())
		if !strings.Contains(v, "@") || strings.HasPrefix(v, "@") || strings.HasSuffix(v, "@") {
			out = append(out, Message{Level: LevelWarning, Property: "EMAIL", Text: fmt.Sprintf("EMAIL value %q does not look like an email address", v)})
		}
	}
	if k := c.Get("KIND"); k != nil {
		v := strings.ToLower(strings.TrimSpace(k.Value()))
		if !knownKinds[v] && !strings.HasPrefix(v, "x-") {
			out = append(out, Message{Level: LevelWarning, Property: "KIND", Text: fmt.Sprintf("Unknown KIND value %q", v)})
		}
	}
	return out
}
