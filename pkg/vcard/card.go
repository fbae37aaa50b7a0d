package vcard

import "strings"

// KindVCard is the component name of a contact record.
const KindVCard = "VCARD"

// DocType identifies the vCard version of a card.
type DocType int

const (
	DocUnknown DocType = iota
	DocVCard21
	DocVCard30
	DocVCard40
)

// DocTypeOf maps a VERSION value to its DocType.
func DocTypeOf(version string) DocType {
	switch strings.TrimSpace(version) {
	case "2.1":
		return DocVCard21
	case "3.0":
		return DocVCard30
	case "4.0":
		return DocVCard40
	default:
		return DocUnknown
	}
}

func (d DocType) String() string {
	switch d {
	case DocVCard21:
		return "2.1"
	case DocVCard30:
		return "3.0"
	case DocVCard40:
		return "4.0"
	default:
		return "unknown"
	}
}

// Card is a parsed component. Kind is "VCARD" for contact records; other
// kinds are kept so callers can reject them explicitly.
type Card struct {
	Kind       string
	Props      []*Property
	Components []*Card
}

// New returns an empty VCARD carrying only a VERSION property.
func New(version DocType) *Card {
	c := &Card{Kind: KindVCard}
	c.AddValue("VERSION", version.String())
	return c
}

// Select returns the properties matching name. Names are case-insensitive.
// "GROUP.NAME" restricts the match to a group and "GROUP." selects every
// property of that group.
func (c *Card) Select(name string) []*Property {
	name = strings.ToUpper(name)
	group := ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		group, name = name[:i], name[i+1:]
	}
	var out []*Property
	for _, p := range c.Props {
		if group != "" && !strings.EqualFold(p.Group, group) {
			continue
		}
		if name != "" && p.Name != name {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Get returns the first property called name, or nil.
func (c *Card) Get(name string) *Property {
	if props := c.Select(name); len(props) > 0 {
		return props[0]
	}
	return nil
}

// Has reports whether at least one property called name exists.
func (c *Card) Has(name string) bool {
	return c.Get(name) != nil
}

// Value returns the decoded value of the first property called name.
func (c *Card) Value(name string) string {
	if p := c.Get(name); p != nil {
		return p.Value()
	}
	return ""
}

// Add appends properties in order.
func (c *Card) Add(props ...*Property) {
	c.Props = append(c.Props, props...)
}

// AddValue appends a new property built by NewProperty and returns it.
func (c *Card) AddValue(name, value string) *Property {
	p := NewProperty(name, value)
	c.Props = append(c.Props, p)
	return p
}

// Remove deletes every property called name and returns how many were
// removed.
func (c *Card) Remove(name string) int {
	drop := c.Select(name)
	if len(drop) == 0 {
		return 0
	}
	out := c.Props[:0]
	for _, p := range c.Props {
		if !containsProp(drop, p) {
			out = append(out, p)
		}
	}
	for i := len(out); i < len(c.Props); i++ {
		c.Props[i] = nil
	}
	c.Props = out
	return len(drop)
}

// Keep removes every property whose name is not in names.
func (c *Card) Keep(names map[string]bool) {
	out := c.Props[:0]
	for _, p := range c.Props {
		if names[p.Name] {
			out = append(out, p)
		}
	}
	c.Props = out
}

// Version returns the VERSION value.
func (c *Card) Version() string {
	return strings.TrimSpace(c.Value("VERSION"))
}

// DocType returns the document type derived from VERSION.
func (c *Card) DocType() DocType {
	return DocTypeOf(c.Version())
}

// Clone returns a deep copy of c.
func (c *Card) Clone() *Card {
	out := &Card{Kind: c.Kind, Props: make([]*Property, len(c.Props))}
	for i, p := range c.Props {
		out.Props[i] = p.Clone()
	}
	for _, sub := range c.Components {
		out.Components = append(out.Components, sub.Clone())
	}
	return out
}

func containsProp(list []*Property, p *Property) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}
