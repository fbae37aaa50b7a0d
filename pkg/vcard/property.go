package vcard

import "strings"

// Param is a named property parameter. Names are stored upper-case.
type Param struct {
	Name   string
	Values []string
}

// Value joins all parameter values with commas.
func (p Param) Value() string {
	return strings.Join(p.Values, ",")
}

// Property is one content line of a card.
type Property struct {
	Group  string
	Name   string
	Params []Param
	// Raw is the escaped value as it appears on the wire after unfolding.
	Raw string
}

// NewProperty builds a property and stores value with the escaping its
// value kind requires.
func NewProperty(name, value string) *Property {
	p := &Property{Name: strings.ToUpper(name)}
	p.SetValue(value)
	return p
}

// FullName returns the property name prefixed with its group, if any.
func (p *Property) FullName() string {
	if p.Group == "" {
		return p.Name
	}
	return p.Group + "." + p.Name
}

// Param returns the named parameter.
func (p *Property) Param(name string) (Param, bool) {
	name = strings.ToUpper(name)
	for _, prm := range p.Params {
		if prm.Name == name {
			return prm, true
		}
	}
	return Param{}, false
}

// HasParam reports whether the named parameter is present.
func (p *Property) HasParam(name string) bool {
	_, ok := p.Param(name)
	return ok
}

// ParamValue returns the comma-joined values of the named parameter, or ""
// when it is absent.
func (p *Property) ParamValue(name string) string {
	prm, ok := p.Param(name)
	if !ok {
		return ""
	}
	return prm.Value()
}

// SetParam replaces the named parameter, appending it when absent.
func (p *Property) SetParam(name string, values ...string) {
	name = strings.ToUpper(name)
	vals := append([]string(nil), values...)
	for i := range p.Params {
		if p.Params[i].Name == name {
			p.Params[i].Values = vals
			return
		}
	}
	p.Params = append(p.Params, Param{Name: name, Values: vals})
}

// AddParamValue appends value to the named parameter, creating it if needed.
func (p *Property) AddParamValue(name, value string) {
	name = strings.ToUpper(name)
	for i := range p.Params {
		if p.Params[i].Name == name {
			p.Params[i].Values = append(p.Params[i].Values, value)
			return
		}
	}
	p.Params = append(p.Params, Param{Name: name, Values: []string{value}})
}

// DelParam removes the named parameter.
func (p *Property) DelParam(name string) {
	name = strings.ToUpper(name)
	out := p.Params[:0]
	for _, prm := range p.Params {
		if prm.Name != name {
			out = append(out, prm)
		}
	}
	p.Params = out
}

// HasType reports whether the TYPE parameter contains t, ignoring case.
func (p *Property) HasType(t string) bool {
	prm, ok := p.Param("TYPE")
	if !ok {
		return false
	}
	for _, v := range prm.Values {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), t) {
				return true
			}
		}
	}
	return false
}

// ValueKind returns the encoding of the property value, honouring the VALUE
// and ENCODING parameters.
func (p *Property) ValueKind() ValueKind {
	def := DefaultValueKind(p.Name)
	switch strings.ToUpper(p.ParamValue("VALUE")) {
	case "":
	case "URI", "URL":
		return ValueURI
	case "DATE", "TIME", "DATE-TIME", "DATE-AND-OR-TIME":
		return ValueDateAndOrTime
	case "TIMESTAMP":
		return ValueTimestamp
	case "BINARY":
		return ValueBinary
	case "TEXT":
		if def == ValueStructured || def == ValueList {
			return def
		}
		return ValueText
	}
	switch strings.ToUpper(p.ParamValue("ENCODING")) {
	case "B", "BASE64":
		return ValueBinary
	}
	return def
}

// Parts returns the decoded components of the value. Structured values split
// on ';', list values on ','. Every other kind yields a single part.
func (p *Property) Parts() []string {
	var segs []string
	switch p.ValueKind() {
	case ValueStructured:
		segs = splitRaw(p.Raw, ';')
	case ValueList:
		segs = splitRaw(p.Raw, ',')
	case ValueText:
		return []string{UnescapeText(p.Raw)}
	default:
		return []string{p.Raw}
	}
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = UnescapeText(s)
	}
	return out
}

// Value returns the decoded value for single-part properties. Multi-part
// values are returned in their raw wire form.
func (p *Property) Value() string {
	switch p.ValueKind() {
	case ValueText:
		return UnescapeText(p.Raw)
	case ValueStructured, ValueList:
		parts := p.Parts()
		if len(parts) == 1 {
			return parts[0]
		}
		return p.Raw
	default:
		return p.Raw
	}
}

// SetValue stores v, escaping it when the value kind is textual.
func (p *Property) SetValue(v string) {
	if p.ValueKind().escaped() {
		p.Raw = EscapeText(v)
		return
	}
	p.Raw = v
}

// SetParts stores the given components joined by the delimiter of the value
// kind.
func (p *Property) SetParts(parts ...string) {
	kind := p.ValueKind()
	if !kind.escaped() {
		p.Raw = strings.Join(parts, ",")
		return
	}
	escaped := make([]string, len(parts))
	for i, s := range parts {
		escaped[i] = EscapeText(s)
	}
	switch kind {
	case ValueStructured:
		p.Raw = strings.Join(escaped, ";")
	default:
		p.Raw = strings.Join(escaped, ",")
	}
}

// Clone returns a deep copy of p.
func (p *Property) Clone() *Property {
	out := *p
	out.Params = make([]Param, len(p.Params))
	for i, prm := range p.Params {
		out.Params[i] = Param{Name: prm.Name, Values: append([]string(nil), prm.Values...)}
	}
	return &out
}
