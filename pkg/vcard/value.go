package vcard

import "strings"

// ValueKind describes how a property value is encoded on the wire.
type ValueKind int

const (
	ValueText ValueKind = iota
	// ValueStructured values are ';' separated components (N, ADR, ORG).
	ValueStructured
	// ValueList values are ',' separated (CATEGORIES, NICKNAME).
	ValueList
	ValueURI
	ValueDateAndOrTime
	ValueTimestamp
	ValueBinary
	// ValueUnknown covers extension and unrecognized properties. Their values
	// are never unescaped.
	ValueUnknown
)

var defaultKinds = map[string]ValueKind{
	"FN":          ValueText,
	"NOTE":        ValueText,
	"TITLE":       ValueText,
	"ROLE":        ValueText,
	"UID":         ValueText,
	"VERSION":     ValueText,
	"PRODID":      ValueText,
	"KIND":        ValueText,
	"TEL":         ValueText,
	"EMAIL":       ValueText,
	"LABEL":       ValueText,
	"MAILER":      ValueText,
	"NAME":        ValueText,
	"CLASS":       ValueText,
	"SORT-STRING": ValueText,
	"TZ":          ValueText,
	"LANG":        ValueText,
	"XML":         ValueText,
	"EXPERTISE":   ValueText,
	"HOBBY":       ValueText,
	"INTEREST":    ValueText,

	"N":            ValueStructured,
	"ADR":          ValueStructured,
	"ORG":          ValueStructured,
	"GENDER":       ValueStructured,
	"CLIENTPIDMAP": ValueStructured,

	"CATEGORIES": ValueList,
	"NICKNAME":   ValueList,

	"URL":           ValueURI,
	"SOURCE":        ValueURI,
	"FBURL":         ValueURI,
	"CALADRURI":     ValueURI,
	"CALURI":        ValueURI,
	"IMPP":          ValueURI,
	"MEMBER":        ValueURI,
	"RELATED":       ValueURI,
	"GEO":           ValueURI,
	"PHOTO":         ValueURI,
	"LOGO":          ValueURI,
	"SOUND":         ValueURI,
	"KEY":           ValueURI,
	"ORG-DIRECTORY": ValueURI,

	"BDAY":        ValueDateAndOrTime,
	"ANNIVERSARY": ValueDateAndOrTime,

	"REV": ValueTimestamp,
}

// DefaultValueKind returns the value kind a property has when no VALUE or
// ENCODING parameter overrides it.
func DefaultValueKind(name string) ValueKind {
	if k, ok := defaultKinds[strings.ToUpper(name)]; ok {
		return k
	}
	return ValueUnknown
}

func (k ValueKind) escaped() bool {
	return k == ValueText || k == ValueStructured || k == ValueList
}

// EscapeText escapes backslash, comma, semicolon and newline for use in a
// text property value.
func EscapeText(s string) string {
	if !strings.ContainsAny(s, "\\,;\n\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case ',':
			b.WriteString(`\,`)
		case ';':
			b.WriteString(`\;`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				continue
			}
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// UnescapeText reverses EscapeText. Unknown escape sequences are kept as-is.
func UnescapeText(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch next {
		case 'n', 'N':
			b.WriteByte('\n')
		case '\\', ',', ';', ':':
			b.WriteByte(next)
		default:
			b.WriteByte('\\')
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}

// splitRaw splits an escaped value on sep, ignoring escaped separators.
// The returned segments are still escaped.
func splitRaw(raw string, sep byte) []string {
	out := make([]string, 0, 4)
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			i++
		case sep:
			out = append(out, raw[start:i])
			start = i + 1
		}
	}
	return append(out, raw[start:])
}
