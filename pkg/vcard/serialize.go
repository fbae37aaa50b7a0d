package vcard

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

const foldWidth = 75

// Serialize encodes c as vCard text with CRLF line endings. Lines longer
// than 75 octets are folded without splitting UTF-8 sequences. VERSION is
// written first; other properties keep their order.
func (c *Card) Serialize() []byte {
	var b bytes.Buffer
	c.writeTo(&b)
	return b.Bytes()
}

func (c *Card) String() string {
	return string(c.Serialize())
}

func (c *Card) writeTo(b *bytes.Buffer) {
	writeFolded(b, "BEGIN:"+c.Kind)
	for _, p := range c.ordered() {
		writeFolded(b, p.line())
	}
	for _, sub := range c.Components {
		sub.writeTo(b)
	}
	writeFolded(b, "END:"+c.Kind)
}

func (c *Card) ordered() []*Property {
	out := make([]*Property, 0, len(c.Props))
	for _, p := range c.Props {
		if p.Name == "VERSION" {
			out = append(out, p)
		}
	}
	for _, p := range c.Props {
		if p.Name != "VERSION" {
			out = append(out, p)
		}
	}
	return out
}

func (p *Property) line() string {
	var sb strings.Builder
	if p.Group != "" {
		sb.WriteString(p.Group)
		sb.WriteByte('.')
	}
	sb.WriteString(p.Name)
	for _, prm := range p.Params {
		sb.WriteByte(';')
		sb.WriteString(prm.Name)
		if len(prm.Values) == 0 {
			continue
		}
		sb.WriteByte('=')
		for i, v := range prm.Values {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(quoteParam(v))
		}
	}
	sb.WriteByte(':')
	sb.WriteString(p.Raw)
	return sb.String()
}

func quoteParam(v string) string {
	v = encodeCaret(v)
	if strings.ContainsAny(v, ",;:") {
		return `"` + v + `"`
	}
	return v
}

func writeFolded(b *bytes.Buffer, line string) {
	width := foldWidth
	for len(line) > width {
		cut := width
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = width
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// the leading space of a continuation line counts toward the limit
		width = foldWidth - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}
