package vcard

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ParseError reports malformed input. Line is 1-based and zero when the
// error is not tied to a line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("vcard: line %d: %s", e.Line, e.Msg)
	}
	return "vcard: " + e.Msg
}

var utf8BOM = []byte("\xef\xbb\xbf")

// Read parses data as jCard when its first significant byte is '[' and as
// vCard text otherwise. fromJSON reports which encoding was used.
func Read(data []byte) (card *Card, fromJSON bool, err error) {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		card, err = ParseJSON(trimmed)
		return card, true, err
	}
	card, err = ParseText(data)
	return card, false, err
}

// Parse is Read without the encoding flag.
func Parse(data []byte) (*Card, error) {
	card, _, err := Read(data)
	return card, err
}

type logicalLine struct {
	text   string
	num    int
	qpSoft bool
}

// ParseText parses a single vCard text document. Nested components are
// accepted and kept in Components.
func ParseText(data []byte) (*Card, error) {
	var (
		root  *Card
		stack []*Card
	)
	for _, ln := range unfold(data) {
		if strings.TrimSpace(ln.text) == "" {
			continue
		}
		prop, err := parseLine(ln.text)
		if err != nil {
			return nil, &ParseError{Line: ln.num, Msg: err.Error()}
		}
		switch prop.Name {
		case "BEGIN":
			kind := strings.ToUpper(strings.TrimSpace(prop.Raw))
			if kind == "" {
				return nil, &ParseError{Line: ln.num, Msg: "BEGIN without component name"}
			}
			if root != nil && len(stack) == 0 {
				return nil, &ParseError{Line: ln.num, Msg: "unexpected data after END:" + root.Kind}
			}
			comp := &Card{Kind: kind}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Components = append(parent.Components, comp)
			} else {
				root = comp
			}
			stack = append(stack, comp)
			continue
		case "END":
			kind := strings.ToUpper(strings.TrimSpace(prop.Raw))
			if len(stack) == 0 {
				return nil, &ParseError{Line: ln.num, Msg: "END:" + kind + " without BEGIN"}
			}
			top := stack[len(stack)-1]
			if kind != top.Kind {
				return nil, &ParseError{Line: ln.num, Msg: fmt.Sprintf("END:%s does not close BEGIN:%s", kind, top.Kind)}
			}
			stack = stack[:len(stack)-1]
			continue
		}
		if len(stack) == 0 {
			if root == nil {
				return nil, &ParseError{Line: ln.num, Msg: "document must start with BEGIN"}
			}
			return nil, &ParseError{Line: ln.num, Msg: "unexpected data after END:" + root.Kind}
		}
		top := stack[len(stack)-1]
		top.Props = append(top.Props, prop)
	}
	if root == nil {
		return nil, &ParseError{Msg: "empty document"}
	}
	if len(stack) > 0 {
		return nil, &ParseError{Msg: "missing END:" + stack[len(stack)-1].Kind}
	}
	return root, nil
}

// unfold joins continuation lines (leading space or tab) and vCard 2.1
// quoted-printable soft line breaks.
func unfold(data []byte) []logicalLine {
	text := string(bytes.TrimPrefix(data, utf8BOM))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var out []logicalLine
	for i, l := range strings.Split(text, "\n") {
		n := len(out)
		if n > 0 && len(l) > 0 && (l[0] == ' ' || l[0] == '\t') {
			out[n-1].text += l[1:]
			continue
		}
		if n > 0 && out[n-1].qpSoft {
			out[n-1].text = strings.TrimSuffix(out[n-1].text, "=") + l
			out[n-1].qpSoft = isQPSoftBreak(out[n-1].text)
			continue
		}
		out = append(out, logicalLine{text: l, num: i + 1, qpSoft: isQPSoftBreak(l)})
	}
	return out
}

func isQPSoftBreak(line string) bool {
	if !strings.HasSuffix(line, "=") {
		return false
	}
	head, _, ok := strings.Cut(line, ":")
	return ok && strings.Contains(strings.ToUpper(head), "QUOTED-PRINTABLE")
}

func parseLine(s string) (*Property, error) {
	i := strings.IndexAny(s, ";:")
	if i < 0 {
		return nil, errors.New("content line without ':'")
	}
	if i == 0 {
		return nil, errors.New("content line without property name")
	}
	name := s[:i]
	p := &Property{}
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		p.Group, name = name[:dot], name[dot+1:]
	}
	if name == "" {
		return nil, errors.New("content line without property name")
	}
	p.Name = strings.ToUpper(name)
	rest := s[i:]
	for len(rest) > 0 && rest[0] == ';' {
		prm, n, err := parseParam(rest[1:])
		if err != nil {
			return nil, err
		}
		rest = rest[1+n:]
		if prm.Name == "" {
			continue
		}
		for _, v := range prm.Values {
			p.AddParamValue(prm.Name, v)
		}
		if len(prm.Values) == 0 && !p.HasParam(prm.Name) {
			p.Params = append(p.Params, prm)
		}
	}
	if len(rest) == 0 || rest[0] != ':' {
		return nil, fmt.Errorf("property %s: missing ':' before value", p.Name)
	}
	p.Raw = rest[1:]
	return p, nil
}

// parseParam parses one parameter and returns the number of bytes consumed.
// Bare parameters (vCard 2.1) are mapped to ENCODING or TYPE.
func parseParam(s string) (Param, int, error) {
	j := strings.IndexAny(s, "=;:")
	if j < 0 {
		return Param{}, 0, errors.New("unterminated parameter")
	}
	name := strings.ToUpper(strings.TrimSpace(s[:j]))
	if s[j] != '=' {
		if name == "" {
			return Param{}, j, nil
		}
		switch name {
		case "BASE64", "B", "QUOTED-PRINTABLE", "8BIT", "7BIT":
			return Param{Name: "ENCODING", Values: []string{name}}, j, nil
		default:
			return Param{Name: "TYPE", Values: []string{name}}, j, nil
		}
	}
	prm := Param{Name: name}
	pos := j + 1
	for {
		if pos < len(s) && s[pos] == '"' {
			end := strings.IndexByte(s[pos+1:], '"')
			if end < 0 {
				return Param{}, 0, fmt.Errorf("parameter %s: unterminated quoted value", name)
			}
			prm.Values = append(prm.Values, decodeCaret(s[pos+1:pos+1+end]))
			pos += end + 2
		} else {
			end := strings.IndexAny(s[pos:], ",;:")
			if end < 0 {
				return Param{}, 0, fmt.Errorf("parameter %s: unterminated value", name)
			}
			prm.Values = append(prm.Values, decodeCaret(s[pos:pos+end]))
			pos += end
		}
		if pos < len(s) && s[pos] == ',' {
			pos++
			continue
		}
		return prm, pos, nil
	}
}

// decodeCaret applies RFC 6868 parameter value decoding.
func decodeCaret(s string) string {
	if strings.IndexByte(s, '^') < 0 {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '^' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '^':
				b.WriteByte('^')
				i++
				continue
			case '\'':
				b.WriteByte('"')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func encodeCaret(s string) string {
	if !strings.ContainsAny(s, "^\n\"") {
		return s
	}
	r := strings.NewReplacer("^", "^^", "\n", "^n", "\"", "^'")
	return r.Replace(s)
}
