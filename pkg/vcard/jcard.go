package vcard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/r9s-ai/cardq/pkg/jsonutil"
	"github.com/xeipuuv/gojsonschema"
)

const jcardSchema = `{
  "type": "array",
  "minItems": 2,
  "items": [
    {"type": "string", "minLength": 1},
    {"type": "array", "items": {"$ref": "#/definitions/property"}}
  ],
  "additionalItems": {"type": "array"},
  "definitions": {
    "property": {
      "type": "array",
      "minItems": 4,
      "items": [
        {"type": "string", "minLength": 1},
        {"type": "object"},
        {"type": "string", "minLength": 1}
      ]
    }
  }
}`

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(jcardSchema))
})

// ParseJSON parses a jCard document. The document shape is checked against
// a JSON schema before properties are decoded.
func ParseJSON(data []byte) (*Card, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("vcard: load jcard schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &ParseError{Msg: "invalid json: " + err.Error()}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &ParseError{Msg: "invalid jcard: " + strings.Join(msgs, "; ")}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc []any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Msg: "invalid json: " + err.Error()}
	}
	return componentFromJSON(doc)
}

func componentFromJSON(doc []any) (*Card, error) {
	if len(doc) < 2 {
		return nil, &ParseError{Msg: "jcard component needs a name and a property list"}
	}
	name, ok := doc[0].(string)
	if !ok || name == "" {
		return nil, &ParseError{Msg: "jcard component name must be a string"}
	}
	props, ok := doc[1].([]any)
	if !ok {
		return nil, &ParseError{Msg: "jcard property list must be an array"}
	}
	c := &Card{Kind: strings.ToUpper(name)}
	for i, item := range props {
		arr, ok := item.([]any)
		if !ok {
			return nil, &ParseError{Msg: fmt.Sprintf("jcard property %d must be an array", i)}
		}
		p, err := propertyFromJSON(arr)
		if err != nil {
			return nil, err
		}
		c.Props = append(c.Props, p)
	}
	if len(doc) > 2 {
		subs, ok := doc[2].([]any)
		if !ok {
			return nil, &ParseError{Msg: "jcard component list must be an array"}
		}
		for _, s := range subs {
			arr, ok := s.([]any)
			if !ok {
				return nil, &ParseError{Msg: "jcard component must be an array"}
			}
			sub, err := componentFromJSON(arr)
			if err != nil {
				return nil, err
			}
			c.Components = append(c.Components, sub)
		}
	}
	return c, nil
}

func propertyFromJSON(arr []any) (*Property, error) {
	if len(arr) < 4 {
		return nil, &ParseError{Msg: "jcard property needs name, parameters, type and value"}
	}
	name, _ := arr[0].(string)
	params, okParams := arr[1].(map[string]any)
	typ, _ := arr[2].(string)
	if name == "" || !okParams || typ == "" {
		return nil, &ParseError{Msg: fmt.Sprintf("malformed jcard property %v", arr[0])}
	}
	p := &Property{Name: strings.ToUpper(name)}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, "group") {
			p.Group = jsonutil.CoerceString(params[k])
			continue
		}
		p.Params = append(p.Params, Param{Name: strings.ToUpper(k), Values: jsonutil.CoerceStrings(params[k])})
	}
	typ = strings.ToLower(typ)
	if typ != "unknown" && typ != defaultJSONType(p.Name) {
		p.SetParam("VALUE", strings.ToUpper(typ))
	}
	p.Raw = rawFromJSON(p.ValueKind(), typ, arr[3:])
	return p, nil
}

func rawFromJSON(kind ValueKind, typ string, values []any) string {
	switch kind {
	case ValueStructured:
		comps := values
		if len(values) == 1 {
			if arr, ok := values[0].([]any); ok {
				comps = arr
			}
		}
		out := make([]string, len(comps))
		for i, comp := range comps {
			if items, ok := comp.([]any); ok {
				esc := make([]string, len(items))
				for j, it := range items {
					esc[j] = EscapeText(jsonutil.CoerceString(it))
				}
				out[i] = strings.Join(esc, ",")
				continue
			}
			out[i] = EscapeText(jsonutil.CoerceString(comp))
		}
		return strings.Join(out, ";")
	case ValueText, ValueList:
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = EscapeText(jsonutil.CoerceString(v))
		}
		return strings.Join(out, ",")
	}
	out := make([]string, len(values))
	for i, v := range values {
		s := jsonutil.CoerceString(v)
		switch typ {
		case "date", "time", "date-time", "date-and-or-time", "timestamp":
			s = dateFromJSON(s)
		}
		out[i] = s
	}
	return strings.Join(out, ",")
}

func defaultJSONType(name string) string {
	switch DefaultValueKind(name) {
	case ValueText, ValueStructured, ValueList:
		return "text"
	case ValueURI:
		return "uri"
	case ValueDateAndOrTime:
		return "date-and-or-time"
	case ValueTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

func (p *Property) jsonType() string {
	if v := p.ParamValue("VALUE"); v != "" {
		return strings.ToLower(v)
	}
	if p.ValueKind() == ValueBinary {
		return "binary"
	}
	return defaultJSONType(p.Name)
}

// MarshalJSON encodes c as a jCard document.
func (c *Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.jsonValue())
}

func (c *Card) jsonValue() []any {
	props := make([]any, 0, len(c.Props))
	for _, p := range c.ordered() {
		props = append(props, p.jsonValue())
	}
	out := []any{strings.ToLower(c.Kind), props}
	if len(c.Components) > 0 {
		subs := make([]any, 0, len(c.Components))
		for _, sub := range c.Components {
			subs = append(subs, sub.jsonValue())
		}
		out = append(out, subs)
	}
	return out
}

func (p *Property) jsonValue() []any {
	params := map[string]any{}
	if p.Group != "" {
		params["group"] = p.Group
	}
	for _, prm := range p.Params {
		if prm.Name == "VALUE" {
			continue
		}
		key := strings.ToLower(prm.Name)
		switch len(prm.Values) {
		case 0:
			params[key] = ""
		case 1:
			params[key] = prm.Values[0]
		default:
			params[key] = append([]string(nil), prm.Values...)
		}
	}
	out := []any{strings.ToLower(p.Name), params, p.jsonType()}
	switch p.ValueKind() {
	case ValueStructured:
		comps := splitRaw(p.Raw, ';')
		vals := make([]any, len(comps))
		for i, comp := range comps {
			items := splitRaw(comp, ',')
			if len(items) == 1 {
				vals[i] = UnescapeText(comp)
				continue
			}
			sub := make([]any, len(items))
			for j, it := range items {
				sub[j] = UnescapeText(it)
			}
			vals[i] = sub
		}
		if len(vals) == 1 {
			return append(out, vals[0])
		}
		return append(out, vals)
	case ValueList:
		for _, it := range splitRaw(p.Raw, ',') {
			out = append(out, UnescapeText(it))
		}
		return out
	case ValueText:
		return append(out, UnescapeText(p.Raw))
	case ValueDateAndOrTime, ValueTimestamp:
		for _, v := range strings.Split(p.Raw, ",") {
			out = append(out, dateToJSON(v))
		}
		return out
	default:
		return append(out, p.Raw)
	}
}
