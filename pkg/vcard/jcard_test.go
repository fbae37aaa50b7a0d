package vcard

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMarshalJSON_Shape(t *testing.T) {
	in := "BEGIN:VCARD\r\nVERSION:4.0\r\nUID:u1\r\nFN:Jane\r\nN:Doe;Jane;;;\r\n" +
		"item2.EMAIL;TYPE=work,pref:jane@example.com\r\nBDAY:19850412\r\nCATEGORIES:a,b\r\nX-FOO:bar\\,baz\r\nEND:VCARD\r\n"
	c, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("parse err=%v", err)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal err=%v", err)
	}
	var doc []any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal err=%v", err)
	}
	if doc[0] != "vcard" {
		t.Fatalf("kind=%v", doc[0])
	}
	props := doc[1].([]any)
	got := map[string][]any{}
	for _, p := range props {
		arr := p.([]any)
		got[arr[0].(string)] = arr
	}
	if v := got["version"]; v[2] != "text" || v[3] != "4.0" {
		t.Fatalf("version=%v", v)
	}
	if v := got["n"]; len(v[3].([]any)) != 5 {
		t.Fatalf("n=%v", v)
	}
	email := got["email"]
	params := email[1].(map[string]any)
	if params["group"] != "item2" {
		t.Fatalf("group param=%v", params)
	}
	if types, ok := params["type"].([]any); !ok || len(types) != 2 {
		t.Fatalf("type param=%v", params["type"])
	}
	if v := got["bday"]; v[2] != "date-and-or-time" || v[3] != "1985-04-12" {
		t.Fatalf("bday=%v", v)
	}
	if v := got["categories"]; len(v) != 5 {
		t.Fatalf("categories=%v", v)
	}
	if v := got["x-foo"]; v[2] != "unknown" || v[3] != `bar\,baz` {
		t.Fatalf("x-foo=%v", v)
	}
}

func TestParseJSON_RoundTrip(t *testing.T) {
	in := `["vcard",[["version",{},"text","4.0"],["fn",{},"text","A, B"],` +
		`["n",{},"text",["Doe",["John","J"],"","",""]],["tel",{"type":["home","voice"]},"uri","tel:+1-555"],` +
		`["email",{"group":"item1"},"text","a@example.com"],["rev",{},"timestamp","2024-01-02T03:04:05Z"],["x-n",{},"integer",5]]]`
	c, fromJSON, err := Read([]byte(in))
	if err != nil {
		t.Fatalf("Read err=%v", err)
	}
	if !fromJSON {
		t.Fatalf("expected json detection")
	}
	if got := c.Get("FN").Raw; got != `A\, B` {
		t.Fatalf("fn raw=%q", got)
	}
	if got := c.Get("N").Raw; got != `Doe;John,J;;;` {
		t.Fatalf("n raw=%q", got)
	}
	tel := c.Get("TEL")
	if tel.ParamValue("VALUE") != "URI" || tel.Raw != "tel:+1-555" || tel.ValueKind() != ValueURI {
		t.Fatalf("tel=%#v", tel)
	}
	if c.Get("EMAIL").Group != "item1" {
		t.Fatalf("group lost")
	}
	if got := c.Get("REV").Raw; got != "20240102T030405Z" {
		t.Fatalf("rev raw=%q", got)
	}
	if got := c.Get("X-N"); got.ParamValue("VALUE") != "INTEGER" || got.Raw != "5" {
		t.Fatalf("x-n=%#v", got)
	}

	out, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal err=%v", err)
	}
	back, err := ParseJSON(out)
	if err != nil {
		t.Fatalf("reparse err=%v", err)
	}
	if string(back.Serialize()) != string(c.Serialize()) {
		t.Fatalf("jcard round trip changed card:\n%s\n%s", back.Serialize(), c.Serialize())
	}
}

func TestParseJSON_RejectsBadShape(t *testing.T) {
	for _, in := range []string{
		`[`,
		`["vcard"]`,
		`["vcard",[["fn",{},"text"]]]`,
		`["vcard",[[1,{},"text","x"]]]`,
		`{"vcard":[]}`,
	} {
		_, err := ParseJSON([]byte(in))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("ParseJSON(%s) err=%v, want *ParseError", in, err)
		}
	}
}

func TestRead_DetectsText(t *testing.T) {
	_, fromJSON, err := Read([]byte("\xef\xbb\xbf" + strings.ReplaceAll(sampleV3, "\r\n", "\n")))
	if err != nil || fromJSON {
		t.Fatalf("fromJSON=%v err=%v", fromJSON, err)
	}
}
