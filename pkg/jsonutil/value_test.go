package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestCoerceString_Scalars(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"x", "x"},
		{json.Number("12.50"), "12.50"},
		{float64(3), "3"},
		{1.25, "1.25"},
		{7, "7"},
		{int64(-2), "-2"},
		{true, "true"},
		{map[string]any{}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := CoerceString(tc.in); got != tc.want {
			t.Fatalf("CoerceString(%#v)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCoerceStrings_ArrayAndScalar(t *testing.T) {
	got := CoerceStrings([]any{"home", json.Number("1"), false})
	if len(got) != 3 || got[0] != "home" || got[1] != "1" || got[2] != "false" {
		t.Fatalf("array got %#v", got)
	}
	if got := CoerceStrings("work"); len(got) != 1 || got[0] != "work" {
		t.Fatalf("scalar got %#v", got)
	}
	if got := CoerceStrings(nil); got != nil {
		t.Fatalf("nil got %#v", got)
	}
}
