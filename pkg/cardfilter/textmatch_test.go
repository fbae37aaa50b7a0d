package cardfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextMatch_CaseInsensitiveContains(t *testing.T) {
	tm := TextMatch{Value: "smith", MatchType: Contains, Collation: CollationASCIICasemap}
	assert.True(t, tm.Match("John SMITH"))
	tm.Negate = true
	assert.False(t, tm.Match("John SMITH"))
}

func TestTextMatch_MatchTypes(t *testing.T) {
	tests := []struct {
		mt       MatchType
		haystack string
		want     bool
	}{
		{Equals, "abc", true},
		{Equals, "abcd", false},
		{Contains, "xabcx", true},
		{StartsWith, "abcdef", true},
		{StartsWith, "xabc", false},
		{EndsWith, "xxabc", true},
		{EndsWith, "abcx", false},
	}
	for _, tc := range tests {
		tm := TextMatch{Value: "abc", MatchType: tc.mt, Collation: CollationOctet}
		assert.Equal(t, tc.want, tm.Match(tc.haystack), "%s %q", tc.mt, tc.haystack)
	}
}

func TestTextMatch_Collations(t *testing.T) {
	octet := TextMatch{Value: "abc", MatchType: Equals, Collation: CollationOctet}
	assert.False(t, octet.Match("ABC"))

	ascii := TextMatch{Value: "élan", MatchType: Equals, Collation: CollationASCIICasemap}
	assert.True(t, ascii.Match("éLAN"))
	assert.False(t, ascii.Match("ÉLAN"))

	unicode := TextMatch{Value: "élan", MatchType: Equals, Collation: CollationUnicodeCasemap}
	assert.True(t, unicode.Match("ÉLAN"))

	// unset collation behaves like i;unicode-casemap
	def := TextMatch{Value: "élan", MatchType: Equals}
	assert.True(t, def.Match("ÉLAN"))
}

func TestTextMatch_NegationLaw(t *testing.T) {
	inputs := []string{"", "a", "John SMITH", "ÉLAN", "xyz"}
	for _, s := range inputs {
		for _, v := range inputs {
			for _, mt := range []MatchType{Contains, Equals, StartsWith, EndsWith} {
				pos := TextMatch{Value: v, MatchType: mt}
				neg := pos
				neg.Negate = true
				assert.Equal(t, !pos.Match(s), neg.Match(s), "s=%q v=%q mt=%s", s, v, mt)
			}
		}
	}
}

func TestParseMatchTypeAndCollation(t *testing.T) {
	for in, want := range map[string]MatchType{"": Contains, "equals": Equals, "starts-with": StartsWith, "ends-with": EndsWith, "contains": Contains} {
		got, err := ParseMatchType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMatchType("regex")
	assert.Error(t, err)

	for _, c := range SupportedCollations {
		assert.NoError(t, ValidateCollation(c))
	}
	assert.Error(t, ValidateCollation("i;basic"))
}
