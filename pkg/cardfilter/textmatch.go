package cardfilter

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Supported collations.
const (
	CollationASCIICasemap   = "i;ascii-casemap"
	CollationOctet          = "i;octet"
	CollationUnicodeCasemap = "i;unicode-casemap"
)

// DefaultCollation is used when a text-match does not name one.
const DefaultCollation = CollationUnicodeCasemap

// SupportedCollations lists the collations accepted by ValidateCollation,
// in the order they are advertised.
var SupportedCollations = []string{CollationASCIICasemap, CollationOctet, CollationUnicodeCasemap}

// ValidateCollation returns an error for collations the evaluator does not
// implement.
func ValidateCollation(c string) error {
	for _, s := range SupportedCollations {
		if c == s {
			return nil
		}
	}
	return fmt.Errorf("collation %q is not supported", c)
}

// MatchType selects the comparison of a text-match.
type MatchType int

const (
	Contains MatchType = iota
	Equals
	StartsWith
	EndsWith
)

func (m MatchType) String() string {
	switch m {
	case Equals:
		return "equals"
	case StartsWith:
		return "starts-with"
	case EndsWith:
		return "ends-with"
	default:
		return "contains"
	}
}

// ParseMatchType maps the match-type attribute. An empty value means
// contains.
func ParseMatchType(s string) (MatchType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "contains":
		return Contains, nil
	case "equals":
		return Equals, nil
	case "starts-with":
		return StartsWith, nil
	case "ends-with":
		return EndsWith, nil
	default:
		return Contains, fmt.Errorf("unknown match-type %q", s)
	}
}

// TextMatch compares a property or parameter value with Value.
type TextMatch struct {
	Value     string
	Collation string
	MatchType MatchType
	Negate    bool
}

// Match compares haystack with the text-match, applying negation.
func (tm TextMatch) Match(haystack string) bool {
	return tm.compare(haystack) != tm.Negate
}

// matchAny succeeds when any haystack matches. Negation applies to the
// aggregate, not to each value.
func (tm TextMatch) matchAny(haystacks []string) bool {
	ok := false
	for _, h := range haystacks {
		if tm.compare(h) {
			ok = true
			break
		}
	}
	return ok != tm.Negate
}

func (tm TextMatch) compare(haystack string) bool {
	needle := tm.Value
	switch tm.Collation {
	case CollationOctet:
	case CollationASCIICasemap:
		haystack, needle = asciiUpper(haystack), asciiUpper(needle)
	default:
		// a Caser keeps state and must not be shared between goroutines
		upper := cases.Upper(language.Und)
		haystack, needle = upper.String(haystack), upper.String(needle)
	}
	switch tm.MatchType {
	case Equals:
		return haystack == needle
	case StartsWith:
		return strings.HasPrefix(haystack, needle)
	case EndsWith:
		return strings.HasSuffix(haystack, needle)
	default:
		return strings.Contains(haystack, needle)
	}
}

func asciiUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
