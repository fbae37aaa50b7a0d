// Package cardfilter evaluates addressbook-query filters against cards.
package cardfilter

import (
	"fmt"
	"strings"

	"github.com/r9s-ai/cardq/pkg/vcard"
)

// Test combines the results of several sub-filters.
type Test int

const (
	AnyOf Test = iota
	AllOf
)

func (t Test) String() string {
	if t == AllOf {
		return "allof"
	}
	return "anyof"
}

// ParseTest maps the test attribute. An empty value means anyof.
func ParseTest(s string) (Test, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "anyof":
		return AnyOf, nil
	case "allof":
		return AllOf, nil
	default:
		return AnyOf, fmt.Errorf("the test attribute must either hold \"anyof\" or \"allof\", got %q", s)
	}
}

// ParamFilter constrains one parameter of the enclosing property.
type ParamFilter struct {
	Name         string
	IsNotDefined bool
	TextMatch    *TextMatch
}

// PropertyFilter constrains one property by name.
type PropertyFilter struct {
	Name         string
	IsNotDefined bool
	Test         Test
	ParamFilters []ParamFilter
	TextMatches  []TextMatch
}

// FilterSet is the top-level filter of a query.
type FilterSet struct {
	Test    Test
	Filters []PropertyFilter
}

// Empty reports whether the set has no property filters, in which case
// every card matches.
func (fs FilterSet) Empty() bool {
	return len(fs.Filters) == 0
}

// Matches reports whether card satisfies fs. An empty set matches every
// card.
func Matches(card *vcard.Card, fs FilterSet) bool {
	if fs.Empty() {
		return true
	}
	return validateFilters(card, fs.Filters, fs.Test)
}

// MatchesData parses data and evaluates fs against it. An empty filter set
// matches without parsing.
func MatchesData(data []byte, fs FilterSet) (bool, error) {
	if fs.Empty() {
		return true, nil
	}
	card, err := vcard.Parse(data)
	if err != nil {
		return false, err
	}
	return validateFilters(card, fs.Filters, fs.Test), nil
}

// decided short-circuits a fold: anyof stops on the first success, allof on
// the first failure.
func decided(test Test, ok bool) bool {
	return (test == AnyOf && ok) || (test == AllOf && !ok)
}

// validateFilters folds property filters. A fold that completes without
// short-circuiting yields test == AllOf.
func validateFilters(card *vcard.Card, filters []PropertyFilter, test Test) bool {
	for _, f := range filters {
		found := card.Select(f.Name)
		defined := len(found) > 0
		var ok bool
		switch {
		case f.IsNotDefined:
			ok = !defined
		case !defined || (len(f.ParamFilters) == 0 && len(f.TextMatches) == 0):
			ok = defined
		default:
			var results []bool
			if len(f.ParamFilters) > 0 {
				results = append(results, validateParamFilters(found, f.ParamFilters, f.Test))
			}
			if len(f.TextMatches) > 0 {
				results = append(results, validateTextMatches(propertyTexts(found), f.TextMatches, f.Test))
			}
			ok = results[0]
			if len(results) == 2 {
				if f.Test == AnyOf {
					ok = results[0] || results[1]
				} else {
					ok = results[0] && results[1]
				}
			}
		}
		if decided(test, ok) {
			return ok
		}
	}
	return test == AllOf
}

func validateParamFilters(props []*vcard.Property, filters []ParamFilter, test Test) bool {
	for _, f := range filters {
		defined := false
		for _, p := range props {
			if p.HasParam(f.Name) {
				defined = true
				break
			}
		}
		var ok bool
		switch {
		case f.IsNotDefined:
			ok = !defined
		case f.TextMatch == nil || !defined:
			ok = defined
		default:
			var texts []string
			for _, p := range props {
				if prm, has := p.Param(f.Name); has {
					texts = append(texts, prm.Value())
				}
			}
			ok = f.TextMatch.matchAny(texts)
		}
		if decided(test, ok) {
			return ok
		}
	}
	return test == AllOf
}

func validateTextMatches(texts []string, matches []TextMatch, test Test) bool {
	for _, tm := range matches {
		if ok := tm.matchAny(texts); decided(test, ok) {
			return ok
		}
	}
	return test == AllOf
}

func propertyTexts(props []*vcard.Property) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.Value()
	}
	return out
}
