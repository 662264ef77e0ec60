// Package classifier maps free-text VRM descriptions onto canonical state fields.
//
// Each table is an ordered list of rules evaluated top to bottom against the
// lower-cased description. The first match wins, so the most specific phrase
// is listed first.
package classifier

import (
	"strings"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// Predicate tests a lower-cased, trimmed description.
type Predicate func(desc string) bool

type Rule struct {
	Field model.Field
	Match Predicate
}

type Table struct {
	Name  string
	Kind  model.DeviceKind
	Rules []Rule
}

// Classify returns the field for a description, false when no rule matches.
func (t Table) Classify(description string) (model.Field, bool) {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		return "", false
	}
	for _, r := range t.Rules {
		if r.Match(desc) {
			return r.Field, true
		}
	}
	return "", false
}

// ClassifyRecord classifies a record, never assigning a field to a record without a value.
func (t Table) ClassifyRecord(r model.DiagnosticRecord) (model.Field, bool) {
	if !r.HasValue() {
		return "", false
	}
	return t.Classify(r.Description)
}

func contains(phrase string) Predicate {
	return func(desc string) bool {
		return strings.Contains(desc, phrase)
	}
}

func equals(phrase string) Predicate {
	return func(desc string) bool {
		return desc == phrase
	}
}

func anyOf(ps ...Predicate) Predicate {
	return func(desc string) bool {
		for _, p := range ps {
			if p(desc) {
				return true
			}
		}
		return false
	}
}

func allOf(ps ...Predicate) Predicate {
	return func(desc string) bool {
		for _, p := range ps {
			if !p(desc) {
				return false
			}
		}
		return true
	}
}

func not(p Predicate) Predicate {
	return func(desc string) bool {
		return !p(desc)
	}
}

func containsAny(phrases ...string) Predicate {
	ps := make([]Predicate, 0, len(phrases))
	for _, phrase := range phrases {
		ps = append(ps, contains(phrase))
	}
	return anyOf(ps...)
}

func rule(field model.Field, p Predicate) Rule {
	return Rule{Field: field, Match: p}
}
