package status

import (
	"errors"
	"fmt"
	"strings"
)

// PairSeparator separates the two place names of a route ignore rule.
const PairSeparator = "<->"

// ErrInvalidIgnoreRule is returned for empty entries and half-empty pairs.
var ErrInvalidIgnoreRule = errors.New("invalid ignore rule")

// IgnoreRule excludes statuses either by id or by an unordered pair of
// place names.
type IgnoreRule struct {
	ID string
	A  string
	B  string
}

// IsPair reports whether the rule matches on place names.
func (r IgnoreRule) IsPair() bool {
	return r.ID == ""
}

// Matches reports whether s is excluded by the rule. Pairs match in either
// direction.
func (r IgnoreRule) Matches(s Status) bool {
	if !r.IsPair() {
		return r.ID == s.IDString()
	}

	origin, destination := s.Train.Origin.Name, s.Train.Destination.Name
	return (origin == r.A && destination == r.B) || (origin == r.B && destination == r.A)
}

func (r IgnoreRule) String() string {
	if r.IsPair() {
		return fmt.Sprintf("%s %s %s", r.A, PairSeparator, r.B)
	}
	return r.ID
}

// ParseIgnoreRule parses "12345" or "Berlin Hbf <-> Hamburg Hbf".
func ParseIgnoreRule(entry string) (IgnoreRule, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return IgnoreRule{}, fmt.Errorf("%w: empty entry", ErrInvalidIgnoreRule)
	}

	a, b, ok := strings.Cut(entry, PairSeparator)
	if !ok {
		return IgnoreRule{ID: entry}, nil
	}

	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return IgnoreRule{}, fmt.Errorf("%w: %q needs a place on both sides of %s", ErrInvalidIgnoreRule, entry, PairSeparator)
	}
	return IgnoreRule{A: a, B: b}, nil
}

// ParseIgnoreRules parses every entry, failing on the first invalid one.
func ParseIgnoreRules(entries []string) ([]IgnoreRule, error) {
	rules := make([]IgnoreRule, 0, len(entries))
	for i, entry := range entries {
		rule, err := ParseIgnoreRule(entry)
		if err != nil {
			return nil, fmt.Errorf("ignore[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
