package domain

import (
	"fmt"
	"strings"
)

// QueryMarker prefixes patterns that are tested against the query string
// instead of the request address.
const QueryMarker = "query:"

// Rule binds a wildcard pattern to a Mode.
//
// Patterns without QueryMarker are address patterns (e.g. "10.0.*.*");
// patterns with it are query patterns (e.g. "query:*token=*").
type Rule struct {
	Pattern string
	Mode    Mode
}

// NewRule constructs a Rule and validates its fields.
func NewRule(pattern string, mode Mode) (Rule, error) {
	r := Rule{Pattern: pattern, Mode: mode}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks the rule for a non-empty pattern and a supported mode.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("rule pattern must not be empty")
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("unsupported mode %q for pattern %q", r.Mode, r.Pattern)
	}
	return nil
}

// IsQuery reports whether the pattern targets the query string.
func (r Rule) IsQuery() bool { return IsQueryPattern(r.Pattern) }

// IsQueryPattern reports whether pattern carries QueryMarker.
func IsQueryPattern(pattern string) bool {
	return strings.HasPrefix(pattern, QueryMarker)
}

// QueryPattern returns a query pattern with the marker added.
func QueryPattern(sub string) string {
	return QueryMarker + sub
}
