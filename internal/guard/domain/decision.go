package domain

import "time"

// RequestContext is the already-resolved origin of a request. It is treated
// as immutable for the lifetime of a decision engine.
type RequestContext struct {
	Address string
	Query   string
}

// Decision is the outcome of evaluating a RequestContext against the rules.
// Pure value type.
type Decision struct {
	Allowed bool   // final verdict before any callback override
	Pattern string // pattern that matched, empty when the default applied
	Mode    string // "allow", "deny" or "default"
}

// MatchedDecision builds the decision for a rule that matched.
func MatchedDecision(r Rule) Decision {
	return Decision{Allowed: r.Mode.Allows(), Pattern: r.Pattern, Mode: r.Mode.String()}
}

// DefaultDecision builds the fallback decision for the given default mode.
func DefaultDecision(m Mode) Decision {
	return Decision{Allowed: m.Allows(), Pattern: "", Mode: ModeDefault}
}

// IsDefault reports whether no rule matched.
func (d Decision) IsDefault() bool { return d.Mode == ModeDefault }

// CacheEntry is a decision stored in a cache driver under Key for TTL.
type CacheEntry struct {
	Key      string
	Decision Decision
	TTL      time.Duration
}
