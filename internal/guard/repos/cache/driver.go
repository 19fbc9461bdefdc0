// Package cache defines the pluggable key/value store used to memoize
// decisions, together with the entry encoding and key derivation shared by
// every driver implementation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

// DefaultTTL is how long a decision stays cached unless configured otherwise.
const DefaultTTL = 60 * time.Second

// Driver is a key/value store with per-entry TTL. Drivers never own decision
// logic and the engine tolerates any entry disappearing before its TTL.
//
// Get reports a missing key as (zero, false, nil); an unreachable backend is
// reported as a *domain.CacheConnectionError on first use.
type Driver interface {
	Name() string
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (domain.Decision, bool, error)
	Set(ctx context.Context, key string, d domain.Decision, ttl time.Duration) (bool, error)
}

// entry is the wire form of a decision. The explicit object keeps a cached
// false distinct from an absent key in text-oriented backends.
type entry struct {
	Allowed bool   `json:"allowed"`
	Pattern string `json:"pattern"`
	Mode    string `json:"mode"`
}

// Encode serializes a decision for storage.
func Encode(d domain.Decision) ([]byte, error) {
	return json.Marshal(entry{Allowed: d.Allowed, Pattern: d.Pattern, Mode: d.Mode})
}

// Decode parses a stored decision. Payloads that are not a decision object
// (including bare booleans) are rejected.
func Decode(b []byte) (domain.Decision, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return domain.Decision{}, fmt.Errorf("decode cached decision: %w", err)
	}
	if _, ok := raw["allowed"]; !ok {
		return domain.Decision{}, fmt.Errorf("decode cached decision: missing allowed field")
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return domain.Decision{}, fmt.Errorf("decode cached decision: %w", err)
	}
	return domain.Decision{Allowed: e.Allowed, Pattern: e.Pattern, Mode: e.Mode}, nil
}

const keyPrefix = "rr-guard:"

// defaultSentinel stands in for the pattern of decisions made by the default
// mode. '@' cannot start an imported address pattern.
const defaultSentinel = "@default"

// PatternKey returns the key under which the decision produced by pattern is
// stored. An empty pattern (default decision) maps to a fixed sentinel key.
func PatternKey(pattern string) string {
	if pattern == "" {
		pattern = defaultSentinel
	}
	return keyPrefix + "pattern:" + pattern
}

// ContextKey returns the lookup key derived from a request context. Both
// parts are quoted so no two distinct contexts share a key.
func ContextKey(ctx domain.RequestContext) string {
	return keyPrefix + "context:" + strconv.Quote(ctx.Address) + ":" + strconv.Quote(ctx.Query)
}
