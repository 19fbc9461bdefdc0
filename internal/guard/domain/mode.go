package domain

import (
	"fmt"
	"strings"
)

// Mode is the outcome a rule assigns to a matching request.
type Mode string

const (
	// ModeAllow lets a matching request through.
	ModeAllow Mode = "allow"
	// ModeDeny rejects a matching request.
	ModeDeny Mode = "deny"
)

// ModeDefault is the decision mode reported when no rule matched and the
// registry's default mode was applied.
const ModeDefault = "default"

// ParseMode converts a string into a Mode. Accepts "allow" and "deny"
// (case-insensitive, surrounding whitespace ignored).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAllow:
		return ModeAllow, nil
	case ModeDeny:
		return ModeDeny, nil
	default:
		return "", fmt.Errorf("unsupported mode: %q", s)
	}
}

// Valid reports whether m is ModeAllow or ModeDeny.
func (m Mode) Valid() bool {
	return m == ModeAllow || m == ModeDeny
}

// Allows reports whether the mode lets a request through.
func (m Mode) Allows() bool { return m == ModeAllow }

func (m Mode) String() string { return string(m) }
