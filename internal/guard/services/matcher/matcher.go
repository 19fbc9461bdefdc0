// Package matcher turns wildcard rule patterns into match tests against a
// request's address or query string.
//
// Address patterns escape every regular expression metacharacter except '*',
// which matches any substring. Query patterns (prefixed with the query
// marker) only escape '/', and are tried both with a literal '/' and with its
// percent-encoded form "%2F" so raw and encoded query strings match alike.
// Matching is an unanchored search.
package matcher

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// DefaultCacheSize bounds the number of compiled expressions kept in memory.
const DefaultCacheSize = 1024

const anySubstring = "(.*)"

// compiled is a memoized translation. re is nil when the pattern does not
// compile, so malformed patterns are not retried on every request.
type compiled struct {
	re *regexp.Regexp
}

// Matcher tests rule patterns against a RequestContext. It is safe for
// concurrent use.
type Matcher struct {
	cache  *lru.Cache[string, compiled]
	logger logpkg.Logger
}

// New returns a Matcher that memoizes up to size compiled patterns. A size
// <= 0 selects DefaultCacheSize.
func New(size int, logger logpkg.Logger) (*Matcher, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, compiled](size)
	if err != nil {
		return nil, err
	}
	return &Matcher{cache: cache, logger: logpkg.OrNoop(logger)}, nil
}

// Match reports whether pattern matches ctx and returns the matched substring
// of the tested subject. A pattern that does not translate into a valid
// expression never matches.
func (m *Matcher) Match(pattern string, ctx domain.RequestContext) (bool, string) {
	re := m.expression(pattern)
	if re == nil {
		return false, ""
	}
	subject := ctx.Address
	if domain.IsQueryPattern(pattern) {
		subject = ctx.Query
	}
	loc := re.FindStringIndex(subject)
	if loc == nil {
		return false, ""
	}
	return true, subject[loc[0]:loc[1]]
}

func (m *Matcher) expression(pattern string) *regexp.Regexp {
	if c, ok := m.cache.Get(pattern); ok {
		return c.re
	}
	re, err := regexp.Compile(Translate(pattern))
	if err != nil {
		m.logger.Debug(map[string]any{"pattern": pattern, "error": err.Error()}, "pattern_compile_failed")
		re = nil
	}
	m.cache.Add(pattern, compiled{re: re})
	return re
}

// Len returns the number of memoized patterns.
func (m *Matcher) Len() int { return m.cache.Len() }

// Translate returns the regular expression source for a rule pattern.
func Translate(pattern string) string {
	if domain.IsQueryPattern(pattern) {
		return translateQuery(strings.TrimPrefix(pattern, domain.QueryMarker))
	}
	return translateAddress(pattern)
}

func translateAddress(pattern string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, anySubstring)
}

func translateQuery(sub string) string {
	raw := strings.ReplaceAll(strings.ReplaceAll(sub, "/", `\/`), "*", anySubstring)
	encoded := strings.ReplaceAll(strings.ReplaceAll(sub, "/", "%2F"), "*", anySubstring)
	return "(?:" + raw + ")|(?:" + encoded + ")"
}
