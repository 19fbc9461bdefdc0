// Package firewall implements the decision engine: it evaluates one request
// context against the ordered rules of a registry, memoizes decisions in an
// optional cache driver and exposes the terminal reject actions.
package firewall

import (
	"context"
	"time"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/cache"
	"github.com/haukened/rr-guard/internal/guard/repos/rules"
	"github.com/haukened/rr-guard/internal/guard/services/matcher"
)

// Callback runs after a decision is made. A non-nil return value replaces
// the allowed verdict returned by Validate.
type Callback func(fw *Firewall, allowed bool, pattern, mode string) *bool

// Override is a convenience for callbacks returning a verdict.
func Override(allowed bool) *bool { return &allowed }

// Options configures a Firewall.
//
// When Registry is nil a private registry is built from Rules, DefaultMode
// and Template. When Registry is set it is used as-is and those three fields
// are ignored, so a shared registry is never mutated by construction.
type Options struct {
	Context     domain.RequestContext
	Registry    *rules.Registry
	Rules       []domain.Rule
	DefaultMode domain.Mode
	Template    string
	Cache       cache.Driver
	TTL         time.Duration
	Matcher     *matcher.Matcher
	Logger      logpkg.Logger
}

// Firewall evaluates a single RequestContext. The embedded registry gives
// direct access to rule management.
//
// A Firewall is not safe for concurrent use; build one per request and share
// the registry, matcher and cache driver between them.
type Firewall struct {
	*rules.Registry

	reqCtx  domain.RequestContext
	cache   cache.Driver
	ttl     time.Duration
	matcher *matcher.Matcher
	logger  logpkg.Logger
}

// New builds a Firewall from opts.
func New(opts Options) (*Firewall, error) {
	logger := logpkg.OrNoop(opts.Logger)

	reg := opts.Registry
	if reg == nil {
		ropts := []rules.Option{rules.WithTemplate(opts.Template)}
		if opts.DefaultMode != "" {
			m, err := domain.ParseMode(string(opts.DefaultMode))
			if err != nil {
				return nil, err
			}
			ropts = append(ropts, rules.WithDefaultMode(m))
		}
		reg = rules.New(ropts...)
		if err := reg.MergeItems(opts.Rules); err != nil {
			return nil, err
		}
	}

	m := opts.Matcher
	if m == nil {
		var err error
		if m, err = matcher.New(0, logger); err != nil {
			return nil, err
		}
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}

	return &Firewall{
		Registry: reg,
		reqCtx:   opts.Context,
		cache:    opts.Cache,
		ttl:      ttl,
		matcher:  m,
		logger:   logger,
	}, nil
}

// Context returns the request context under evaluation.
func (fw *Firewall) Context() domain.RequestContext { return fw.reqCtx }

// Address returns the origin address under evaluation.
func (fw *Firewall) Address() string { return fw.reqCtx.Address }

// Query returns the raw query string under evaluation.
func (fw *Firewall) Query() string { return fw.reqCtx.Query }

// TTL returns the lifetime of cache entries written by Decide.
func (fw *Firewall) TTL() time.Duration { return fw.ttl }

// AttachCache late-binds a cache driver. Only one driver may be attached;
// a second attempt fails with *domain.AlreadyConfiguredError.
func (fw *Firewall) AttachCache(d cache.Driver) error {
	if fw.cache != nil {
		return &domain.AlreadyConfiguredError{Driver: fw.cache.Name()}
	}
	fw.cache = d
	return nil
}

// CacheDriver returns the attached driver, or nil.
func (fw *Firewall) CacheDriver() cache.Driver { return fw.cache }

// Decide produces the decision for the request context: a cached decision
// when one is live, otherwise the first matching rule in registration order,
// otherwise the default mode. Fresh decisions are written to the cache.
func (fw *Firewall) Decide(ctx context.Context) (domain.Decision, error) {
	d, hit, err := fw.recover(ctx)
	if err != nil {
		return domain.Decision{}, err
	}
	if hit {
		fw.logDecision(d, "cache")
		return d, nil
	}

	d = fw.scan()
	if err := fw.register(ctx, d); err != nil {
		return domain.Decision{}, err
	}
	fw.logDecision(d, "scan")
	return d, nil
}

// Validate decides and then hands the result to cb. The callback's non-nil
// return overrides the verdict.
func (fw *Firewall) Validate(ctx context.Context, cb Callback) (bool, error) {
	d, err := fw.Decide(ctx)
	if err != nil {
		return false, err
	}
	return fw.answer(d, cb), nil
}

// Debug logs the request context under evaluation.
func (fw *Firewall) Debug() *Firewall {
	fw.logger.Debug(map[string]any{"address": fw.reqCtx.Address, "query": fw.reqCtx.Query}, "firewall_context")
	return fw
}

func (fw *Firewall) answer(d domain.Decision, cb Callback) bool {
	if cb == nil {
		return d.Allowed
	}
	if v := cb(fw, d.Allowed, d.Pattern, d.Mode); v != nil {
		return *v
	}
	return d.Allowed
}

// scan returns the decision of the first matching rule, or the default.
func (fw *Firewall) scan() domain.Decision {
	for _, r := range fw.Items() {
		if ok, _ := fw.matcher.Match(r.Pattern, fw.reqCtx); ok {
			return domain.MatchedDecision(r)
		}
	}
	return domain.DefaultDecision(fw.DefaultMode())
}

// recover looks up the context index entry and honours it only while the
// decision entry of its pattern is still present.
func (fw *Firewall) recover(ctx context.Context) (domain.Decision, bool, error) {
	if fw.cache == nil {
		return domain.Decision{}, false, nil
	}
	d, ok, err := fw.cache.Get(ctx, cache.ContextKey(fw.reqCtx))
	if err != nil || !ok {
		return domain.Decision{}, false, err
	}
	live, err := fw.cache.Has(ctx, cache.PatternKey(d.Pattern))
	if err != nil || !live {
		return domain.Decision{}, false, err
	}
	return d, true, nil
}

// register stores the decision under its pattern key and indexes it under the
// context key.
func (fw *Firewall) register(ctx context.Context, d domain.Decision) error {
	if fw.cache == nil {
		return nil
	}
	if _, err := fw.cache.Set(ctx, cache.PatternKey(d.Pattern), d, fw.ttl); err != nil {
		return err
	}
	_, err := fw.cache.Set(ctx, cache.ContextKey(fw.reqCtx), d, fw.ttl)
	return err
}

func (fw *Firewall) logDecision(d domain.Decision, source string) {
	fw.logger.Debug(map[string]any{
		"address": fw.reqCtx.Address,
		"query":   fw.reqCtx.Query,
		"allowed": d.Allowed,
		"pattern": d.Pattern,
		"mode":    d.Mode,
		"source":  source,
	}, "firewall_decision")
}
