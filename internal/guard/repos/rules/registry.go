// Package rules holds the rule registry: the insertion-ordered, conflict-checked
// set of rules consulted by the decision engine, plus its default mode and the
// denial template path.
package rules

import (
	"go.uber.org/multierr"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

// Registry is an insertion-ordered mapping from pattern to mode.
//
// It is not safe for concurrent mutation. Registration must complete before
// the registry is shared with decision engines, which only read it.
type Registry struct {
	items       []domain.Rule
	index       map[string]int // pattern -> position in items
	defaultMode domain.Mode
	template    string
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithDefaultMode sets the outcome used when no rule matches.
func WithDefaultMode(m domain.Mode) Option {
	return func(r *Registry) { r.defaultMode = m }
}

// WithTemplate sets the denial template path.
func WithTemplate(path string) Option {
	return func(r *Registry) { r.template = path }
}

// New returns an empty registry that denies by default.
func New(opts ...Option) *Registry {
	r := &Registry{
		index:       make(map[string]int),
		defaultMode: domain.ModeDeny,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddItem registers pattern with mode. Registering the same pattern with the
// same mode is a no-op; a different mode yields a *domain.ConflictError and the
// existing registration is kept.
func (r *Registry) AddItem(pattern string, mode domain.Mode) error {
	rule, err := domain.NewRule(pattern, mode)
	if err != nil {
		return err
	}
	if i, ok := r.index[pattern]; ok {
		existing := r.items[i].Mode
		if existing != mode {
			return &domain.ConflictError{Pattern: pattern, Existing: existing, Requested: mode}
		}
		return nil
	}
	r.index[pattern] = len(r.items)
	r.items = append(r.items, rule)
	return nil
}

// AddItems registers every pattern with the same mode, in order. A failing
// element is skipped; the others are still registered. All failures are
// returned together.
func (r *Registry) AddItems(patterns []string, mode domain.Mode) error {
	var errs error
	for _, p := range patterns {
		errs = multierr.Append(errs, r.AddItem(p, mode))
	}
	return errs
}

// MergeItems registers rules in slice order with AddItem semantics.
func (r *Registry) MergeItems(rules []domain.Rule) error {
	var errs error
	for _, rule := range rules {
		errs = multierr.Append(errs, r.AddItem(rule.Pattern, rule.Mode))
	}
	return errs
}

// Items returns the rules in registration order. The returned slice is a copy.
func (r *Registry) Items() []domain.Rule {
	out := make([]domain.Rule, len(r.items))
	copy(out, r.items)
	return out
}

// Lookup returns the mode registered for pattern.
func (r *Registry) Lookup(pattern string) (domain.Mode, bool) {
	i, ok := r.index[pattern]
	if !ok {
		return "", false
	}
	return r.items[i].Mode, true
}

// Len returns the number of registered rules.
func (r *Registry) Len() int { return len(r.items) }

// DefaultMode returns the mode applied when no rule matches.
func (r *Registry) DefaultMode() domain.Mode { return r.defaultMode }

// SetDefaultMode changes the fallback outcome. Invalid modes are rejected.
func (r *Registry) SetDefaultMode(m domain.Mode) error {
	m, err := domain.ParseMode(string(m))
	if err != nil {
		return err
	}
	r.defaultMode = m
	return nil
}

// Template returns the denial template path. Empty means the bundled view.
func (r *Registry) Template() string { return r.template }

// SetTemplate sets the denial template path. The path is not checked here.
func (r *Registry) SetTemplate(path string) { r.template = path }
