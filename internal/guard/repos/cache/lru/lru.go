// Package lru provides an in-process cache.Driver backed by a bounded LRU.
package lru

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/cache"
)

// DriverName identifies this driver in errors and logs.
const DriverName = "memory"

type item struct {
	decision  domain.Decision
	expiresAt time.Time
}

// driver is a TTL-aware LRU. Expired entries are evicted lazily on access.
type driver struct {
	lru   *lru.Cache[string, item]
	clock clock.Clock
}

// New returns a memory driver holding at most size entries. A nil clock uses
// the wall clock.
func New(size int, clk clock.Clock) (cache.Driver, error) {
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &driver{lru: c, clock: clk}, nil
}

func (d *driver) Name() string { return DriverName }

func (d *driver) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := d.Get(ctx, key)
	return ok, err
}

func (d *driver) Get(_ context.Context, key string) (domain.Decision, bool, error) {
	it, found := d.lru.Get(key)
	if !found {
		return domain.Decision{}, false, nil
	}
	if !d.clock.Now().Before(it.expiresAt) {
		d.lru.Remove(key)
		return domain.Decision{}, false, nil
	}
	return it.decision, true, nil
}

func (d *driver) Set(_ context.Context, key string, dec domain.Decision, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	d.lru.Add(key, item{decision: dec, expiresAt: d.clock.Now().Add(ttl)})
	return true, nil
}

var _ cache.Driver = (*driver)(nil)
