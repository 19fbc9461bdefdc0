// Package redis provides a cache.Driver backed by a Redis server. The
// connection is verified lazily: an unreachable server surfaces as a
// *domain.CacheConnectionError on the first cache operation, not at
// construction.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/cache"
)

// DriverName identifies this driver in errors and logs.
const DriverName = "redis"

// Options configures the redis driver.
type Options struct {
	Addr     string // host:port
	Password string
	DB       int
	Timeout  time.Duration // dial/read/write timeout, default 1s
	Logger   logpkg.Logger
}

// Driver implements cache.Driver on top of go-redis.
type Driver struct {
	client *goredis.Client
	logger logpkg.Logger

	mu        sync.Mutex
	connected bool
}

// New returns a driver for the given server. No connection is attempted.
func New(opts Options) *Driver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   -1,
	})
	return NewFromClient(client, opts.Logger)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client, logger logpkg.Logger) *Driver {
	return &Driver{client: client, logger: logpkg.OrNoop(logger)}
}

func (d *Driver) Name() string { return DriverName }

// Close releases the underlying connection pool.
func (d *Driver) Close() error { return d.client.Close() }

func (d *Driver) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil
	}
	if err := d.client.Ping(ctx).Err(); err != nil {
		d.logger.Warn(map[string]any{"driver": DriverName, "error": err.Error()}, "cache_connect_failed")
		return &domain.CacheConnectionError{Driver: DriverName, Err: err}
	}
	d.connected = true
	return nil
}

func (d *Driver) Has(ctx context.Context, key string) (bool, error) {
	if err := d.connect(ctx); err != nil {
		return false, err
	}
	n, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (d *Driver) Get(ctx context.Context, key string) (domain.Decision, bool, error) {
	if err := d.connect(ctx); err != nil {
		return domain.Decision{}, false, err
	}
	b, err := d.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Decision{}, false, nil
	}
	if err != nil {
		return domain.Decision{}, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	dec, err := cache.Decode(b)
	if err != nil {
		return domain.Decision{}, false, err
	}
	return dec, true, nil
}

func (d *Driver) Set(ctx context.Context, key string, dec domain.Decision, ttl time.Duration) (bool, error) {
	if err := d.connect(ctx); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, nil
	}
	payload, err := cache.Encode(dec)
	if err != nil {
		return false, err
	}
	if err := d.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return false, fmt.Errorf("redis set %q: %w", key, err)
	}
	return true, nil
}

var _ cache.Driver = (*Driver)(nil)
