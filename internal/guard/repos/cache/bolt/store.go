// Package bolt provides an on-disk cache.Driver backed by bbolt. A Bloom
// filter in front of the bucket answers definite misses without opening a
// read transaction.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/cache"
	"github.com/haukened/rr-guard/internal/guard/repos/cache/bloom"
)

// DriverName identifies this driver in errors and logs.
const DriverName = "bolt"

var bucketDecisions = []byte("decisions")

// Options configures the bolt driver.
type Options struct {
	Path     string
	Capacity uint64  // expected number of keys, sizes the Bloom filter
	FPRate   float64 // Bloom false-positive target
	Clock    clock.Clock
}

// Store implements cache.Driver. Values are an 8-byte big-endian expiry
// (unix nanoseconds) followed by the encoded decision.
type Store struct {
	db    *bbolt.DB
	bloom *bloom.Filter
	clock clock.Clock
}

// New opens (or creates) the database at opts.Path, ensures the bucket exists
// and seeds the Bloom filter from keys already on disk.
func New(opts Options) (*Store, error) {
	db, err := bbolt.Open(opts.Path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &domain.CacheConnectionError{Driver: DriverName, Err: err}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = 10000
	}
	s := &Store{db: db, bloom: bloom.New(capacity, opts.FPRate), clock: clk}

	if err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketDecisions)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, _ []byte) error {
			s.bloom.Add(string(k))
			return nil
		})
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Name() string { return DriverName }

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Get(_ context.Context, key string) (domain.Decision, bool, error) {
	if !s.bloom.MightContain(key) {
		return domain.Decision{}, false, nil
	}
	var (
		dec   domain.Decision
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDecisions)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if len(v) < 8 {
			return nil
		}
		expires := time.Unix(0, int64(binary.BigEndian.Uint64(v[:8])))
		if !s.clock.Now().Before(expires) {
			return nil
		}
		d, err := cache.Decode(v[8:])
		if err != nil {
			return err
		}
		dec, found = d, true
		return nil
	})
	if err != nil {
		return domain.Decision{}, false, err
	}
	return dec, found, nil
}

func (s *Store) Set(_ context.Context, key string, d domain.Decision, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	payload, err := cache.Encode(d)
	if err != nil {
		return false, err
	}
	buf := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(s.clock.Now().Add(ttl).UnixNano()))
	buf = append(buf, payload...)

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDecisions)
		if b == nil {
			return errors.New("decisions bucket missing")
		}
		return b.Put([]byte(key), buf)
	})
	if err != nil {
		return false, err
	}
	s.bloom.Add(key)
	return true, nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *Store) Purge() (int, error) {
	now := s.clock.Now()
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDecisions)
		if b == nil {
			return nil
		}
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if len(v) < 8 || !now.Before(time.Unix(0, int64(binary.BigEndian.Uint64(v[:8])))) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Len returns the number of stored keys, expired or not.
func (s *Store) Len() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketDecisions); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

var _ cache.Driver = (*Store)(nil)
