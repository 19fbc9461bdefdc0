package redis

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

func TestDriver_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	d := New(Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = d.Close() })

	assert.Equal(t, "redis", d.Name())

	ok, err := d.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	dec := domain.Decision{Allowed: false, Pattern: "192.168.*.*", Mode: "deny"}
	stored, err := d.Set(ctx, "k", dec, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	ok, err = d.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	got, found, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, dec, got)

	assert.Equal(t, time.Minute, srv.TTL("k"))
}

func TestDriver_ExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	d := New(Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = d.Close() })

	_, err := d.Set(ctx, "k", domain.Decision{Allowed: true, Mode: "allow"}, 60*time.Second)
	require.NoError(t, err)

	srv.FastForward(61 * time.Second)
	_, found, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDriver_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	d := New(Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, srv.Set("k", "false"))
	_, _, err := d.Get(ctx, "k")
	assert.Error(t, err)
}

func TestDriver_ConnectionErrorOnFirstUse(t *testing.T) {
	// reserve a port and close it so nothing is listening
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	d := New(Options{Addr: addr, Timeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = d.Close() })

	_, err = d.Has(context.Background(), "k")
	var ce *domain.CacheConnectionError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "redis", ce.Driver)

	_, err = d.Set(context.Background(), "k", domain.Decision{}, time.Minute)
	assert.True(t, errors.Is(err, domain.ErrCacheConnection))
}
