package lru

import (
	"context"
	"testing"
	"time"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

func TestDriver_SetGetHas(t *testing.T) {
	ctx := context.Background()
	c, err := New(4, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.Name() != "memory" {
		t.Errorf("Name() = %q", c.Name())
	}

	if ok, _ := c.Has(ctx, "k"); ok {
		t.Fatal("expected miss before set")
	}
	d := domain.Decision{Allowed: false, Pattern: "10.*", Mode: "deny"}
	if ok, err := c.Set(ctx, "k", d, time.Minute); err != nil || !ok {
		t.Fatalf("Set = %v, %v", ok, err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || got != d {
		t.Fatalf("Get = %+v, %v, %v", got, ok, err)
	}
	if ok, _ := c.Has(ctx, "k"); !ok {
		t.Error("Has should report stored key")
	}
}

func TestDriver_Expiry(t *testing.T) {
	ctx := context.Background()
	clk := &clock.MockClock{CurrentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := New(4, clk)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = c.Set(ctx, "k", domain.Decision{Allowed: true, Mode: "allow"}, 60*time.Second)

	clk.Advance(59 * time.Second)
	if ok, _ := c.Has(ctx, "k"); !ok {
		t.Fatal("entry should live until TTL")
	}
	clk.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("entry should expire at TTL")
	}
}

func TestDriver_NonPositiveTTLNotStored(t *testing.T) {
	ctx := context.Background()
	c, _ := New(4, nil)
	if ok, _ := c.Set(ctx, "k", domain.Decision{}, 0); ok {
		t.Error("Set with zero TTL should report false")
	}
	if ok, _ := c.Has(ctx, "k"); ok {
		t.Error("zero TTL entry should not be stored")
	}
}

func TestDriver_Eviction(t *testing.T) {
	ctx := context.Background()
	c, _ := New(2, nil)
	for _, k := range []string{"a", "b", "c"} {
		_, _ = c.Set(ctx, k, domain.Decision{Mode: "deny"}, time.Minute)
	}
	if ok, _ := c.Has(ctx, "a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if ok, _ := c.Has(ctx, "c"); !ok {
		t.Error("newest entry should remain")
	}
}

func TestNew_InvalidSize(t *testing.T) {
	if _, err := New(0, nil); err == nil {
		t.Error("expected error for zero size")
	}
}
