package rules

import (
	"errors"
	"reflect"
	"testing"

	"go.uber.org/multierr"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

func TestNew_Defaults(t *testing.T) {
	r := New()
	if r.DefaultMode() != domain.ModeDeny {
		t.Errorf("DefaultMode() = %q, want deny", r.DefaultMode())
	}
	if r.Template() != "" {
		t.Errorf("Template() = %q, want empty", r.Template())
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}

	r = New(WithDefaultMode(domain.ModeAllow), WithTemplate("/srv/403.html"))
	if r.DefaultMode() != domain.ModeAllow || r.Template() != "/srv/403.html" {
		t.Errorf("options not applied: mode=%q template=%q", r.DefaultMode(), r.Template())
	}
}

func TestAddItem_PreservesInsertionOrder(t *testing.T) {
	r := New()
	patterns := []string{"10.*", "query:*debug=1*", "192.168.*.*", "1.2.3.4"}
	for _, p := range patterns {
		if err := r.AddItem(p, domain.ModeAllow); err != nil {
			t.Fatalf("AddItem(%q): %v", p, err)
		}
	}
	items := r.Items()
	if len(items) != len(patterns) {
		t.Fatalf("len(items) = %d, want %d", len(items), len(patterns))
	}
	for i, p := range patterns {
		if items[i].Pattern != p {
			t.Errorf("items[%d] = %q, want %q", i, items[i].Pattern, p)
		}
	}
}

func TestAddItem_SameModeIsNoop(t *testing.T) {
	r := New()
	if err := r.AddItem("10.0.*.*", domain.ModeDeny); err != nil {
		t.Fatal(err)
	}
	if err := r.AddItem("10.0.*.*", domain.ModeDeny); err != nil {
		t.Fatalf("re-registering with same mode returned %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestAddItem_ConflictLeavesRegistryUnchanged(t *testing.T) {
	r := New()
	if err := r.AddItem("10.0.*.*", domain.ModeAllow); err != nil {
		t.Fatal(err)
	}
	before := r.Items()

	err := r.AddItem("10.0.*.*", domain.ModeDeny)
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if ce.Pattern != "10.0.*.*" || ce.Existing != domain.ModeAllow || ce.Requested != domain.ModeDeny {
		t.Errorf("unexpected conflict fields: %+v", ce)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Error("expected errors.Is(err, ErrConflict)")
	}
	if !reflect.DeepEqual(before, r.Items()) {
		t.Errorf("registry changed after conflict: %v -> %v", before, r.Items())
	}
	if m, _ := r.Lookup("10.0.*.*"); m != domain.ModeAllow {
		t.Errorf("first registration should win, got %q", m)
	}
}

func TestAddItem_RejectsInvalidRule(t *testing.T) {
	r := New()
	if err := r.AddItem("", domain.ModeAllow); err == nil {
		t.Error("expected error for empty pattern")
	}
	if err := r.AddItem("1.1.1.1", domain.Mode("default")); err == nil {
		t.Error("expected error for invalid mode")
	}
	if r.Len() != 0 {
		t.Errorf("invalid rules must not be registered, Len() = %d", r.Len())
	}
}

func TestAddItems_ConflictAbortsOnlyThatElement(t *testing.T) {
	r := New()
	if err := r.AddItem("2.2.2.2", domain.ModeAllow); err != nil {
		t.Fatal(err)
	}
	err := r.AddItems([]string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}, domain.ModeDeny)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Errorf("expected 1 aggregated error, got %d", n)
	}

	want := []domain.Rule{
		{Pattern: "2.2.2.2", Mode: domain.ModeAllow},
		{Pattern: "1.1.1.1", Mode: domain.ModeDeny},
		{Pattern: "3.3.3.3", Mode: domain.ModeDeny},
	}
	if got := r.Items(); !reflect.DeepEqual(got, want) {
		t.Errorf("Items() = %v, want %v", got, want)
	}
}

func TestMergeItems(t *testing.T) {
	r := New()
	err := r.MergeItems([]domain.Rule{
		{Pattern: "192.168.*.*", Mode: domain.ModeDeny},
		{Pattern: "query:*debug=1*", Mode: domain.ModeAllow},
		{Pattern: "192.168.*.*", Mode: domain.ModeDeny},
	})
	if err != nil {
		t.Fatalf("MergeItems: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	err = r.MergeItems([]domain.Rule{
		{Pattern: "query:*debug=1*", Mode: domain.ModeDeny},
		{Pattern: "10.*", Mode: domain.ModeAllow},
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if m, ok := r.Lookup("10.*"); !ok || m != domain.ModeAllow {
		t.Errorf("element after conflict should be registered, got %q %v", m, ok)
	}
}

func TestItems_ReturnsCopy(t *testing.T) {
	r := New()
	_ = r.AddItem("1.1.1.1", domain.ModeAllow)
	items := r.Items()
	items[0].Mode = domain.ModeDeny
	if m, _ := r.Lookup("1.1.1.1"); m != domain.ModeAllow {
		t.Error("mutating Items() result changed the registry")
	}
}

func TestSetters(t *testing.T) {
	r := New()
	if err := r.SetDefaultMode(domain.ModeAllow); err != nil {
		t.Fatal(err)
	}
	if r.DefaultMode() != domain.ModeAllow {
		t.Errorf("DefaultMode() = %q", r.DefaultMode())
	}
	if err := r.SetDefaultMode("sometimes"); err == nil {
		t.Error("expected error for invalid default mode")
	}
	if r.DefaultMode() != domain.ModeAllow {
		t.Error("invalid SetDefaultMode must not change the mode")
	}

	r.SetTemplate("/does/not/exist.html")
	if r.Template() != "/does/not/exist.html" {
		t.Errorf("Template() = %q", r.Template())
	}
}
