package parsers

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rules"
)

func TestNginxDirective(t *testing.T) {
	tests := []struct {
		line        string
		wantMode    string
		wantPattern string
		match       bool
	}{
		{"allow 10.0.0.0/8;", "allow", "10.0.0.0", true},
		{"deny 1.2.3.4;", "deny", "1.2.3.4", true},
		{"    deny   192.168.*.*;", "deny", "192.168.*.*", true},
		{"location / { allow 172.16.0.1; }", "allow", "172.16.0.1", true},
		{"allow 10.0;", "allow", "10.0", true},
		{"allow 10.0.0.1", "allow", "10.0.0.1", true},
		{"allow 1.1.1.1; deny 2.2.2.2;", "allow", "1.1.1.1", true},
		{"deny 10.0.0.1 ;", "deny", "10.0.0.1", true},
		{"# deny 1.2.3.4;", "", "", false},
		{"server_name example.com; # allow 1.2.3.4;", "", "", false},
		{"allow all;", "", "", false},
		{"Allow 1.2.3.4;", "", "", false},
		{"disallow 1.2.3.4;", "", "", false},
		{"allow_list 1.2.3.4;", "", "", false},
		{"allow 1.2.3.4.5;", "", "", false},
		{"listen 80;", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		m := nginxDirective.FindStringSubmatch(tt.line)
		if (m != nil) != tt.match {
			t.Errorf("%q: match = %v, want %v (%v)", tt.line, m != nil, tt.match, m)
			continue
		}
		if !tt.match {
			continue
		}
		if m[1] != tt.wantMode || m[2] != tt.wantPattern {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tt.line, m[1], m[2], tt.wantMode, tt.wantPattern)
		}
	}
}

func TestParseNginx_PreservesOrder(t *testing.T) {
	input := strings.Join([]string{
		"\uFEFFlocation /admin {",
		"    allow 10.0.0.0/8;",
		"    # deny 1.2.3.4;",
		"",
		"    deny 192.168.*.*;",
		"    allow 10.0.0.0/8;",
		"    deny all;",
		"}",
	}, "\n")

	got, err := ParseNginx(strings.NewReader(input), "test", logpkg.NewNoopLogger())
	if err != nil {
		t.Fatalf("ParseNginx: %v", err)
	}
	want := []domain.Rule{
		{Pattern: "10.0.0.0", Mode: domain.ModeAllow},
		{Pattern: "192.168.*.*", Mode: domain.ModeDeny},
		{Pattern: "10.0.0.0", Mode: domain.ModeAllow},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseNginx = %v, want %v", got, want)
	}
}

func TestParseNginx_NilLogger(t *testing.T) {
	got, err := ParseNginx(strings.NewReader("deny 8.8.8.8;"), "test", nil)
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected result: %v, %v", got, err)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestImportNginxFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "access.conf", "allow 10.0.0.0/8;\n# deny 1.2.3.4;\ndeny 172.16.*.*;\n")

	reg := rules.New()
	if err := ImportNginxFile(reg, p, nil); err != nil {
		t.Fatalf("ImportNginxFile: %v", err)
	}
	want := []domain.Rule{
		{Pattern: "10.0.0.0", Mode: domain.ModeAllow},
		{Pattern: "172.16.*.*", Mode: domain.ModeDeny},
	}
	if got := reg.Items(); !reflect.DeepEqual(got, want) {
		t.Errorf("Items() = %v, want %v", got, want)
	}
}

func TestImportNginxFile_NotFound(t *testing.T) {
	dir := t.TempDir()
	reg := rules.New()

	for _, p := range []string{filepath.Join(dir, "missing.conf"), dir} {
		err := ImportNginxFile(reg, p, nil)
		var nf *domain.NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("ImportNginxFile(%q) = %v, want *NotFoundError", p, err)
			continue
		}
		if nf.Path != p {
			t.Errorf("NotFoundError.Path = %q, want %q", nf.Path, p)
		}
	}
	if reg.Len() != 0 {
		t.Errorf("nothing should be imported, Len() = %d", reg.Len())
	}
}

func TestImportNginxFile_Conflict(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "access.conf", "allow 1.1.1.1;\ndeny 1.1.1.1;\ndeny 2.2.2.2;\n")

	reg := rules.New()
	err := ImportNginxFile(reg, p, nil)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if m, _ := reg.Lookup("1.1.1.1"); m != domain.ModeAllow {
		t.Errorf("first entry should win, got %q", m)
	}
	if _, ok := reg.Lookup("2.2.2.2"); !ok {
		t.Error("entries after a conflict should still be imported")
	}
}
