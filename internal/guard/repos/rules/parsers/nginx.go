package parsers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"

	"go.uber.org/multierr"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rules"
)

// nginxDirective extracts the first allow/deny directive of a line together
// with its dotted-quad shaped address. Octets may be partial or wildcards
// ("10.0.*.*", "10.0"); a CIDR suffix is cut at the '/'.
var nginxDirective = regexp.MustCompile(`^[^#]*?\b(allow|deny)\s+([0-9*]{1,3}(?:\.[0-9*]{0,3}){0,3})(?:\s*[;/]|\s*$)`)

// ParseNginx extracts (mode, address pattern) pairs from nginx-style access
// directives, preserving file order.
//
// Behavior:
//   - Only the first directive of each line is considered
//   - Anything after a '#' before the directive comments it out
//   - Lines without a directive, or with a keyword other than exactly
//     "allow"/"deny" (e.g. "allow all;"), are skipped
//   - Duplicates are returned as-is; the registry decides what they mean
func ParseNginx(r io.Reader, source string, logger logpkg.Logger) ([]domain.Rule, error) {
	logger = logpkg.OrNoop(logger)
	scanner := bufio.NewScanner(r)

	out := make([]domain.Rule, 0, 64)
	logger.Debug(map[string]any{"source": source}, "parse_nginx_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isBlank(line) {
			continue
		}

		m := nginxDirective.FindStringSubmatch(line)
		if m == nil {
			logger.Debug(map[string]any{"line": lineNum}, "nginx_skip_no_directive")
			continue
		}

		mode, err := domain.ParseMode(m[1])
		if err != nil || string(mode) != m[1] {
			logger.Debug(map[string]any{"line": lineNum, "keyword": m[1]}, "nginx_skip_keyword")
			continue
		}

		out = append(out, domain.Rule{Pattern: m[2], Mode: mode})
		logger.Debug(map[string]any{"line": lineNum, "pattern": m[2], "mode": m[1]}, "nginx_emit_rule")
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_nginx_scan_error")
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_nginx_done")
	return out, nil
}

// ImportNginxFile reads the nginx configuration at path and registers every
// extracted rule in file order.
//
// A missing path or a directory yields *domain.NotFoundError and nothing is
// registered. Conflicting entries fail individually exactly as AddItem does;
// the remaining entries are still registered and all conflicts are returned.
func ImportNginxFile(reg *rules.Registry, path string, logger logpkg.Logger) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &domain.NotFoundError{Path: path}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	parsed, err := ParseNginx(f, path, logger)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var errs error
	for _, r := range parsed {
		errs = multierr.Append(errs, reg.AddItem(r.Pattern, r.Mode))
	}
	return errs
}
