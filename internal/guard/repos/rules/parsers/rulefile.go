package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"go.uber.org/multierr"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rules"
)

// RuleEntry is one ordered rule in a rule file.
type RuleEntry struct {
	Pattern string `koanf:"pattern" yaml:"pattern" validate:"required"`
	Mode    string `koanf:"mode" yaml:"mode" validate:"required,oneof=allow deny"`
}

// RuleFile is the structured (YAML, JSON or TOML) rule definition format.
//
//	default_mode: deny
//	template: /etc/rr-guard/403.html
//	rules:
//	  - pattern: "192.168.*.*"
//	    mode: deny
//	  - pattern: "query:*debug=1*"
//	    mode: allow
//	nginx:
//	  - /etc/nginx/conf.d/access.conf
type RuleFile struct {
	DefaultMode string      `koanf:"default_mode" yaml:"default_mode,omitempty" validate:"omitempty,oneof=allow deny"`
	Template    string      `koanf:"template" yaml:"template,omitempty"`
	Rules       []RuleEntry `koanf:"rules" yaml:"rules" validate:"dive"`
	Nginx       []string    `koanf:"nginx" yaml:"nginx,omitempty" validate:"dive,required"`

	dir string // directory of the source file, for relative nginx paths
}

// LoadRuleFile parses the rule file at path, choosing the parser from the file
// extension. A missing path or a directory yields *domain.NotFoundError.
func LoadRuleFile(path string) (*RuleFile, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, &domain.NotFoundError{Path: path}
	}

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return nil, fmt.Errorf("unsupported rule file type %q", filepath.Ext(path))
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load rule file %s: %w", path, err)
	}

	var rf RuleFile
	if err := k.Unmarshal("", &rf); err != nil {
		return nil, fmt.Errorf("failed to decode rule file %s: %w", path, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&rf); err != nil {
		return nil, fmt.Errorf("invalid rule file %s: %w", path, err)
	}

	rf.dir = filepath.Dir(path)
	return &rf, nil
}

// Apply configures reg from the rule file: default mode and template first,
// then the ordered rules, then each nginx file in listed order. Relative nginx
// paths are resolved against the rule file's directory.
func (rf *RuleFile) Apply(reg *rules.Registry, logger logpkg.Logger) error {
	if rf.DefaultMode != "" {
		m, err := domain.ParseMode(rf.DefaultMode)
		if err != nil {
			return err
		}
		if err := reg.SetDefaultMode(m); err != nil {
			return err
		}
	}
	if rf.Template != "" {
		reg.SetTemplate(rf.Template)
	}

	var errs error
	for _, e := range rf.Rules {
		m, err := domain.ParseMode(e.Mode)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, reg.AddItem(e.Pattern, m))
	}

	for _, p := range rf.Nginx {
		if !filepath.IsAbs(p) && rf.dir != "" {
			p = filepath.Join(rf.dir, p)
		}
		errs = multierr.Append(errs, ImportNginxFile(reg, p, logger))
	}
	return errs
}

// Entries converts registered rules back into rule file entries.
func Entries(rs []domain.Rule) []RuleEntry {
	out := make([]RuleEntry, 0, len(rs))
	for _, r := range rs {
		out = append(out, RuleEntry{Pattern: r.Pattern, Mode: r.Mode.String()})
	}
	return out
}
