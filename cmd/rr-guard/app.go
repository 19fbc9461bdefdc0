package main

import (
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/config"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/cache"
	"github.com/haukened/rr-guard/internal/guard/repos/cache/bolt"
	"github.com/haukened/rr-guard/internal/guard/repos/cache/lru"
	"github.com/haukened/rr-guard/internal/guard/repos/cache/redis"
	"github.com/haukened/rr-guard/internal/guard/repos/rules"
	"github.com/haukened/rr-guard/internal/guard/repos/rules/parsers"
	"github.com/haukened/rr-guard/internal/guard/services/matcher"
)

// bloomFPRate is the false-positive target of the bolt driver's filter.
const bloomFPRate = 0.01

// Application holds the components shared by every decision.
type Application struct {
	config   *config.AppConfig
	registry *rules.Registry
	driver   cache.Driver
	matcher  *matcher.Matcher
	logger   log.Logger
	closers  []io.Closer
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule registry: %w", err)
	}

	m, err := matcher.New(cfg.CacheSize, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build matcher: %w", err)
	}

	app := &Application{config: cfg, registry: registry, matcher: m, logger: logger}
	driver, closer, err := buildDriver(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache driver: %w", err)
	}
	app.driver = driver
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	return app, nil
}

// buildRegistry starts from the configured default mode and template, then
// applies the rule file (which may override both) and the nginx files.
func buildRegistry(cfg *config.AppConfig, logger log.Logger) (*rules.Registry, error) {
	mode, err := domain.ParseMode(cfg.DefaultMode)
	if err != nil {
		return nil, err
	}
	reg := rules.New(rules.WithDefaultMode(mode), rules.WithTemplate(cfg.Template))

	if cfg.RulesFile != "" {
		rf, err := parsers.LoadRuleFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		if err := rf.Apply(reg, logger); err != nil {
			return nil, err
		}
	}

	var errs error
	for _, p := range cfg.NginxFiles {
		errs = multierr.Append(errs, parsers.ImportNginxFile(reg, p, logger))
	}
	if errs != nil {
		return nil, errs
	}

	logger.Info(map[string]any{
		"rules":        reg.Len(),
		"default_mode": reg.DefaultMode().String(),
		"rules_file":   cfg.RulesFile,
		"nginx_files":  cfg.NginxFiles,
	}, "rule registry loaded")
	return reg, nil
}

// buildDriver returns the configured decision cache, or nil for "none". The
// closer is non-nil for drivers holding external resources.
func buildDriver(cfg *config.AppConfig, logger log.Logger) (cache.Driver, io.Closer, error) {
	switch cfg.CacheDriver {
	case "", "none":
		logger.Info(map[string]any{"disabled": true}, "decision caching disabled")
		return nil, nil, nil

	case lru.DriverName:
		d, err := lru.New(cfg.CacheSize, clock.RealClock{})
		if err != nil {
			return nil, nil, err
		}
		logger.Info(map[string]any{"type": "LRU", "size": cfg.CacheSize}, "decision cache configured")
		return d, nil, nil

	case bolt.DriverName:
		s, err := bolt.New(bolt.Options{
			Path:     cfg.CachePath,
			Capacity: uint64(cfg.CacheSize),
			FPRate:   bloomFPRate,
			Clock:    clock.RealClock{},
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info(map[string]any{"type": "bolt", "path": cfg.CachePath}, "decision cache configured")
		return s, s, nil

	case redis.DriverName:
		d := redis.New(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.Timeout(),
			Logger:   logger,
		})
		logger.Info(map[string]any{"type": "redis", "addr": cfg.RedisAddr, "db": cfg.RedisDB}, "decision cache configured")
		return d, d, nil

	default:
		return nil, nil, fmt.Errorf("unsupported cache driver: %s", cfg.CacheDriver)
	}
}

// Close releases driver resources.
func (app *Application) Close() error {
	var errs error
	for _, c := range app.closers {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}
