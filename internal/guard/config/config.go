package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// DefaultMode is the outcome when no rule matches.
	DefaultMode string `koanf:"default_mode" validate:"required,oneof=allow deny"`

	// Template is the path of the 403 template. Empty selects the bundled view.
	Template string `koanf:"template"`

	// RulesFile is an optional YAML, JSON or TOML rule file.
	RulesFile string `koanf:"rules_file"`

	// NginxFiles are nginx configuration files whose allow/deny lines are imported.
	NginxFiles []string `koanf:"nginx_files"`

	// CacheDriver selects the decision cache: none, memory, bolt or redis.
	CacheDriver string `koanf:"cache_driver" validate:"required,oneof=none memory bolt redis"`

	// CacheTTL is the decision lifetime in seconds.
	CacheTTL int `koanf:"cache_ttl" validate:"gte=1"`

	CacheSize int `koanf:"cache_size" validate:"gte=1"`

	// CachePath is the bbolt database file used by the bolt driver.
	CachePath string `koanf:"cache_path" validate:"required_if=CacheDriver bolt"`

	// RedisAddr is the redis server in host:port format.
	RedisAddr string `koanf:"cache_redis_addr" validate:"omitempty,host_port"`

	RedisPassword string `koanf:"cache_redis_password"`

	RedisDB int `koanf:"cache_redis_db" validate:"gte=0"`

	// CacheTimeout bounds redis dial, read and write operations, in seconds.
	CacheTimeout int `koanf:"cache_timeout" validate:"gte=1"`
}

// TTL returns CacheTTL as a duration.
func (c *AppConfig) TTL() time.Duration { return time.Duration(c.CacheTTL) * time.Second }

// Timeout returns CacheTimeout as a duration.
func (c *AppConfig) Timeout() time.Duration { return time.Duration(c.CacheTimeout) * time.Second }

// DEFAULT_APP_CONFIG defines the default settings: production logging, deny
// by default and no decision cache.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:          "prod",
	LogLevel:     "info",
	DefaultMode:  "deny",
	CacheDriver:  "none",
	CacheTTL:     60,
	CacheSize:    1000,
	CachePath:    "/var/lib/rr-guard/decisions.db",
	RedisAddr:    "127.0.0.1:6379",
	RedisDB:      0,
	CacheTimeout: 1,
}

// validHostPort accepts "host:port" where host is an IP address or a host
// name and port is in 1..65535.
func validHostPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || host == "" || port == "" {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads environment variables with the prefix "GUARD_". Keys are
// lowercased with the prefix removed; nginx_files is split on spaces and
// commas into a list.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "GUARD_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "GUARD_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if key == "nginx_files" {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("host_port", validHostPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
