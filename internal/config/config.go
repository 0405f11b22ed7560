// Package config manages gornd configuration using koanf/v2.
//
// Supports YAML files, environment variables, and the rndc.conf-shaped
// layout of named keys and named servers.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gornd configuration: defaults for an
// unqualified command, a set of named HMAC keys, and a set of named
// target servers, mirroring real rndc.conf's default-key/keys/server
// sections.
type Config struct {
	Default DefaultConfig           `koanf:"default"`
	Keys    map[string]string       `koanf:"keys"`
	Servers map[string]ServerConfig `koanf:"servers"`
	Metrics MetricsConfig           `koanf:"metrics"`
	Log     LogConfig               `koanf:"log"`
}

// DefaultConfig holds the target used when a command names no explicit
// server.
type DefaultConfig struct {
	// Key names an entry in Keys.
	Key string `koanf:"key"`
	// Host is the rndc server to contact.
	Host string `koanf:"host"`
	// Port is the rndc server's TCP port.
	Port int `koanf:"port"`
}

// ServerConfig describes one named target for the `multi` fan-out command.
type ServerConfig struct {
	// Key names an entry in Keys; falls back to Default.Key when empty.
	Key string `koanf:"key"`
	// Host is the server's address.
	Host string `koanf:"host"`
	// Port is the server's TCP port; falls back to Default.Port when zero.
	Port int `koanf:"port"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration for
// cmd/rndcd.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9953").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultListenPort is BIND rndc's conventional listen port.
const DefaultListenPort = 953

// DefaultConfigValues returns a Config populated with sensible defaults.
func DefaultConfigValues() *Config {
	return &Config{
		Default: DefaultConfig{
			Host: "127.0.0.1",
			Port: DefaultListenPort,
		},
		Keys:    map[string]string{},
		Servers: map[string]ServerConfig{},
		Metrics: MetricsConfig{
			Addr: ":9953",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gornd configuration.
// Variables are named RNDC_<section>_<key>, e.g., RNDC_DEFAULT_HOST.
const envPrefix = "RNDC_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (RNDC_ prefix), and merges on top of
// DefaultConfigValues. Missing fields inherit defaults. An empty path
// skips the file layer entirely (defaults + env only).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfigValues()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms RNDC_DEFAULT_HOST -> default.host.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"default.host": defaults.Default.Host,
		"default.port": defaults.Default.Port,
		"metrics.addr": defaults.Metrics.Addr,
		"metrics.path": defaults.Metrics.Path,
		"log.level":    defaults.Log.Level,
		"log.format":   defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyHost indicates the default target host is empty.
	ErrEmptyHost = errors.New("default.host must not be empty")

	// ErrInvalidPort indicates a port is outside the valid TCP range.
	ErrInvalidPort = errors.New("port must be between 1 and 65535")

	// ErrUnknownKeyRef indicates a server or the default section names a
	// key that does not appear in the keys map.
	ErrUnknownKeyRef = errors.New("references an undefined key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Default.Host == "" {
		return ErrEmptyHost
	}
	if !validPort(cfg.Default.Port) {
		return fmt.Errorf("default.port %d: %w", cfg.Default.Port, ErrInvalidPort)
	}
	if cfg.Default.Key != "" {
		if _, ok := cfg.Keys[cfg.Default.Key]; !ok {
			return fmt.Errorf("default.key %q: %w", cfg.Default.Key, ErrUnknownKeyRef)
		}
	}

	for name, srv := range cfg.Servers {
		if srv.Port != 0 && !validPort(srv.Port) {
			return fmt.Errorf("servers[%s].port %d: %w", name, srv.Port, ErrInvalidPort)
		}
		key := srv.Key
		if key == "" {
			key = cfg.Default.Key
		}
		if key != "" {
			if _, ok := cfg.Keys[key]; !ok {
				return fmt.Errorf("servers[%s] key %q: %w", name, key, ErrUnknownKeyRef)
			}
		}
	}

	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// ResolveServer returns the effective host, port, and key secret for a
// named server, falling back to the default section for any field a
// server entry leaves unset. An empty name resolves the default target.
func (c *Config) ResolveServer(name string) (host string, port int, key string, err error) {
	if name == "" {
		return c.Default.Host, c.Default.Port, c.Keys[c.Default.Key], nil
	}

	srv, ok := c.Servers[name]
	if !ok {
		return "", 0, "", fmt.Errorf("gornd: unknown server %q", name)
	}

	host = srv.Host
	if host == "" {
		host = c.Default.Host
	}
	port = srv.Port
	if port == 0 {
		port = c.Default.Port
	}
	keyName := srv.Key
	if keyName == "" {
		keyName = c.Default.Key
	}
	return host, port, c.Keys[keyName], nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
