package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/isccctl/gornd/internal/config"
)

func TestDefaultConfigValues(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfigValues()

	if cfg.Default.Host != "127.0.0.1" {
		t.Errorf("Default.Host = %q, want %q", cfg.Default.Host, "127.0.0.1")
	}
	if cfg.Default.Port != config.DefaultListenPort {
		t.Errorf("Default.Port = %d, want %d", cfg.Default.Port, config.DefaultListenPort)
	}
	if cfg.Metrics.Addr != ":9953" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9953")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfigValues() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
default:
  key: "admin"
  host: "10.0.0.5"
  port: 954
keys:
  admin: "YWJjZA=="
servers:
  secondary:
    host: "10.0.0.6"
    key: "admin"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Default.Host != "10.0.0.5" {
		t.Errorf("Default.Host = %q, want %q", cfg.Default.Host, "10.0.0.5")
	}
	if cfg.Default.Port != 954 {
		t.Errorf("Default.Port = %d, want %d", cfg.Default.Port, 954)
	}
	if cfg.Keys["admin"] != "YWJjZA==" {
		t.Errorf("Keys[admin] = %q, want %q", cfg.Keys["admin"], "YWJjZA==")
	}
	if cfg.Servers["secondary"].Host != "10.0.0.6" {
		t.Errorf("Servers[secondary].Host = %q, want %q", cfg.Servers["secondary"].Host, "10.0.0.6")
	}
	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	yamlContent := `
default:
  host: "10.1.1.1"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Default.Host != "10.1.1.1" {
		t.Errorf("Default.Host = %q, want %q", cfg.Default.Host, "10.1.1.1")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Defaults preserved for untouched fields.
	if cfg.Default.Port != config.DefaultListenPort {
		t.Errorf("Default.Port = %d, want default %d", cfg.Default.Port, config.DefaultListenPort)
	}
	if cfg.Metrics.Addr != ":9953" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9953")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty default host",
			modify: func(cfg *config.Config) {
				cfg.Default.Host = ""
			},
			wantErr: config.ErrEmptyHost,
		},
		{
			name: "invalid default port",
			modify: func(cfg *config.Config) {
				cfg.Default.Port = 0
			},
			wantErr: config.ErrInvalidPort,
		},
		{
			name: "invalid default port too large",
			modify: func(cfg *config.Config) {
				cfg.Default.Port = 70000
			},
			wantErr: config.ErrInvalidPort,
		},
		{
			name: "default key not in keys map",
			modify: func(cfg *config.Config) {
				cfg.Default.Key = "missing"
			},
			wantErr: config.ErrUnknownKeyRef,
		},
		{
			name: "server references unknown key",
			modify: func(cfg *config.Config) {
				cfg.Servers = map[string]config.ServerConfig{
					"bad": {Key: "missing", Host: "10.0.0.9"},
				}
			},
			wantErr: config.ErrUnknownKeyRef,
		},
		{
			name: "server invalid port",
			modify: func(cfg *config.Config) {
				cfg.Servers = map[string]config.ServerConfig{
					"bad": {Host: "10.0.0.9", Port: -1},
				}
			},
			wantErr: config.ErrInvalidPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfigValues()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveServerDefault(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfigValues()
	cfg.Default.Key = "admin"
	cfg.Keys["admin"] = "YWJjZA=="

	host, port, key, err := cfg.ResolveServer("")
	if err != nil {
		t.Fatalf("ResolveServer(\"\") error: %v", err)
	}
	if host != "127.0.0.1" || port != config.DefaultListenPort || key != "YWJjZA==" {
		t.Errorf("ResolveServer(\"\") = (%q, %d, %q)", host, port, key)
	}
}

func TestResolveServerNamedFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfigValues()
	cfg.Default.Key = "admin"
	cfg.Keys["admin"] = "YWJjZA=="
	cfg.Servers["secondary"] = config.ServerConfig{Host: "10.0.0.6"}

	host, port, key, err := cfg.ResolveServer("secondary")
	if err != nil {
		t.Fatalf("ResolveServer(secondary) error: %v", err)
	}
	if host != "10.0.0.6" {
		t.Errorf("host = %q, want %q", host, "10.0.0.6")
	}
	if port != config.DefaultListenPort {
		t.Errorf("port = %d, want default %d", port, config.DefaultListenPort)
	}
	if key != "YWJjZA==" {
		t.Errorf("key = %q, want inherited %q", key, "YWJjZA==")
	}
}

func TestResolveServerUnknownName(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfigValues()
	if _, _, _, err := cfg.ResolveServer("nope"); err == nil {
		t.Fatal("expected error for unknown server name")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Default.Host != "127.0.0.1" {
		t.Errorf("Default.Host = %q, want default", cfg.Default.Host)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "rndc.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
