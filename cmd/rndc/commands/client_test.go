package commands

import (
	"strings"
	"testing"

	"github.com/isccctl/gornd/internal/config"
)

func TestResolveClientUsesDefault(t *testing.T) {
	orig, origHost, origPort := cfg, hostOverride, portOverride
	defer func() { cfg, hostOverride, portOverride = orig, origHost, origPort }()

	cfg = &config.Config{
		Default: config.DefaultConfig{Key: "main", Host: "127.0.0.1", Port: 953},
		Keys:    map[string]string{"main": "c2VjcmV0"},
	}
	hostOverride, portOverride = "", 0
	serverName = ""

	client, err := resolveClient()
	if err != nil {
		t.Fatalf("resolveClient: %v", err)
	}
	if client.Host != "127.0.0.1" || client.Port != 953 {
		t.Errorf("got host=%s port=%d", client.Host, client.Port)
	}
}

func TestResolveClientAppliesOverrides(t *testing.T) {
	orig, origHost, origPort := cfg, hostOverride, portOverride
	defer func() { cfg, hostOverride, portOverride = orig, origHost, origPort }()

	cfg = &config.Config{
		Default: config.DefaultConfig{Key: "main", Host: "127.0.0.1", Port: 953},
		Keys:    map[string]string{"main": "c2VjcmV0"},
	}
	hostOverride = "10.0.0.5"
	portOverride = 9953
	serverName = ""

	client, err := resolveClient()
	if err != nil {
		t.Fatalf("resolveClient: %v", err)
	}
	if client.Host != "10.0.0.5" || client.Port != 9953 {
		t.Errorf("got host=%s port=%d", client.Host, client.Port)
	}
}

func TestResolveClientMissingKeyErrors(t *testing.T) {
	orig, origHost, origPort := cfg, hostOverride, portOverride
	defer func() { cfg, hostOverride, portOverride = orig, origHost, origPort }()

	cfg = &config.Config{
		Default: config.DefaultConfig{Host: "127.0.0.1", Port: 953},
		Keys:    map[string]string{},
	}
	hostOverride, portOverride = "", 0
	serverName = ""

	_, err := resolveClient()
	if err == nil || !strings.Contains(err.Error(), "no key configured") {
		t.Fatalf("expected no-key error, got %v", err)
	}
}
