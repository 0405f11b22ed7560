package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/isccctl/gornd/internal/iscc"
	"github.com/isccctl/gornd/internal/rndc"
)

// commandTimeout bounds one Do() call; rndc has no protocol-level timeout
// (spec: "No built-in timeout; the caller implements it"), so the CLI
// supplies one via context.
const commandTimeout = 10 * time.Second

// resolveClient builds an rndc.Client for the effective target: the named
// --server entry, or cfg.Default when unset, with --host/--port applying
// as final overrides on top of either.
func resolveClient() (*rndc.Client, error) {
	host, port, keySecret, err := cfg.ResolveServer(serverName)
	if err != nil {
		return nil, err
	}
	if hostOverride != "" {
		host = hostOverride
	}
	if portOverride != 0 {
		port = portOverride
	}
	if keySecret == "" {
		return nil, fmt.Errorf("rndc: no key configured for %s:%d", host, port)
	}

	return rndc.NewClient(iscc.NewKey(keySecret), host, port), nil
}

// runCommand resolves a client, sends command, and prints the result (or
// returns the failure) in the configured output format.
func runCommand(command string) error {
	client, err := resolveClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	ok, err := client.Do(ctx, command)
	if !ok {
		return fmt.Errorf("rndc: %s: %w", command, err)
	}

	return printResult(command, client.Response())
}
