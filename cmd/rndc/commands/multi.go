package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/isccctl/gornd/internal/iscc"
	"github.com/isccctl/gornd/internal/rndc"
)

// multiResult is one target's outcome from a fan-out command.
type multiResult struct {
	Server string `json:"server"`
	Text   string `json:"text"`
	Err    string `json:"error,omitempty"`
}

func multiCmd() *cobra.Command {
	var servers string

	cmd := &cobra.Command{
		Use:   "multi <command> --servers a,b,c",
		Short: "Send a command to several named servers concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			names, err := targetNames(servers)
			if err != nil {
				return err
			}
			return runMulti(args[0], names)
		},
	}
	cmd.Flags().StringVar(&servers, "servers", "", "comma-separated list of named servers (default: all configured servers)")
	return cmd
}

// targetNames resolves the --servers flag to the set of names to fan out
// to, defaulting to every entry in cfg.Servers when the flag is empty.
func targetNames(servers string) ([]string, error) {
	if servers == "" {
		names := make([]string, 0, len(cfg.Servers))
		for name := range cfg.Servers {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return nil, fmt.Errorf("rndc: multi requires --servers or a non-empty servers: map")
		}
		return names, nil
	}

	var names []string
	for _, name := range strings.Split(servers, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// runMulti dispatches command to each named server concurrently, then
// prints every result (successes and failures alike) in the configured
// output format.
func runMulti(command string, names []string) error {
	results := make([]multiResult, len(names))

	var group errgroup.Group
	var mu sync.Mutex

	for i, name := range names {
		i, name := i, name
		group.Go(func() error {
			res := multiResult{Server: name}

			host, port, keySecret, err := cfg.ResolveServer(name)
			if err == nil && keySecret == "" {
				err = fmt.Errorf("rndc: no key configured for server %q", name)
			}
			if err == nil {
				client := rndc.NewClient(iscc.NewKey(keySecret), host, port)
				ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
				defer cancel()

				var ok bool
				ok, err = client.Do(ctx, command)
				if ok {
					res.Text = client.Response()
				}
			}
			if err != nil {
				res.Err = err.Error()
			}

			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return printMultiResults(command, results)
}
