// Package commands implements the rndc CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/isccctl/gornd/internal/config"
)

var (
	// cfg is the loaded configuration, populated in PersistentPreRunE.
	cfg *config.Config

	// configPath is the path to the rndc.yml configuration file.
	configPath string

	// serverName selects a named entry from cfg.Servers; empty uses
	// cfg.Default.
	serverName string

	// hostOverride/portOverride override the resolved target for a
	// single invocation, mirroring rndc's -s/-p flags.
	hostOverride string
	portOverride int

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for rndc.
var rootCmd = &cobra.Command{
	Use:   "rndc",
	Short: "Command-line client for BIND's Remote Name Daemon Control protocol",
	Long:  "rndc sends signed, length-prefixed administrative commands to a BIND name server and prints the response.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to rndc.yml (defaults only if unset)")
	rootCmd.PersistentFlags().StringVarP(&serverName, "server", "n", "", "named server from the servers: map")
	rootCmd.PersistentFlags().StringVarP(&hostOverride, "host", "s", "", "override the target host for this invocation")
	rootCmd.PersistentFlags().IntVarP(&portOverride, "port", "p", 0, "override the target port for this invocation")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reloadCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(haltCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(multiCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
