package commands

import "github.com/spf13/cobra"

// simpleCommand builds a no-argument cobra command that sends a single
// fixed rndc command verbatim.
func simpleCommand(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCommand(command)
		},
	}
}

func statusCmd() *cobra.Command {
	return simpleCommand("status", "Report the server's status", "status")
}

func reloadCmd() *cobra.Command {
	return simpleCommand("reload", "Reload the server's configuration and zones", "reload")
}

func refreshCmd() *cobra.Command {
	return simpleCommand("refresh", "Schedule zone maintenance for all zones", "refresh")
}

func stopCmd() *cobra.Command {
	return simpleCommand("stop", "Save pending updates and stop the server", "stop")
}

func haltCmd() *cobra.Command {
	return simpleCommand("halt", "Stop the server without saving pending updates", "halt")
}

func notifyCmd() *cobra.Command {
	return simpleCommand("notify", "Resend NOTIFY messages for all zones", "notify")
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command>",
		Short: "Send an arbitrary raw command string",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCommand(args[0])
		},
	}
}
