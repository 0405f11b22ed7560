package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/isccctl/gornd/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rndc client version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), appversion.Full("rndc"))
			return nil
		},
	}
}
