package cmd

import (
	"fmt"

	"github.com/hertarr/ordi/modules/ordinals"
	"github.com/spf13/cobra"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show ordi version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (db version %d)\n", ordinals.ClientVersion, ordinals.DBVersion)
		},
	}
}
