package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/internal/config"
	"github.com/hertarr/ordi/modules/ordinals"
	"github.com/spf13/cobra"
)

func NewSnapshotCommand() *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage UTXO snapshots",
	}

	var out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the sat ranges of every unspent output to a parquet file",
		Long:  "Write the sat ranges of every unspent output to a parquet file. The indexer must be stopped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := config.Load()
			return errors.WithStack(ordinals.ExportSnapshot(cmd.Context(), conf.Ordinals, out))
		},
	}
	exportCmd.Flags().StringVar(&out, "out", "", "local path or `s3://bucket/key`")
	_ = exportCmd.MarkFlagRequired("out")

	snapshotCmd.AddCommand(exportCmd)
	return snapshotCmd
}
