package cmd

import (
	"context"
	"log/slog"

	"github.com/hertarr/ordi/internal/config"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	"github.com/spf13/cobra"
)

var cmd = &cobra.Command{
	Use:           "ordi",
	Long:          `Bitcoin ordinal ledger and inscription indexer`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	var configFile string

	// Add global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file, E.g. `./config.yaml`")
	flags.String("network", "mainnet", "network to index, E.g. `mainnet`, `testnet` or `regtest`")
	flags.String("blocks-dir", "", "Bitcoin Core `blocks` directory, read by the blk-file datasource")
	flags.Bool("remote-prevout", false, "resolve spent output values from the node instead of the local store")

	// Bind flags to configuration
	config.BindPFlag("network", flags.Lookup("network"))
	config.BindPFlag("ordinals.blocks_dir", flags.Lookup("blocks-dir"))
	config.BindPFlag("ordinals.prevout.remote", flags.Lookup("remote-prevout"))

	// Initialize configuration and logger on start command
	cobra.OnInitialize(func() {
		conf := config.Parse(configFile)

		if err := logger.Init(conf.Logger); err != nil {
			logger.Panic("Failed to initialize logger", slogx.Error(err), slog.Any("config", conf.Logger))
		}
	})
}

func Execute(ctx context.Context) {
	cmd.AddCommand(
		NewRunCommand(),
		NewDumpEventCommand(),
		NewSnapshotCommand(),
		NewVersionCommand(),
	)

	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Fatal("Failed to execute command", slogx.Error(err))
	}
}
