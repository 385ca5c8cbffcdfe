package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/datasources"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/config"
	"github.com/hertarr/ordi/internal/metrics"
	"github.com/hertarr/ordi/modules/ordinals"
	ordinalsconfig "github.com/hertarr/ordi/modules/ordinals/config"
	"github.com/hertarr/ordi/pkg/automaxprocs"
	"github.com/hertarr/ordi/pkg/errorhandler"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	"github.com/hertarr/ordi/pkg/middleware/requestlogger"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 60 * time.Second

type runCmdOptions struct {
	// DumpEvents prints every event to the command output.
	DumpEvents bool
}

func NewRunCommand() *cobra.Command {
	opts := &runCmdOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the ordinals indexer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHandler(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	flags := runCmd.Flags()
	flags.BoolVar(&opts.DumpEvents, "dump-events", false, "print inscribe and transfer events to stdout")

	return runCmd
}

func NewDumpEventCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-event",
		Short: "Start the ordinals indexer and print every event to stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHandler(cmd.Context(), &runCmdOptions{DumpEvents: true}, cmd.OutOrStdout())
		},
	}
}

func runHandler(ctx context.Context, opts *runCmdOptions, out io.Writer) error {
	conf := config.Load()

	if !conf.Network.IsSupported() {
		return errors.Wrapf(errs.Unsupported, "%q network is not supported", conf.Network.String())
	}
	if err := automaxprocs.Init(); err != nil {
		logger.Error("Failed to set GOMAXPROCS", slogx.Error(err))
	}

	ctx = logger.WithContext(ctx, slogx.Stringer("network", conf.Network))

	injector := do.New()
	do.ProvideValue(injector, conf)
	do.ProvideValue(injector, ctx)
	do.Provide(injector, newBitcoinClient)
	do.Provide(injector, newBitcoinNode)
	do.Provide(injector, newDatasource)
	do.Provide(injector, newEngine)
	do.Provide(injector, newHTTPServer)

	engine, err := do.Invoke[*ordinals.Engine](injector)
	if err != nil {
		_ = injector.Shutdown()
		return errors.Wrap(err, "can't init ordinals engine")
	}

	if opts.DumpEvents {
		if err := engine.OnInscribe(func(_ context.Context, event *ordinals.InscribeEvent) {
			fmt.Fprintln(out, event.String())
		}); err != nil {
			return errors.WithStack(err)
		}
		if err := engine.OnTransfer(func(_ context.Context, event *ordinals.TransferEvent) {
			fmt.Fprintln(out, event.String())
		}); err != nil {
			return errors.WithStack(err)
		}
	}

	engineDone := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "Starting ordinals indexer")
		engineDone <- engine.Start(ctx)
	}()

	if conf.HTTPServer.Enabled {
		app := do.MustInvoke[*fiber.App](injector)
		go func() {
			logger.InfoContext(ctx, "Started HTTP server", slog.Int("port", conf.HTTPServer.Port))
			if err := app.Listen(fmt.Sprintf(":%d", conf.HTTPServer.Port)); err != nil {
				logger.ErrorContext(ctx, "Something went wrong, error during running HTTP server", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.InfoContext(ctx, "Received exit signal. Stopping ordinals indexer...")
	case runErr = <-engineDone:
		logger.InfoContext(ctx, "Ordinals indexer stopped. Stopping application...")
		engineDone = nil
	}

	// Force shutdown if timeout exceeded or got signal again
	go func() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			logger.FatalContext(ctx, "Received exit signal again. Force shutdown...")
		case <-time.After(shutdownTimeout + 15*time.Second):
			logger.FatalContext(ctx, "Shutdown timeout exceeded. Force shutdown...")
		}
	}()

	if err := engine.Close(); err != nil {
		logger.ErrorContext(ctx, "Failed to close ordinals engine", err)
	}
	if engineDone != nil {
		runErr = <-engineDone
	}
	// blk files aren't managed by the injector
	if closer, ok := do.MustInvoke[datasources.Datasource[*types.Block]](injector).(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close datasource", err)
		}
	}
	if err := injector.Shutdown(); err != nil {
		logger.ErrorContext(ctx, "Failed while gracefully shutting down", err)
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return errors.WithStack(runErr)
}

func newBitcoinClient(i do.Injector) (*rpcclient.Client, error) {
	conf := do.MustInvoke[config.Config](i)
	ctx := do.MustInvoke[context.Context](i)

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         conf.BitcoinNode.Host,
		User:         conf.BitcoinNode.User,
		Pass:         conf.BitcoinNode.Pass,
		DisableTLS:   conf.BitcoinNode.DisableTLS,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, errors.WithSecondaryError(errors.Wrap(errs.ConfigError, "invalid Bitcoin node configuration"), err)
	}

	// Check Bitcoin RPC connection
	start := time.Now()
	logger.InfoContext(ctx, "Connecting to Bitcoin Core RPC Server...", slogx.String("host", conf.BitcoinNode.Host))
	if err := client.Ping(); err != nil {
		client.Shutdown()
		return nil, errors.WithSecondaryError(errors.Wrapf(errs.SourceUnavailable, "can't connect to Bitcoin Core RPC Server %q", conf.BitcoinNode.Host), err)
	}
	logger.InfoContext(ctx, "Connected to Bitcoin Core RPC Server", slog.Duration("latency", time.Since(start)))

	return client, nil
}

func newBitcoinNode(i do.Injector) (*datasources.BitcoinNodeDatasource, error) {
	client, err := do.Invoke[*rpcclient.Client](i)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return datasources.NewBitcoinNode(client), nil
}

func newDatasource(i do.Injector) (datasources.Datasource[*types.Block], error) {
	conf := do.MustInvoke[config.Config](i)
	ctx := do.MustInvoke[context.Context](i)

	node, err := do.Invoke[*datasources.BitcoinNodeDatasource](i)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	switch conf.Ordinals.Datasource {
	case ordinalsconfig.DatasourceBitcoinNode:
		return node, nil
	case ordinalsconfig.DatasourceBlkFile:
		if conf.Ordinals.BlocksDir == "" {
			return nil, errors.Wrap(errs.ConfigError, "blk-file datasource needs a blocks dir")
		}
		blkFile, err := datasources.NewBlkFile(ctx, conf.Ordinals.BlocksDir, node, conf.Ordinals.UndoRetention)
		if err != nil {
			return nil, errors.Wrap(err, "can't open blk files")
		}
		logger.InfoContext(ctx, "Reading blocks from blk files",
			slogx.String("dir", conf.Ordinals.BlocksDir),
			slogx.Int64("indexed_height", blkFile.IndexedHeight()),
		)
		return blkFile, nil
	default:
		return nil, errors.Wrapf(errs.ConfigError, "unknown datasource %q", conf.Ordinals.Datasource)
	}
}

func newEngine(i do.Injector) (*ordinals.Engine, error) {
	conf := do.MustInvoke[config.Config](i)
	ctx := do.MustInvoke[context.Context](i)

	datasource, err := do.Invoke[datasources.Datasource[*types.Block]](i)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	opts := ordinals.Options{
		Network:    conf.Network,
		Config:     conf.Ordinals,
		Datasource: datasource,
	}
	if conf.Ordinals.PrevOut.Remote {
		opts.BtcClient = do.MustInvoke[*datasources.BitcoinNodeDatasource](i)
	}

	engine, err := ordinals.New(ctx, opts)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return engine, nil
}

type healthResult struct {
	Network string `json:"network"`
	State   string `json:"state"`
	Version string `json:"version"`
}

func newHTTPServer(i do.Injector) (*fiber.App, error) {
	conf := do.MustInvoke[config.Config](i)
	engine := do.MustInvoke[*ordinals.Engine](i)

	app := fiber.New(fiber.Config{
		AppName:               "ordi",
		ErrorHandler:          errorhandler.NewHTTPErrorHandler(),
		DisableStartupMessage: true,
	})
	app.
		Use(metrics.HTTP).
		Use(requestlogger.New(conf.HTTPServer.Logger)).
		Use(fiberrecover.New(fiberrecover.Config{
			EnableStackTrace: true,
			StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
				buf := make([]byte, 1024) // bufLen = 1024
				buf = buf[:runtime.Stack(buf, false)]
				logger.ErrorContext(c.UserContext(), "Something went wrong, panic in http handler", errors.Newf("panic: %v", e), slog.String("stacktrace", string(buf)))
			},
		}))

	// Health check
	app.Get("/", func(c *fiber.Ctx) error {
		return errors.WithStack(c.Status(http.StatusOK).JSON(common.HttpResponse[healthResult]{
			Result: &healthResult{
				Network: conf.Network.String(),
				State:   engine.State().String(),
				Version: ordinals.ClientVersion,
			},
		}))
	})
	app.Get("/metrics", metrics.Handler())

	return app, nil
}
