package ordinals

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/datasources"
	"github.com/hertarr/ordi/core/indexer"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/kvstore"
	"github.com/hertarr/ordi/modules/ordinals/config"
	"github.com/hertarr/ordi/modules/ordinals/internal/repository/leveldb"
	"github.com/hertarr/ordi/pkg/btcclient"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
)

const shutdownTimeout = time.Minute

type Options struct {
	Network    common.Network
	Config     config.Config
	Datasource datasources.Datasource[*types.Block]

	// BtcClient resolves spent output values when Config.PrevOut.Remote is set.
	BtcClient btcclient.Contract
}

// Engine indexes ordinals from Datasource into the store at Config.DataDir and
// dispatches the events of every committed block.
type Engine struct {
	processor  *Processor
	indexer    *indexer.Indexer[*types.Block]
	dispatcher *Dispatcher

	mu      sync.Mutex
	started bool
	closed  bool
}

// New opens the store, imports the configured snapshot into it if it's empty,
// and returns an engine ready to Start. Invalid options fail with errs.ConfigError.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.WithStack(err)
	}
	conf := opts.Config

	db, err := kvstore.Open(conf.DataDir)
	if err != nil {
		return nil, errors.WithSecondaryError(errors.Wrapf(errs.ConfigError, "can't open store %s", conf.DataDir), err)
	}
	repo := leveldb.NewRepository(db, conf.UndoRetention)
	cleanupFuncs := []func(context.Context) error{
		func(ctx context.Context) error {
			logger.InfoContext(ctx, "Closing ordinals store", slogx.String("path", conf.DataDir))
			return errors.Wrap(repo.Close(), "can't close ordinals store")
		},
	}

	dispatcher := NewDispatcher()
	processor, err := NewProcessor(repo, repo, opts.BtcClient, opts.Network, conf, dispatcher, cleanupFuncs)
	if err != nil {
		_ = repo.Close()
		return nil, errors.WithStack(err)
	}
	if err := processor.VerifyStates(ctx); err != nil {
		_ = processor.Shutdown(ctx)
		return nil, errors.Wrap(err, "can't verify states")
	}
	if err := importSnapshot(ctx, repo, opts.Network, conf); err != nil {
		_ = processor.Shutdown(ctx)
		return nil, errors.Wrap(err, "can't import snapshot")
	}

	return &Engine{
		processor: processor,
		indexer: indexer.New(processor, opts.Datasource, indexer.Options{
			PollingInterval: conf.PollingInterval,
			MaxReorgDepth:   conf.UndoRetention,
		}),
		dispatcher: dispatcher,
	}, nil
}

func validateOptions(opts Options) error {
	conf := opts.Config
	switch {
	case !opts.Network.IsSupported():
		return errors.Wrapf(errs.ConfigError, "unsupported network %q", opts.Network)
	case opts.Datasource == nil:
		return errors.Wrap(errs.ConfigError, "datasource is required")
	case conf.DataDir == "":
		return errors.Wrap(errs.ConfigError, "data dir is required")
	case conf.CursedNumbering != config.CursedNumberingSeparate && conf.CursedNumbering != config.CursedNumberingShared:
		return errors.Wrapf(errs.ConfigError, "invalid cursed numbering %q", conf.CursedNumbering)
	case conf.UndoRetention <= 0:
		return errors.Wrapf(errs.ConfigError, "undo retention must be positive, got %d", conf.UndoRetention)
	case conf.DecodeWorkers <= 0:
		return errors.Wrapf(errs.ConfigError, "decode workers must be positive, got %d", conf.DecodeWorkers)
	case conf.PrevOut.Remote && conf.PrevOut.CacheSize <= 0:
		return errors.Wrapf(errs.ConfigError, "prevout cache size must be positive, got %d", conf.PrevOut.CacheSize)
	}
	if conf.Snapshot.Path != "" {
		if _, err := chainhash.NewHashFromStr(conf.Snapshot.Hash); err != nil {
			return errors.WithSecondaryError(errors.Wrap(errs.ConfigError, "invalid snapshot hash"), err)
		}
		// snapshots carry no inscriptions
		if conf.Snapshot.Height < 0 || conf.Snapshot.Height >= firstInscriptionHeight[opts.Network] {
			return errors.Wrapf(errs.ConfigError, "snapshot height must be below the first inscription height %d", firstInscriptionHeight[opts.Network])
		}
	}
	return nil
}

// Register appends callback to the callbacks of kind. Callbacks must be registered before Start.
func (e *Engine) Register(kind EventKind, callback EventCallback) error {
	return e.dispatcher.Register(kind, callback)
}

func (e *Engine) OnInscribe(callback func(ctx context.Context, event *InscribeEvent)) error {
	return e.dispatcher.OnInscribe(callback)
}

func (e *Engine) OnTransfer(callback func(ctx context.Context, event *TransferEvent)) error {
	return e.dispatcher.OnTransfer(callback)
}

// Start indexes until ctx is canceled, Close is called or a fatal error occurs.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return errors.Wrap(errs.Closed, "engine closed")
	case e.started:
		e.mu.Unlock()
		return errors.Wrap(errs.InternalError, "engine already started")
	}
	e.started = true
	e.mu.Unlock()

	e.dispatcher.seal()
	return errors.WithStack(e.indexer.Run(ctx))
}

// State returns the state of the controller.
func (e *Engine) State() indexer.State {
	return e.indexer.State()
}

// Close stops the engine and closes the store. Safe to call more than once, from any goroutine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	e.mu.Unlock()

	var closeErrs []error
	if started {
		if err := e.indexer.ShutdownWithTimeout(shutdownTimeout); err != nil {
			closeErrs = append(closeErrs, errors.Wrap(err, "can't stop indexer"))
		}
	}
	if err := e.processor.Shutdown(context.Background()); err != nil {
		closeErrs = append(closeErrs, errors.Wrap(err, "can't shutdown processor"))
	}
	return errors.WithStack(errors.Join(closeErrs...))
}
