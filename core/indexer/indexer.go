package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/datasources"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/metrics"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	"github.com/samber/lo"
)

const (
	// DefaultPollingInterval is the polling interval once the indexer caught up with the datasource.
	DefaultPollingInterval = 10 * time.Second

	// DefaultMaxReorgDepth bounds the search of a fork point.
	DefaultMaxReorgDepth = 100

	maxRetryInterval = time.Minute
)

var retryInitialInterval = time.Second

type Options struct {
	PollingInterval time.Duration

	// MaxReorgDepth is the deepest reorg the processor can revert, usually its undo retention.
	MaxReorgDepth int64
}

// Make sure to implement the IndexerWorker interface
var _ IndexerWorker = (*Indexer[*types.Block])(nil)

// Indexer generic indexer for fetching and processing data
type Indexer[T Input] struct {
	Processor    Processor[T]
	Datasource   datasources.Datasource[T]
	currentBlock types.BlockHeader

	pollingInterval time.Duration
	maxReorgDepth   int64

	stateMu sync.RWMutex
	state   State

	quitOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// New create new generic indexer
func New[T Input](processor Processor[T], datasource datasources.Datasource[T], opts Options) *Indexer[T] {
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = DefaultPollingInterval
	}
	if opts.MaxReorgDepth <= 0 {
		opts.MaxReorgDepth = DefaultMaxReorgDepth
	}
	return &Indexer[T]{
		Processor:  processor,
		Datasource: datasource,

		pollingInterval: opts.PollingInterval,
		maxReorgDepth:   opts.MaxReorgDepth,

		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (i *Indexer[T]) State() State {
	i.stateMu.RLock()
	defer i.stateMu.RUnlock()
	return i.state
}

func (i *Indexer[T]) setState(ctx context.Context, state State) {
	i.stateMu.Lock()
	prev := i.state
	i.state = state
	i.stateMu.Unlock()

	metrics.SetState(state.String(), lo.Map(States, func(s State, _ int) string { return s.String() }))
	if prev != state {
		logger.DebugContext(ctx, "Indexer state changed",
			slogx.Stringer("from", prev),
			slogx.Stringer("to", state),
		)
	}
}

// Shutdown stops the indexer and waits for Run to return. The block being processed commits or is discarded as a whole.
func (i *Indexer[T]) Shutdown() error {
	return i.ShutdownWithContext(context.Background())
}

func (i *Indexer[T]) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return i.ShutdownWithContext(ctx)
}

func (i *Indexer[T]) ShutdownWithContext(ctx context.Context) (err error) {
	i.quitOnce.Do(func() {
		close(i.quit)
	})
	select {
	case <-i.done:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "indexer shutdown context canceled")
	}
	return
}

// Run blocks until Shutdown, ctx cancellation or a fatal error.
// Errors marked with errs.SourceUnavailable are retried with exponential backoff.
func (i *Indexer[T]) Run(ctx context.Context) (err error) {
	defer close(i.done)
	defer i.setState(ctx, StateClosed)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-i.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	ctx = logger.WithContext(ctx,
		slog.String("package", "indexer"),
		slog.String("processor", i.Processor.Name()),
		slog.String("datasource", i.Datasource.Name()),
	)
	i.setState(ctx, StateIdle)

	if err := i.Processor.VerifyStates(ctx); err != nil {
		return errors.Wrap(err, "can't verify processor states")
	}

	// set to -1 to start from genesis block
	i.currentBlock, err = i.Processor.CurrentBlock(ctx)
	if err != nil {
		if !errors.Is(err, errs.NotFound) {
			return errors.Wrap(err, "can't init state, failed to get indexer current block")
		}
		i.currentBlock = types.BlockHeader{Height: -1}
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = retryInitialInterval
	retry.MaxInterval = maxRetryInterval
	retry.MaxElapsedTime = 0

	for {
		wait, err := i.step(ctx)
		switch {
		case err == nil:
			retry.Reset()
		case ctx.Err() != nil:
			logger.InfoContext(ctx, "Got quit signal, stopping indexer")
			return nil
		case errors.Is(err, errs.SourceUnavailable):
			wait = retry.NextBackOff()
			logger.WarnContext(ctx, "Datasource unavailable, retrying",
				slogx.Error(err),
				slogx.Duration("retry_in", wait),
			)
		default:
			logger.ErrorContext(ctx, "Indexer failed while processing", err)
			return errors.Wrap(err, "process failed")
		}

		if wait == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Got quit signal, stopping indexer")
			return nil
		case <-time.After(wait):
		}
	}
}

// step runs one round and returns how long to wait before the next one.
func (i *Indexer[T]) step(ctx context.Context) (time.Duration, error) {
	tip, err := i.Datasource.GetCurrentBlockHeight(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get current block height")
	}
	if tip <= i.currentBlock.Height {
		i.setState(ctx, StateCaughtUp)
		logger.DebugContext(ctx, "Waiting for next polling interval", slogx.Int64("tip", tip))
		return i.pollingInterval, nil
	}

	i.setState(ctx, StateSyncing)
	if err := i.process(ctx); err != nil {
		return 0, errors.WithStack(err)
	}
	return 0, nil
}

func (i *Indexer[T]) process(ctx context.Context) (err error) {
	// height range to fetch data
	from, to := i.currentBlock.Height+1, int64(-1)

	logger.InfoContext(ctx, "Start fetching input data", slog.Int64("from", from))
	ch := make(chan []T)
	subscription, err := i.Datasource.FetchAsync(ctx, from, to, ch)
	if err != nil {
		return errors.Wrap(err, "failed to fetch input data")
	}
	defer subscription.Unsubscribe()

	for {
		select {
		case inputs := <-ch:
			// empty inputs
			if len(inputs) == 0 {
				continue
			}

			firstInputHeader := inputs[0].BlockHeader()
			startAt := time.Now()
			ctx := logger.WithContext(ctx,
				slogx.Int64("from", firstInputHeader.Height),
				slogx.Int64("to", inputs[len(inputs)-1].BlockHeader().Height),
			)

			// validate reorg from first input
			if i.currentBlock.Height >= 0 && !firstInputHeader.PrevBlock.IsEqual(&i.currentBlock.Hash) {
				logger.WarnContext(ctx, "Detected chain reorganization. Searching for fork point...",
					slogx.String("event", "reorg_detected"),
					slogx.Stringer("current_hash", i.currentBlock.Hash),
					slogx.Stringer("expected_hash", firstInputHeader.PrevBlock),
				)
				if err := i.handleReorg(ctx); err != nil {
					return errors.WithStack(err)
				}
				// end current round to fetch again
				return nil
			}

			// validate is input is continuous and no reorg
			for i := 1; i < len(inputs); i++ {
				header := inputs[i].BlockHeader()
				prevHeader := inputs[i-1].BlockHeader()
				if header.Height != prevHeader.Height+1 {
					return errors.Wrapf(errs.InternalError, "input is not continuous, input[%d] height: %d, input[%d] height: %d", i-1, prevHeader.Height, i, header.Height)
				}

				if !header.PrevBlock.IsEqual(&prevHeader.Hash) {
					logger.WarnContext(ctx, "Chain Reorganization occurred in the middle of batch fetching inputs, need to try to fetch again")

					// end current round
					return nil
				}
			}

			ctx = logger.WithContext(ctx, slog.Int("total_inputs", len(inputs)))

			logger.InfoContext(ctx, "Processing inputs")
			if err := i.Processor.Process(ctx, inputs); err != nil {
				// some inputs may have been committed before the failure
				if current, cerr := i.Processor.CurrentBlock(ctx); cerr == nil {
					i.currentBlock = current
				}
				return errors.WithStack(err)
			}

			// Update current state
			i.currentBlock = inputs[len(inputs)-1].BlockHeader()
			metrics.IndexerHeight.Set(float64(i.currentBlock.Height))

			logger.InfoContext(ctx, "Processed inputs successfully",
				slogx.String("event", "processed_inputs"),
				slogx.Int64("current_block", i.currentBlock.Height),
				slogx.Duration("duration", time.Since(startAt)),
			)
		case <-subscription.Done():
			// end current round
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "context done")
			}
			select {
			case err := <-subscription.Err():
				if err != nil {
					return errors.Wrap(err, "got error while fetch async")
				}
			default:
			}
			return nil
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case err := <-subscription.Err():
			if err != nil {
				return errors.Wrap(err, "got error while fetch async")
			}
		}
	}
}

// handleReorg walks back from the current block to the fork point and reverts every block above it.
func (i *Indexer[T]) handleReorg(ctx context.Context) error {
	i.setState(ctx, StateReorgDetected)

	var (
		start                  = time.Now()
		targetHeight           = i.currentBlock.Height - 1
		beforeReorgBlockHeader = types.BlockHeader{Height: -1}
	)
	for ; targetHeight >= 0; targetHeight-- {
		if i.currentBlock.Height-targetHeight > i.maxReorgDepth {
			return errors.Wrapf(errs.ConsistencyError, "reorg is deeper than %d blocks", i.maxReorgDepth)
		}

		indexedHeader, err := i.Processor.GetIndexedBlock(ctx, targetHeight)
		if err != nil {
			return errors.Wrapf(err, "failed to get indexed block, height: %d", targetHeight)
		}

		remoteHeader, err := i.Datasource.GetBlockHeader(ctx, targetHeight)
		if err != nil {
			return errors.Wrapf(err, "failed to get remote block header, height: %d", targetHeight)
		}

		// Found no reorg block
		if indexedHeader.Hash.IsEqual(&remoteHeader.Hash) {
			beforeReorgBlockHeader = remoteHeader
			break
		}
	}

	logger.InfoContext(ctx, "Found reorg fork point, starting to revert data...",
		slogx.String("event", "reorg_forkpoint"),
		slogx.Int64("since", beforeReorgBlockHeader.Height+1),
		slogx.Int64("total_blocks", i.currentBlock.Height-beforeReorgBlockHeader.Height),
		slogx.Duration("search_duration", time.Since(start)),
	)

	// Revert all data since the reorg block
	i.setState(ctx, StateRollingBack)
	start = time.Now()
	if err := i.Processor.RevertData(ctx, beforeReorgBlockHeader.Height+1); err != nil {
		return errors.Wrap(err, "failed to revert data")
	}

	i.currentBlock = beforeReorgBlockHeader
	metrics.IndexerHeight.Set(float64(i.currentBlock.Height))
	logger.InfoContext(ctx, "Fixing chain reorganization completed",
		slogx.Int64("current_block", i.currentBlock.Height),
		slogx.Duration("duration", time.Since(start)),
	)
	return nil
}
