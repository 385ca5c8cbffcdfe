package datasources

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/subscription"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	cstream "github.com/planxnx/concurrent-stream"
	"github.com/samber/lo"
)

var (
	// FetchConcurrency is the number of chunks fetched in parallel.
	FetchConcurrency = 8

	// FetchChunkSize is the number of blocks per chunk.
	FetchChunkSize = 10
)

type blockGetter func(ctx context.Context, height int64) (*types.Block, error)

// streamBlocks fetches blocks [from, to] in parallel chunks and delivers them in height order.
// The first failed chunk is reported through the subscription error channel and ends the stream,
// so consumers never see a gap.
func streamBlocks(ctx context.Context, from, to int64, ch chan<- []*types.Block, get blockGetter) *subscription.ClientSubscription[[]*types.Block] {
	sub := subscription.NewSubscription(ch)
	if from > to {
		sub.Close()
		return sub.Client()
	}

	ctx, cancel := context.WithCancel(ctx)

	// Create parallel stream
	out := make(chan []*types.Block)
	stream := cstream.NewStream(ctx, FetchConcurrency, out)

	heights := make([]int64, 0, to-from+1)
	for h := from; h <= to; h++ {
		heights = append(heights, h)
	}

	// Wait for stream to finish and close out channel
	go func() {
		defer close(out)
		_ = stream.Wait()
	}()

	// Fan-out blocks to subscription channel
	go func() {
		defer cancel()
		defer sub.Close()
		for {
			select {
			case data, ok := <-out:
				// stream closed
				if !ok {
					return
				}

				// failed chunk, later chunks are dropped
				if len(data) == 0 {
					return
				}

				if err := sub.Send(ctx, data); err != nil {
					logger.DebugContext(ctx, "Stopped dispatching blocks",
						slogx.Error(err),
						slogx.Int64("start", data[0].Header.Height),
						slogx.Int64("end", data[len(data)-1].Header.Height),
					)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Parallel fetch blocks until complete all block heights or subscription is done.
	go func() {
		defer stream.Close()
		done := sub.Client().Done()
		for _, chunk := range lo.Chunk(heights, FetchChunkSize) {
			chunk := chunk
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			default:
			}
			stream.Go(func() []*types.Block {
				blocks := make([]*types.Block, 0, len(chunk))
				for _, height := range chunk {
					block, err := get(ctx, height)
					if err != nil {
						if ctx.Err() == nil {
							logger.ErrorContext(ctx, "Failed to get block", err, slogx.Int64("height", height))
							_ = sub.SendError(ctx, errors.Wrapf(err, "failed to get block, height: %d", height))
						}
						cancel()
						return nil
					}
					blocks = append(blocks, block)
				}
				return blocks
			})
		}
	}()

	return sub.Client()
}

// collectBlocks drains a subscription started by FetchAsync.
func collectBlocks(ctx context.Context, sub *subscription.ClientSubscription[[]*types.Block], ch <-chan []*types.Block) ([]*types.Block, error) {
	defer sub.Unsubscribe()

	blocks := make([]*types.Block, 0)
	for {
		select {
		case b := <-ch:
			blocks = append(blocks, b...)
		case <-sub.Done():
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "context done")
			}
			// done is closed only after every sent value was received
			select {
			case err := <-sub.Err():
				if err != nil {
					return nil, errors.Wrap(err, "got error while fetch async")
				}
			default:
			}
			return blocks, nil
		case err := <-sub.Err():
			if err != nil {
				return nil, errors.Wrap(err, "got error while fetch async")
			}
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "context done")
		}
	}
}
