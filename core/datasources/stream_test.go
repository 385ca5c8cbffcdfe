package datasources

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/subscription"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticDatasource serves blocks[0] at height from.
type staticDatasource struct {
	blocks []*types.Block
	from   int64
}

func (staticDatasource) Name() string { return "static" }

func (d *staticDatasource) get(_ context.Context, height int64) (*types.Block, error) {
	i := height - d.from
	if i < 0 || i >= int64(len(d.blocks)) {
		return nil, errors.WithStack(errs.NotFound)
	}
	return d.blocks[i], nil
}

func (d *staticDatasource) Fetch(ctx context.Context, from, to int64) ([]*types.Block, error) {
	ch := make(chan []*types.Block)
	sub, err := d.FetchAsync(ctx, from, to, ch)
	if err != nil {
		return nil, err
	}
	return collectBlocks(ctx, sub, ch)
}

func (d *staticDatasource) FetchAsync(ctx context.Context, from, to int64, ch chan<- []*types.Block) (*subscription.ClientSubscription[[]*types.Block], error) {
	from, to = clampRange(from, to, d.from+int64(len(d.blocks))-1)
	return streamBlocks(ctx, from, to, ch, d.get), nil
}

func (d *staticDatasource) GetBlockHeader(ctx context.Context, height int64) (types.BlockHeader, error) {
	block, err := d.get(ctx, height)
	if err != nil {
		return types.BlockHeader{}, err
	}
	return block.Header, nil
}

func (d *staticDatasource) GetCurrentBlockHeight(context.Context) (int64, error) {
	return d.from + int64(len(d.blocks)) - 1, nil
}

func fakeBlocks(n int) []*types.Block {
	return lo.Times(n, func(i int) *types.Block {
		return &types.Block{Header: types.BlockHeader{Height: int64(i), Hash: chainhash.Hash{byte(i), byte(i >> 8)}}}
	})
}

func TestStreamBlocks(t *testing.T) {
	ctx := context.Background()
	datasource := &staticDatasource{blocks: fakeBlocks(95)}

	t.Run("ordered", func(t *testing.T) {
		blocks, err := datasource.Fetch(ctx, 3, -1)
		require.NoError(t, err)
		require.Len(t, blocks, 92)
		for i, block := range blocks {
			assert.Equal(t, int64(i+3), block.Header.Height)
		}
	})

	t.Run("empty range", func(t *testing.T) {
		blocks, err := datasource.Fetch(ctx, 95, -1)
		require.NoError(t, err)
		assert.Empty(t, blocks)
	})

	t.Run("failed chunk ends the stream", func(t *testing.T) {
		failAt := int64(42)
		get := func(ctx context.Context, height int64) (*types.Block, error) {
			if height == failAt {
				return nil, errors.Wrap(errs.SourceUnavailable, "connection reset")
			}
			return datasource.get(ctx, height)
		}
		ch := make(chan []*types.Block)
		sub := streamBlocks(ctx, 0, 94, ch, get)

		var last int64 = -1
		for done := false; !done; {
			select {
			case blocks := <-ch:
				for _, block := range blocks {
					require.Equal(t, last+1, block.Header.Height, "no gap")
					last = block.Header.Height
				}
			case <-sub.Done():
				done = true
			}
		}
		assert.Less(t, last, failAt)
		assert.ErrorIs(t, <-sub.Err(), errs.SourceUnavailable)
	})
}

func TestClampRange(t *testing.T) {
	from, to := clampRange(-1, -1, 10)
	assert.Equal(t, int64(0), from)
	assert.Equal(t, int64(10), to)

	from, to = clampRange(5, 100, 10)
	assert.Equal(t, int64(5), from)
	assert.Equal(t, int64(10), to)
}
