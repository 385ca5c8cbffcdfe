package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/subscription"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChain(from int64, prev chainhash.Hash, fork byte, n int) []*types.Block {
	blocks := make([]*types.Block, 0, n)
	for height := from; height < from+int64(n); height++ {
		hash := chainhash.Hash{byte(height), fork, 0xff}
		blocks = append(blocks, &types.Block{
			Header: types.BlockHeader{Height: height, Hash: hash, PrevBlock: prev},
		})
		prev = hash
	}
	return blocks
}

type fakeDatasource struct {
	mu       sync.Mutex
	chain    []*types.Block
	failures int
}

func (d *fakeDatasource) setChain(chain []*types.Block) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain = chain
}

func (d *fakeDatasource) Name() string { return "fake" }

func (d *fakeDatasource) Fetch(ctx context.Context, from, to int64) ([]*types.Block, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.Filter(d.chain, func(b *types.Block, _ int) bool {
		return b.Header.Height >= from && (to < 0 || b.Header.Height <= to)
	}), nil
}

func (d *fakeDatasource) FetchAsync(ctx context.Context, from, to int64, ch chan<- []*types.Block) (*subscription.ClientSubscription[[]*types.Block], error) {
	blocks, _ := d.Fetch(ctx, from, to)
	sub := subscription.NewSubscription(ch)
	go func() {
		defer sub.Close()
		for _, chunk := range lo.Chunk(blocks, 2) {
			if err := sub.Send(ctx, chunk); err != nil {
				return
			}
		}
	}()
	return sub.Client(), nil
}

func (d *fakeDatasource) GetBlockHeader(_ context.Context, height int64) (types.BlockHeader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.chain {
		if b.Header.Height == height {
			return b.Header, nil
		}
	}
	return types.BlockHeader{}, errors.WithStack(errs.NotFound)
}

func (d *fakeDatasource) GetCurrentBlockHeight(context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return 0, errors.Wrap(errs.SourceUnavailable, "connection refused")
	}
	return d.chain[len(d.chain)-1].Header.Height, nil
}

type fakeProcessor struct {
	mu       sync.Mutex
	applied  []types.BlockHeader
	reverted []int64
	failAt   int64
}

func (p *fakeProcessor) Name() string { return "fake" }

func (p *fakeProcessor) Process(ctx context.Context, inputs []*types.Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		if p.failAt > 0 && input.Header.Height == p.failAt {
			return errors.Wrap(errs.ConsistencyError, "outpoint not found")
		}
		p.applied = append(p.applied, input.Header)
	}
	return nil
}

func (p *fakeProcessor) CurrentBlock(context.Context) (types.BlockHeader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.applied) == 0 {
		return types.BlockHeader{}, errors.WithStack(errs.NotFound)
	}
	return p.applied[len(p.applied)-1], nil
}

func (p *fakeProcessor) GetIndexedBlock(_ context.Context, height int64) (types.BlockHeader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if height < 0 || height >= int64(len(p.applied)) {
		return types.BlockHeader{}, errors.WithStack(errs.NotFound)
	}
	return p.applied[height], nil
}

func (p *fakeProcessor) RevertData(_ context.Context, from int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied = p.applied[:from]
	p.reverted = append(p.reverted, from)
	return nil
}

func (p *fakeProcessor) VerifyStates(context.Context) error { return nil }

func (p *fakeProcessor) Shutdown(context.Context) error { return nil }

func (p *fakeProcessor) hashes() []chainhash.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.Map(p.applied, func(h types.BlockHeader, _ int) chainhash.Hash { return h.Hash })
}

func blockHashes(blocks []*types.Block) []chainhash.Hash {
	return lo.Map(blocks, func(b *types.Block, _ int) chainhash.Hash { return b.Header.Hash })
}

func startIndexer(t *testing.T, processor *fakeProcessor, datasource *fakeDatasource, opts Options) (*Indexer[*types.Block], <-chan error) {
	t.Helper()
	if opts.PollingInterval == 0 {
		opts.PollingInterval = 10 * time.Millisecond
	}
	indexer := New[*types.Block](processor, datasource, opts)
	result := make(chan error, 1)
	go func() { result <- indexer.Run(context.Background()) }()
	return indexer, result
}

func TestSyncToTip(t *testing.T) {
	chain := newChain(0, chainhash.Hash{}, 0, 7)
	datasource := &fakeDatasource{chain: chain}
	processor := &fakeProcessor{}
	indexer, result := startIndexer(t, processor, datasource, Options{})

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(blockHashes(chain), processor.hashes())
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return indexer.State() == StateCaughtUp }, 5*time.Second, 10*time.Millisecond)

	// new block while caught up
	next := newChain(7, chain[6].Header.Hash, 0, 1)
	datasource.setChain(append(chain, next...))
	require.Eventually(t, func() bool { return len(processor.hashes()) == 8 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, indexer.Shutdown())
	require.NoError(t, <-result)
	assert.Equal(t, StateClosed, indexer.State())
	// idempotent
	require.NoError(t, indexer.Shutdown())
}

func TestReorg(t *testing.T) {
	chain := newChain(0, chainhash.Hash{}, 0, 6)
	datasource := &fakeDatasource{chain: chain}
	processor := &fakeProcessor{}
	indexer, result := startIndexer(t, processor, datasource, Options{MaxReorgDepth: 10})

	require.Eventually(t, func() bool { return len(processor.hashes()) == 6 }, 5*time.Second, 10*time.Millisecond)

	// blocks 4 and 5 are replaced, and the new branch is one block longer
	fork := newChain(4, chain[3].Header.Hash, 1, 3)
	newMain := append(append([]*types.Block{}, chain[:4]...), fork...)
	datasource.setChain(newMain)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(blockHashes(newMain), processor.hashes())
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, indexer.Shutdown())
	require.NoError(t, <-result)

	processor.mu.Lock()
	defer processor.mu.Unlock()
	assert.Equal(t, []int64{4}, processor.reverted)
}

func TestReorgTooDeep(t *testing.T) {
	chain := newChain(0, chainhash.Hash{}, 0, 6)
	datasource := &fakeDatasource{chain: chain}
	processor := &fakeProcessor{}
	_, result := startIndexer(t, processor, datasource, Options{MaxReorgDepth: 2})

	require.Eventually(t, func() bool { return len(processor.hashes()) == 6 }, 5*time.Second, 10*time.Millisecond)

	datasource.setChain(newChain(0, chainhash.Hash{}, 1, 7))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, errs.ConsistencyError)
	case <-time.After(5 * time.Second):
		t.Fatal("indexer should stop on a reorg deeper than the max depth")
	}
	assert.Len(t, processor.hashes(), 6)
}

func TestRetrySourceUnavailable(t *testing.T) {
	retryInitialInterval = 10 * time.Millisecond
	t.Cleanup(func() { retryInitialInterval = time.Second })

	chain := newChain(0, chainhash.Hash{}, 0, 3)
	datasource := &fakeDatasource{chain: chain, failures: 3}
	processor := &fakeProcessor{}
	indexer, result := startIndexer(t, processor, datasource, Options{})

	require.Eventually(t, func() bool { return len(processor.hashes()) == 3 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, indexer.Shutdown())
	require.NoError(t, <-result)
}

func TestFatalError(t *testing.T) {
	chain := newChain(0, chainhash.Hash{}, 0, 5)
	datasource := &fakeDatasource{chain: chain}
	processor := &fakeProcessor{failAt: 3}
	indexer, result := startIndexer(t, processor, datasource, Options{})

	select {
	case err := <-result:
		assert.ErrorIs(t, err, errs.ConsistencyError)
	case <-time.After(5 * time.Second):
		t.Fatal("indexer should stop on a consistency error")
	}
	assert.Len(t, processor.hashes(), 3)
	assert.Equal(t, StateClosed, indexer.State())
}
