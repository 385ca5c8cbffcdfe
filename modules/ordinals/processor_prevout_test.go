package ordinals

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/modules/ordinals/config"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
	"github.com/stretchr/testify/assert"
)

type nodeTransactions struct {
	txs   map[chainhash.Hash]*wire.MsgTx
	errs  map[chainhash.Hash]error
	calls int
}

func (n *nodeTransactions) GetRawTransaction(_ context.Context, txHash chainhash.Hash) (*wire.MsgTx, error) {
	n.calls++
	if err, ok := n.errs[txHash]; ok {
		return nil, err
	}
	tx, ok := n.txs[txHash]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "transaction %s", txHash)
	}
	return tx, nil
}

func remotePrevOut(conf *config.Config) {
	conf.PrevOut = config.PrevOutConfig{Remote: true, CacheSize: 16}
}

func TestProcessRemotePrevOut(t *testing.T) {
	ctx := context.Background()
	funding := testOutPoint(1)
	missing := testOutPoint(2)
	unreachable := testOutPoint(3)
	sibling := wire.OutPoint{Hash: funding.Hash, Index: 1}

	node := &nodeTransactions{
		txs: map[chainhash.Hash]*wire.MsgTx{
			funding.Hash: newTx(nil, 50, 7),
		},
		errs: map[chainhash.Hash]error{
			unreachable.Hash: errors.Wrap(errs.SourceUnavailable, "connection refused"),
		},
	}
	c := newTestChainWithClient(t, common.NetworkMainnet, node, remotePrevOut).fromSnapshot(testCursedHeight-1,
		utxo(funding, ordinals.SatRange{Start: 100, End: 150}),
		utxo(sibling, ordinals.SatRange{Start: 300, End: 307}),
		utxo(missing, ordinals.SatRange{Start: 400, End: 401}),
		utxo(unreachable, ordinals.SatRange{Start: 500, End: 501}),
	)

	t.Run("value is resolved by the node and never stored", func(t *testing.T) {
		tx := newTx([]testInput{{outPoint: funding}}, 50)
		block := c.block([]int64{int64(c.subsidy())}, tx)
		c.apply(block)

		created := wire.OutPoint{Hash: tx.TxHash(), Index: 0}
		assert.Equal(t, ordinals.SatRanges{{Start: 100, End: 150}}, c.ranges(created))
		assert.Equal(t, 1, node.calls)

		_, err := c.repo.GetOutPointValue(ctx, created)
		assert.ErrorIs(t, err, errs.NotFound)
		_, err = c.repo.GetOutPointValue(ctx, block.Transactions[0].OutPoint(0))
		assert.ErrorIs(t, err, errs.NotFound)
	})

	t.Run("siblings come from the cache", func(t *testing.T) {
		tx := newTx([]testInput{{outPoint: sibling}}, 7)
		c.apply(c.block([]int64{int64(c.subsidy())}, tx))

		assert.Equal(t, ordinals.SatRanges{{Start: 300, End: 307}}, c.ranges(wire.OutPoint{Hash: tx.TxHash(), Index: 0}))
		assert.Equal(t, 1, node.calls)
	})

	t.Run("unknown transaction is a consistency error", func(t *testing.T) {
		before := c.ledger()
		tx := newTx([]testInput{{outPoint: missing}}, 1)
		err := c.processor.Process(ctx, []*types.Block{c.block([]int64{int64(c.subsidy())}, tx)})
		assert.ErrorIs(t, err, errs.ConsistencyError)
		assert.Equal(t, before, c.ledger())
	})

	t.Run("unreachable node stays retryable", func(t *testing.T) {
		before := c.ledger()
		tx := newTx([]testInput{{outPoint: unreachable}}, 1)
		err := c.processor.Process(ctx, []*types.Block{c.block([]int64{int64(c.subsidy())}, tx)})
		assert.ErrorIs(t, err, errs.SourceUnavailable)
		assert.NotErrorIs(t, err, errs.ConsistencyError)
		assert.Equal(t, before, c.ledger())
	})
}
