package datasources

import (
	"context"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/subscription"
	"github.com/hertarr/ordi/pkg/btcclient"
)

// Make sure to implement the Datasource interface
var (
	_ Datasource[*types.Block] = (*BitcoinNodeDatasource)(nil)
	_ btcclient.Contract       = (*BitcoinNodeDatasource)(nil)
)

// BitcoinNodeDatasource fetch data from Bitcoin node for Bitcoin Indexer
type BitcoinNodeDatasource struct {
	btcclient *rpcclient.Client
}

// NewBitcoinNode create new BitcoinNodeDatasource with Bitcoin Core RPC Client
func NewBitcoinNode(btcclient *rpcclient.Client) *BitcoinNodeDatasource {
	return &BitcoinNodeDatasource{
		btcclient: btcclient,
	}
}

func (BitcoinNodeDatasource) Name() string {
	return "bitcoin_node"
}

// Fetch polling blocks from Bitcoin node
//
//   - from: block height to start fetching, if -1, it will start from genesis block
//   - to: block height to stop fetching, if -1, it will fetch until the latest block
func (d *BitcoinNodeDatasource) Fetch(ctx context.Context, from, to int64) ([]*types.Block, error) {
	ch := make(chan []*types.Block)
	subscription, err := d.FetchAsync(ctx, from, to, ch)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return collectBlocks(ctx, subscription, ch)
}

// FetchAsync polling blocks from Bitcoin node asynchronously (non-blocking)
//
//   - from: block height to start fetching, if -1, it will start from genesis block
//   - to: block height to stop fetching, if -1, it will fetch until the latest block
func (d *BitcoinNodeDatasource) FetchAsync(ctx context.Context, from, to int64, ch chan<- []*types.Block) (*subscription.ClientSubscription[[]*types.Block], error) {
	latest, err := d.GetCurrentBlockHeight(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare fetch range")
	}
	from, to = clampRange(from, to, latest)
	return streamBlocks(ctx, from, to, ch, d.GetBlock), nil
}

// GetBlock returns the block at height. Returns errs.NotFound if the node doesn't have it.
func (d *BitcoinNodeDatasource) GetBlock(_ context.Context, height int64) (*types.Block, error) {
	hash, err := d.btcclient.GetBlockHash(height)
	if err != nil {
		return nil, errors.Wrapf(rpcError(err), "failed to get block hash, height: %d", height)
	}
	block, err := d.btcclient.GetBlock(hash)
	if err != nil {
		return nil, errors.Wrapf(rpcError(err), "failed to get block, hash: %s", hash)
	}
	return types.ParseMsgBlock(block, height), nil
}

func (d *BitcoinNodeDatasource) GetBlockHeader(_ context.Context, height int64) (types.BlockHeader, error) {
	hash, err := d.btcclient.GetBlockHash(height)
	if err != nil {
		return types.BlockHeader{}, errors.Wrapf(rpcError(err), "failed to get block hash, height: %d", height)
	}
	header, err := d.btcclient.GetBlockHeader(hash)
	if err != nil {
		return types.BlockHeader{}, errors.Wrapf(rpcError(err), "failed to get block header, hash: %s", hash)
	}
	return types.ParseBlockHeader(header, height), nil
}

func (d *BitcoinNodeDatasource) GetCurrentBlockHeight(_ context.Context) (int64, error) {
	count, err := d.btcclient.GetBlockCount()
	if err != nil {
		return 0, errors.Wrap(rpcError(err), "failed to get block count")
	}
	return count, nil
}

// GetRawTransaction returns a transaction by hash. Needs txindex on the node for confirmed transactions.
func (d *BitcoinNodeDatasource) GetRawTransaction(_ context.Context, txHash chainhash.Hash) (*wire.MsgTx, error) {
	tx, err := d.btcclient.GetRawTransaction(&txHash)
	if err != nil {
		return nil, errors.Wrapf(rpcError(err), "failed to get raw transaction, txid: %s", txHash)
	}
	return tx.MsgTx(), nil
}

// rpcError classifies err with the error kind the indexer acts on.
func rpcError(err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case btcjson.ErrRPCInvalidParameter, btcjson.ErrRPCInvalidAddressOrKey:
			return errors.WithSecondaryError(errors.Wrap(errs.NotFound, rpcErr.Message), err)
		case btcjson.ErrRPCInWarmup:
			return errors.WithSecondaryError(errors.Wrap(errs.SourceUnavailable, rpcErr.Message), err)
		}
		return err
	}
	return errors.WithSecondaryError(errors.Wrap(errs.SourceUnavailable, err.Error()), err)
}

// clampRange resolves -1 bounds against the latest height. from > to means nothing to fetch.
func clampRange(from, to, latest int64) (int64, int64) {
	// set start to genesis block height
	if from < 0 {
		from = 0
	}

	// set end to current bitcoin block height if
	// - end is -1
	// - end is greater that current bitcoin block height
	if to < 0 || to > latest {
		to = latest
	}
	return from, to
}
