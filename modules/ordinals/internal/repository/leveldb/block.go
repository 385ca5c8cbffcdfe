package leveldb

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/kvstore"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
)

func (r *Repository) GetLatestBlock(ctx context.Context) (types.BlockHeader, error) {
	state, err := r.GetLedgerState(ctx)
	if err != nil {
		return types.BlockHeader{}, errors.WithStack(err)
	}
	block, err := r.GetIndexedBlockByHeight(ctx, state.Height)
	if err != nil {
		return types.BlockHeader{}, errors.WithStack(err)
	}
	return types.BlockHeader{
		Hash:      block.Hash,
		Height:    block.Height,
		PrevBlock: block.PrevHash,
	}, nil
}

func (r *Repository) GetIndexedBlockByHeight(_ context.Context, height int64) (*entity.IndexedBlock, error) {
	var block entity.IndexedBlock
	if err := r.getJSON(indexedBlockKey(height), &block); err != nil {
		return nil, errors.Wrapf(err, "can't get indexed block %d", height)
	}
	return &block, nil
}

func (r *Repository) CreateIndexedBlock(_ context.Context, block *entity.IndexedBlock) error {
	return r.putJSON(indexedBlockKey(block.Height), block)
}

func (r *Repository) GetLedgerState(_ context.Context) (*entity.LedgerState, error) {
	var state entity.LedgerState
	if err := r.getJSON(ledgerStateKey(), &state); err != nil {
		return nil, errors.Wrap(err, "can't get ledger state")
	}
	return &state, nil
}

func (r *Repository) SetLedgerState(_ context.Context, state *entity.LedgerState) error {
	return r.putJSON(ledgerStateKey(), state)
}

func (r *Repository) GetLatestIndexerState(_ context.Context) (entity.IndexerState, error) {
	var state entity.IndexerState
	raw, err := kvstore.Get(r.db, indexerStateKey())
	if err != nil {
		return state, errors.Wrap(err, "can't get indexer state")
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, errors.Wrap(err, "can't decode indexer state")
	}
	return state, nil
}

// CreateIndexerState writes outside of any block transaction, it's never reverted.
func (r *Repository) CreateIndexerState(_ context.Context, state entity.IndexerState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "can't encode indexer state")
	}
	return errors.Wrap(r.db.Put(indexerStateKey(), raw, syncWrite), "can't write indexer state")
}

func (r *Repository) getJSON(key []byte, v any) error {
	raw, err := r.get(key)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(json.Unmarshal(raw, v), "can't decode json")
}

func (r *Repository) putJSON(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "can't encode json")
	}
	return errors.WithStack(r.put(key, raw))
}
