package leveldb

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
	"github.com/syndtr/goleveldb/leveldb"
)

// ImportOutPoints writes snapshot outputs in one batch. Values are skipped when withValues is false.
// Imports bypass the undo records, they can't be reverted.
func (r *Repository) ImportOutPoints(_ context.Context, outPoints []entity.OutPointSats, withValues bool) error {
	if r.tx != nil {
		return errors.Wrap(errs.InternalError, "can't import outpoints inside a transaction")
	}
	batch := new(leveldb.Batch)
	for _, o := range outPoints {
		if o.Value != o.SatRanges.Len() {
			return errors.Wrapf(errs.ConsistencyError, "%s is worth %d sats but holds %d", o.OutPoint, o.Value, o.SatRanges.Len())
		}
		batch.Put(satRangesKey(o.OutPoint), o.SatRanges.Bytes())
		if withValues {
			batch.Put(outPointValueKey(o.OutPoint), encodeValue(o.Value))
		}
	}
	return errors.Wrap(r.db.Write(batch, nil), "can't write outpoints batch")
}

// ImportCheckpoint sets the ledger state and indexed block a snapshot starts from.
func (r *Repository) ImportCheckpoint(_ context.Context, state *entity.LedgerState, block *entity.IndexedBlock) error {
	if r.tx != nil {
		return errors.Wrap(errs.InternalError, "can't import a checkpoint inside a transaction")
	}
	rawState, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "can't encode ledger state")
	}
	rawBlock, err := json.Marshal(block)
	if err != nil {
		return errors.Wrap(err, "can't encode indexed block")
	}
	batch := new(leveldb.Batch)
	batch.Put(ledgerStateKey(), rawState)
	batch.Put(indexedBlockKey(block.Height), rawBlock)
	return errors.Wrap(r.db.Write(batch, syncWrite), "can't write checkpoint")
}
