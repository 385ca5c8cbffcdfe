package leveldb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/internal/kvstore"
	"github.com/hertarr/ordi/modules/ordinals/internal/datagateway"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var (
	_ datagateway.OrdinalsDataGateway    = (*Repository)(nil)
	_ datagateway.IndexerInfoDataGateway = (*Repository)(nil)
)

var syncWrite = &opt.WriteOptions{Sync: true}

// Repository stores the ordinals state in a single LevelDB, one key prefix per table.
// A Repository returned by BeginOrdinalsTx buffers its writes until Commit.
type Repository struct {
	db            *leveldb.DB
	undoRetention int64
	tx            *blockTx
}

// NewRepository returns a repository over db. Undo records older than
// undoRetention blocks are pruned. Zero keeps them forever.
func NewRepository(db *leveldb.DB, undoRetention int64) *Repository {
	return &Repository{db: db, undoRetention: undoRetention}
}

// blockTx is the pending state of one block.
type blockTx struct {
	height int64
	writes map[string]*pendingWrite
	// keys in first touch order, for a deterministic batch
	keys []string
	done bool
}

type pendingWrite struct {
	value   []byte
	deleted bool
	// value of the key before the block, nil when absent
	prior      []byte
	priorFound bool
}

func (r *Repository) BeginOrdinalsTx(_ context.Context, height int64) (datagateway.OrdinalsDataGatewayWithTx, error) {
	if r.tx != nil {
		return nil, errors.Wrap(errs.InternalError, "transaction already started")
	}
	return &Repository{
		db:            r.db,
		undoRetention: r.undoRetention,
		tx: &blockTx{
			height: height,
			writes: make(map[string]*pendingWrite),
		},
	}, nil
}

func (r *Repository) Commit(_ context.Context) error {
	if r.tx == nil {
		return errors.Wrap(errs.InternalError, "no transaction to commit")
	}
	if r.tx.done {
		return errors.Wrap(errs.InternalError, "transaction already closed")
	}

	batch := new(leveldb.Batch)
	undo := make([]undoEntry, 0, len(r.tx.keys))
	for _, key := range r.tx.keys {
		w := r.tx.writes[key]
		if w.deleted {
			batch.Delete([]byte(key))
		} else {
			batch.Put([]byte(key), w.value)
		}
		undo = append(undo, undoEntry{key: []byte(key), prior: w.prior, found: w.priorFound})
	}
	batch.Put(undoKey(r.tx.height), encodeUndoRecord(undo))
	if r.undoRetention > 0 && r.tx.height-r.undoRetention >= 0 {
		batch.Delete(undoKey(r.tx.height - r.undoRetention))
	}

	if err := r.db.Write(batch, syncWrite); err != nil {
		return errors.Wrapf(err, "can't write batch of block %d", r.tx.height)
	}
	r.tx.done = true
	return nil
}

func (r *Repository) Rollback(_ context.Context) error {
	if r.tx == nil {
		return errors.Wrap(errs.InternalError, "no transaction to rollback")
	}
	r.tx.done = true
	r.tx.writes = nil
	r.tx.keys = nil
	return nil
}

// RevertBlocks applies the undo records from the latest block down to from, in one batch.
func (r *Repository) RevertBlocks(ctx context.Context, from int64) error {
	if r.tx != nil {
		return errors.Wrap(errs.InternalError, "can't revert blocks inside a transaction")
	}
	latest, err := r.GetLatestBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "can't get latest block")
	}

	batch := new(leveldb.Batch)
	for height := latest.Height; height >= from; height-- {
		raw, err := kvstore.Get(r.db, undoKey(height))
		if errors.Is(err, errs.NotFound) {
			return errors.Wrapf(errs.ConsistencyError, "undo record of block %d is missing, the reorg is deeper than the undo retention", height)
		}
		if err != nil {
			return errors.Wrapf(err, "can't get undo record of block %d", height)
		}
		entries, err := decodeUndoRecord(raw)
		if err != nil {
			return errors.Wrapf(err, "can't decode undo record of block %d", height)
		}
		// later puts win in a batch, so lower heights override higher ones
		for _, entry := range entries {
			if entry.found {
				batch.Put(entry.key, entry.prior)
			} else {
				batch.Delete(entry.key)
			}
		}
		batch.Delete(undoKey(height))
	}

	if err := r.db.Write(batch, syncWrite); err != nil {
		return errors.Wrap(err, "can't write revert batch")
	}
	return nil
}

func (r *Repository) Close() error {
	if r.tx != nil {
		return errors.Wrap(errs.InternalError, "can't close a transaction")
	}
	return errors.WithStack(r.db.Close())
}

// get reads through the pending writes of the transaction, if any.
func (r *Repository) get(key []byte) ([]byte, error) {
	if r.tx != nil {
		if r.tx.done {
			return nil, errors.Wrap(errs.InternalError, "transaction already closed")
		}
		if w, ok := r.tx.writes[string(key)]; ok {
			if w.deleted {
				return nil, errors.WithStack(errs.NotFound)
			}
			return w.value, nil
		}
	}
	return kvstore.Get(r.db, key)
}

func (r *Repository) put(key, value []byte) error {
	if r.tx == nil {
		return errors.WithStack(r.db.Put(key, value, nil))
	}
	w, err := r.touch(key)
	if err != nil {
		return err
	}
	w.value, w.deleted = value, false
	return nil
}

func (r *Repository) delete(key []byte) error {
	if r.tx == nil {
		return errors.WithStack(r.db.Delete(key, nil))
	}
	w, err := r.touch(key)
	if err != nil {
		return err
	}
	w.value, w.deleted = nil, true
	return nil
}

// touch returns the pending write of key, recording its prior value on first use.
func (r *Repository) touch(key []byte) (*pendingWrite, error) {
	if r.tx.done {
		return nil, errors.Wrap(errs.InternalError, "transaction already closed")
	}
	if w, ok := r.tx.writes[string(key)]; ok {
		return w, nil
	}
	prior, err := kvstore.Get(r.db, key)
	if err != nil && !errors.Is(err, errs.NotFound) {
		return nil, errors.WithStack(err)
	}
	w := &pendingWrite{prior: prior, priorFound: err == nil}
	r.tx.writes[string(key)] = w
	r.tx.keys = append(r.tx.keys, string(key))
	return w, nil
}
