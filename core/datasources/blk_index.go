package datasources

import (
	"bytes"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Block status flags of Bitcoin Core's CBlockIndex.
const (
	blockValidTree    = 2
	blockValidScripts = 5
	blockValidMask    = 7
	blockHaveData  = 8
	blockHaveUndo  = 16
	blockFailed    = 32 | 64
)

const blockIndexPrefix = 'b'

// blockIndexEntry is a decoded CDiskBlockIndex record.
type blockIndexEntry struct {
	Hash    chainhash.Hash
	Height  int64
	Status  uint64
	TxCount uint64
	File    int32
	DataPos uint32
	Header  wire.BlockHeader
}

// readCoreVarInt decodes Bitcoin Core's VARINT (MSB base-128 with the +1 offset per continuation byte).
func readCoreVarInt(data []byte) (n uint64, length int, err error) {
	for i, b := range data {
		if n > (1<<64-1)>>7 {
			return 0, 0, errors.WithStack(errs.OverflowUint64)
		}
		n = (n << 7) | uint64(b&0x7f)
		if b&0x80 == 0 {
			return n, i + 1, nil
		}
		if n == 1<<64-1 {
			return 0, 0, errors.WithStack(errs.OverflowUint64)
		}
		n++
	}
	return 0, 0, errors.Wrap(errs.DecodeError, "truncated varint")
}

func decodeBlockIndexEntry(hash chainhash.Hash, value []byte) (*blockIndexEntry, error) {
	fields := make([]uint64, 0, 7)
	offset := 0
	next := func() (uint64, error) {
		n, length, err := readCoreVarInt(value[offset:])
		if err != nil {
			return 0, errors.WithStack(err)
		}
		offset += length
		fields = append(fields, n)
		return n, nil
	}

	// version, height, status, tx count
	for i := 0; i < 4; i++ {
		if _, err := next(); err != nil {
			return nil, errors.Wrapf(err, "can't decode block index %s", hash)
		}
	}
	entry := &blockIndexEntry{
		Hash:    hash,
		Height:  int64(fields[1]),
		Status:  fields[2],
		TxCount: fields[3],
		File:    -1,
	}
	if entry.Status&(blockHaveData|blockHaveUndo) != 0 {
		file, err := next()
		if err != nil {
			return nil, errors.Wrapf(err, "can't decode block file of %s", hash)
		}
		entry.File = int32(file)
	}
	if entry.Status&blockHaveData != 0 {
		pos, err := next()
		if err != nil {
			return nil, errors.Wrapf(err, "can't decode data pos of %s", hash)
		}
		entry.DataPos = uint32(pos)
	}
	if entry.Status&blockHaveUndo != 0 {
		if _, err := next(); err != nil {
			return nil, errors.Wrapf(err, "can't decode undo pos of %s", hash)
		}
	}

	if err := entry.Header.Deserialize(bytes.NewReader(value[offset:])); err != nil {
		return nil, errors.Wrapf(errs.DecodeError, "can't decode header of %s: %v", hash, err)
	}
	return entry, nil
}

// hasBlock reports whether the block data is on disk and its header connects to the tree.
func (e *blockIndexEntry) hasBlock() bool {
	return e.Status&blockHaveData != 0 &&
		e.Status&blockValidMask >= blockValidTree &&
		e.Status&blockFailed == 0
}

// loadMainChain reads every usable block index record and walks back from the block with the most work.
// The result is indexed by height.
func loadMainChain(db *leveldb.DB) ([]*blockIndexEntry, error) {
	snapshot, err := db.GetSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "can't get block index snapshot")
	}
	defer snapshot.Release()

	entries := make(map[chainhash.Hash]*blockIndexEntry)

	iter := snapshot.NewIterator(util.BytesPrefix([]byte{blockIndexPrefix}), nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != 1+chainhash.HashSize {
			continue
		}
		hash, err := chainhash.NewHash(key[1:])
		if err != nil {
			return nil, errors.WithStack(err)
		}
		entry, err := decodeBlockIndexEntry(*hash, iter.Value())
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if !entry.hasBlock() {
			continue
		}
		entries[*hash] = entry
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "can't iterate block index")
	}

	tip := selectTip(entries)
	if tip == nil {
		return nil, errors.Wrap(errs.NotFound, "block index has no block data")
	}

	chain := make([]*blockIndexEntry, tip.Height+1)
	for entry := tip; ; {
		chain[entry.Height] = entry
		if entry.Height == 0 {
			break
		}
		prev, ok := entries[entry.Header.PrevBlock]
		if !ok || prev.Height != entry.Height-1 {
			return nil, errors.Wrapf(errs.ConsistencyError, "block index is missing the parent of %s at height %d", entry.Hash, entry.Height)
		}
		entry = prev
	}
	return chain, nil
}

// selectTip returns the entry with the most accumulated work. Ties go to the
// entry with fully validated scripts, then to the lowest hash.
func selectTip(entries map[chainhash.Hash]*blockIndexEntry) *blockIndexEntry {
	work := make(map[chainhash.Hash]*big.Int, len(entries))
	chainWork := func(entry *blockIndexEntry) *big.Int {
		// walk back to a known total or the start of the stored branch
		var path []*blockIndexEntry
		total := new(big.Int)
		for e := entry; e != nil; e = entries[e.Header.PrevBlock] {
			if w, ok := work[e.Hash]; ok {
				total.Set(w)
				break
			}
			path = append(path, e)
		}
		for i := len(path) - 1; i >= 0; i-- {
			total = new(big.Int).Add(total, blockchain.CalcWork(path[i].Header.Bits))
			work[path[i].Hash] = total
		}
		return work[entry.Hash]
	}

	var (
		tip     *blockIndexEntry
		tipWork *big.Int
	)
	for _, entry := range entries {
		w := chainWork(entry)
		if tip == nil {
			tip, tipWork = entry, w
			continue
		}
		switch c := w.Cmp(tipWork); {
		case c > 0:
		case c < 0:
			continue
		case entry.validScripts() != tip.validScripts():
			if !entry.validScripts() {
				continue
			}
		case bytes.Compare(entry.Hash[:], tip.Hash[:]) >= 0:
			continue
		}
		tip, tipWork = entry, w
	}
	return tip
}

func (e *blockIndexEntry) validScripts() bool {
	return e.Status&blockValidMask >= blockValidScripts
}
