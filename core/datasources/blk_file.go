package datasources

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/kvstore"
	"github.com/hertarr/ordi/internal/subscription"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	blockIndexDir = "index"
	xorKeyFile    = "xor.dat"

	// open blk*.dat handles kept around
	maxOpenBlockFiles = 16

	// blocks are at most 4 MB on mainnet, anything larger is a broken index
	maxBlockSize = 32 << 20
)

// Make sure to implement the Datasource interface
var _ Datasource[*types.Block] = (*BlkFileDatasource)(nil)

// BlkFileDatasource reads blocks straight from a Bitcoin Core blocks directory.
//
// The block index is loaded once on open. Heights above the indexed tip are
// served by the fallback datasource when one is set. The last reorgWindow
// indexed blocks are checked against the fallback on every read, the index is
// cut back to the fork point when the fallback has moved to another branch.
type BlkFileDatasource struct {
	blocksDir   string
	xorKey      []byte
	fallback    Datasource[*types.Block]
	reorgWindow int64

	chainMu sync.RWMutex
	chain   []*blockIndexEntry

	filesMu sync.Mutex
	files   *lru.Cache[int32, *os.File]
}

// NewBlkFile opens the Bitcoin Core blocks directory (the one holding blk*.dat and index/).
// fallback may be nil, reorgWindow is ignored without it.
func NewBlkFile(ctx context.Context, blocksDir string, fallback Datasource[*types.Block], reorgWindow int64) (*BlkFileDatasource, error) {
	db, err := kvstore.OpenReadOnly(filepath.Join(blocksDir, blockIndexDir))
	if err != nil {
		return nil, errors.Wrap(err, "can't open block index")
	}
	defer db.Close()

	chain, err := loadMainChain(db)
	if err != nil {
		return nil, errors.Wrap(err, "can't load block index")
	}

	xorKey, err := os.ReadFile(filepath.Join(blocksDir, xorKeyFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		xorKey = nil
	case err != nil:
		return nil, errors.Wrap(err, "can't read xor key")
	}
	if len(xorKey) > 0 && len(xorKey) != 8 {
		return nil, errors.Wrapf(errs.DecodeError, "invalid xor key length %d", len(xorKey))
	}
	if bytes.Count(xorKey, []byte{0}) == len(xorKey) {
		xorKey = nil
	}

	files, err := lru.NewWithEvict(maxOpenBlockFiles, func(_ int32, f *os.File) {
		_ = f.Close()
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	logger.InfoContext(ctx, "Loaded block index",
		slogx.String("blocks_dir", blocksDir),
		slogx.Int64("tip", int64(len(chain)-1)),
		slogx.Bool("xor", xorKey != nil),
	)
	return &BlkFileDatasource{
		blocksDir:   blocksDir,
		xorKey:      xorKey,
		fallback:    fallback,
		reorgWindow: max(reorgWindow, 0),
		chain:       chain,
		files:       files,
	}, nil
}

func (BlkFileDatasource) Name() string {
	return "blk_file"
}

func (d *BlkFileDatasource) Fetch(ctx context.Context, from, to int64) ([]*types.Block, error) {
	ch := make(chan []*types.Block)
	subscription, err := d.FetchAsync(ctx, from, to, ch)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return collectBlocks(ctx, subscription, ch)
}

func (d *BlkFileDatasource) FetchAsync(ctx context.Context, from, to int64, ch chan<- []*types.Block) (*subscription.ClientSubscription[[]*types.Block], error) {
	latest, err := d.GetCurrentBlockHeight(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare fetch range")
	}
	from, to = clampRange(from, to, latest)
	return streamBlocks(ctx, from, to, ch, d.GetBlock), nil
}

// IndexedHeight is the highest block served from the block index.
func (d *BlkFileDatasource) IndexedHeight() int64 {
	d.chainMu.RLock()
	defer d.chainMu.RUnlock()
	return int64(len(d.chain) - 1)
}

// indexedEntry returns the index entry at height, or nil when the height has to be served by the fallback.
func (d *BlkFileDatasource) indexedEntry(ctx context.Context, height int64) (*blockIndexEntry, error) {
	d.chainMu.RLock()
	chain := d.chain
	d.chainMu.RUnlock()

	tip := int64(len(chain) - 1)
	if height > tip {
		return nil, nil
	}
	entry := chain[height]
	if d.fallback == nil || height <= tip-d.reorgWindow {
		return entry, nil
	}

	header, err := d.fallback.GetBlockHeader(ctx, height)
	switch {
	case errors.Is(err, errs.NotFound):
		// fallback is behind the index
		return entry, nil
	case err != nil:
		return nil, errors.Wrapf(err, "failed to verify indexed block at height %d", height)
	case header.Hash == entry.Hash:
		return entry, nil
	}

	d.chainMu.Lock()
	if int64(len(d.chain)) > height {
		d.chain = d.chain[:height]
	}
	d.chainMu.Unlock()
	logger.WarnContext(ctx, "Block index is on a stale branch, reading from the fallback",
		slogx.Int64("height", height),
		slogx.Stringer("indexed_hash", entry.Hash),
		slogx.Stringer("fallback_hash", header.Hash),
	)
	return nil, nil
}

func (d *BlkFileDatasource) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	if d.fallback != nil {
		height, err := d.fallback.GetCurrentBlockHeight(ctx)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		return max(height, d.IndexedHeight()), nil
	}
	return d.IndexedHeight(), nil
}

func (d *BlkFileDatasource) GetBlockHeader(ctx context.Context, height int64) (types.BlockHeader, error) {
	if height < 0 {
		return types.BlockHeader{}, errors.Wrapf(errs.NotFound, "block height %d", height)
	}
	entry, err := d.indexedEntry(ctx, height)
	if err != nil {
		return types.BlockHeader{}, errors.WithStack(err)
	}
	if entry == nil {
		if d.fallback == nil {
			return types.BlockHeader{}, errors.Wrapf(errs.NotFound, "block height %d is above the indexed tip", height)
		}
		header, err := d.fallback.GetBlockHeader(ctx, height)
		return header, errors.WithStack(err)
	}
	return types.ParseBlockHeader(&entry.Header, height), nil
}

// GetBlock returns the main chain block at height.
func (d *BlkFileDatasource) GetBlock(ctx context.Context, height int64) (*types.Block, error) {
	if height < 0 {
		return nil, errors.Wrapf(errs.NotFound, "block height %d", height)
	}
	entry, err := d.indexedEntry(ctx, height)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if entry == nil {
		if d.fallback == nil {
			return nil, errors.Wrapf(errs.NotFound, "block height %d is above the indexed tip", height)
		}
		blocks, err := d.fallback.Fetch(ctx, height, height)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if len(blocks) == 0 {
			return nil, errors.Wrapf(errs.NotFound, "block height %d", height)
		}
		return blocks[0], nil
	}

	raw, err := d.readBlock(entry.File, entry.DataPos)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read block %s at height %d", entry.Hash, height)
	}
	var block wire.MsgBlock
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, errors.Wrapf(errs.DecodeError, "can't decode block %s: %v", entry.Hash, err)
	}
	if hash := block.BlockHash(); !hash.IsEqual(&entry.Hash) {
		return nil, errors.Wrapf(errs.ConsistencyError, "block at height %d has hash %s, index says %s", height, hash, entry.Hash)
	}
	return types.ParseMsgBlock(&block, height), nil
}

// readBlock reads the block stored at pos of blk{file}.dat. The 4 bytes before pos hold its size.
func (d *BlkFileDatasource) readBlock(file int32, pos uint32) ([]byte, error) {
	if pos < 4 {
		return nil, errors.Wrapf(errs.ConsistencyError, "invalid data pos %d", pos)
	}
	// evicted files are closed, so reads hold the lock
	d.filesMu.Lock()
	defer d.filesMu.Unlock()
	f, err := d.openFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sizeBytes := make([]byte, 4)
	if _, err := f.ReadAt(sizeBytes, int64(pos)-4); err != nil {
		return nil, errors.Wrap(err, "can't read block size")
	}
	d.unmask(sizeBytes, int64(pos)-4)
	size := binary.LittleEndian.Uint32(sizeBytes)
	if size > maxBlockSize {
		return nil, errors.Wrapf(errs.DecodeError, "block size %d exceeds limit", size)
	}

	raw := make([]byte, size)
	if _, err := f.ReadAt(raw, int64(pos)); err != nil {
		return nil, errors.Wrap(err, "can't read block data")
	}
	d.unmask(raw, int64(pos))
	return raw, nil
}

// unmask undoes the xor obfuscation of data read at offset.
func (d *BlkFileDatasource) unmask(data []byte, offset int64) {
	if d.xorKey == nil {
		return
	}
	for i := range data {
		data[i] ^= d.xorKey[(offset+int64(i))%int64(len(d.xorKey))]
	}
}

func (d *BlkFileDatasource) openFile(file int32) (*os.File, error) {
	if f, ok := d.files.Get(file); ok {
		return f, nil
	}
	f, err := os.Open(filepath.Join(d.blocksDir, fmt.Sprintf("blk%05d.dat", file)))
	if err != nil {
		return nil, errors.Wrapf(err, "can't open block file %d", file)
	}
	d.files.Add(file, f)
	return f, nil
}

// Close closes the open block files.
func (d *BlkFileDatasource) Close() error {
	d.filesMu.Lock()
	defer d.filesMu.Unlock()
	d.files.Purge()
	return nil
}
