// Package kvstore opens the LevelDB databases used by the indexer.
package kvstore

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Open opens (or creates) the database at path.
func Open(path string) (*leveldb.DB, error) {
	db, err := leveldb.OpenFile(filepath.Clean(path), &opt.Options{
		BlockCacheCapacity: 64 * opt.MiB,
		WriteBuffer:        32 * opt.MiB,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "can't open leveldb at %s", path)
	}
	return db, nil
}

// OpenReadOnly opens an existing database without writing to it. Used for a node's blocks/index.
func OpenReadOnly(path string) (*leveldb.DB, error) {
	db, err := leveldb.OpenFile(filepath.Clean(path), &opt.Options{
		ReadOnly:       true,
		ErrorIfMissing: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "can't open leveldb at %s", path)
	}
	return db, nil
}

// OpenMem opens a database that lives in memory only.
func OpenMem() *leveldb.DB {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// memory storage can't fail to open
		panic(err)
	}
	return db
}

// Get reads key and maps a missing key to errs.NotFound.
func Get(db interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
}, key []byte,
) ([]byte, error) {
	value, err := db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.WithStack(errs.NotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "leveldb get")
	}
	return value, nil
}
