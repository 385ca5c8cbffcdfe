package config

import "time"

const (
	DatasourceBitcoinNode = "bitcoin-node"
	DatasourceBlkFile     = "blk-file"
)

// Cursed inscription numbering modes.
const (
	// CursedNumberingSeparate numbers cursed inscriptions -1, -2, ...
	CursedNumberingSeparate = "separate"

	// CursedNumberingShared numbers cursed inscriptions in the blessed sequence.
	CursedNumberingShared = "shared"
)

type Config struct {
	// DataDir is the directory of the ordinals LevelDB.
	DataDir string `mapstructure:"data_dir"`

	// Datasource to fetch blocks from, `bitcoin-node` | `blk-file`.
	Datasource string `mapstructure:"datasource"`

	// BlocksDir is the node's `blocks` directory, used by the `blk-file` datasource.
	BlocksDir string `mapstructure:"blocks_dir"`

	PrevOut  PrevOutConfig  `mapstructure:"prevout"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`

	CursedNumbering string `mapstructure:"cursed_numbering"`

	// UndoRetention is how many blocks can be rolled back. It bounds the reorg depth.
	UndoRetention int64 `mapstructure:"undo_retention"`

	PollingInterval time.Duration `mapstructure:"polling_interval"`

	// DecodeWorkers bounds the envelope decoding goroutines per block.
	DecodeWorkers int `mapstructure:"decode_workers"`
}

type PrevOutConfig struct {
	// Remote resolves spent output values from the node instead of the local store.
	Remote    bool `mapstructure:"remote"`
	CacheSize int  `mapstructure:"cache_size"`
}

// SnapshotConfig points at a UTXO snapshot loaded into an empty store.
type SnapshotConfig struct {
	// Path is a local file or `s3://bucket/key`.
	Path   string `mapstructure:"path"`
	Height int64  `mapstructure:"height"`
	Hash   string `mapstructure:"hash"`
	Region string `mapstructure:"region"`

	// Static S3 credentials. The default AWS chain is used when empty, then anonymous access.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

func Default() Config {
	return Config{
		DataDir:         "./data/ordinals",
		Datasource:      DatasourceBitcoinNode,
		PrevOut:         PrevOutConfig{CacheSize: 100_000},
		CursedNumbering: CursedNumberingSeparate,
		UndoRetention:   100,
		PollingInterval: 10 * time.Second,
		DecodeWorkers:   8,
	}
}
