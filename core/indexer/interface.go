package indexer

import (
	"context"

	"github.com/hertarr/ordi/core/types"
)

type Input interface {
	BlockHeader() types.BlockHeader
}

type Processor[T Input] interface {
	Name() string

	// Process processes the input data and indexes it.
	// Each input commits on its own, a canceled ctx stops between inputs.
	Process(ctx context.Context, inputs []T) error

	// CurrentBlock returns the latest indexed block header.
	// Returns errs.NotFound when nothing was indexed yet.
	CurrentBlock(ctx context.Context) (types.BlockHeader, error)

	// GetIndexedBlock returns the indexed block header by the specified block height.
	GetIndexedBlock(ctx context.Context, height int64) (types.BlockHeader, error)

	// RevertData revert synced data to the specified block height for re-indexing.
	RevertData(ctx context.Context, from int64) error

	// VerifyStates verifies the persisted states match the processor's configuration.
	VerifyStates(ctx context.Context) error

	// Shutdown releases the resources of the processor. It's safe to call more than once.
	Shutdown(ctx context.Context) error
}

type IndexerWorker interface {
	Run(ctx context.Context) error
	Shutdown() error
}
