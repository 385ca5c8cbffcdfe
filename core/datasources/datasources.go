package datasources

import (
	"context"

	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/subscription"
)

// Datasource is an interface for indexer data sources.
//
// Heights the source doesn't have fail with errs.NotFound. Transport
// failures are marked with errs.SourceUnavailable.
type Datasource[T any] interface {
	Name() string
	Fetch(ctx context.Context, from, to int64) ([]T, error)
	FetchAsync(ctx context.Context, from, to int64, ch chan<- []T) (*subscription.ClientSubscription[[]T], error)
	GetBlockHeader(ctx context.Context, height int64) (types.BlockHeader, error)
	GetCurrentBlockHeight(ctx context.Context) (int64, error)
}
