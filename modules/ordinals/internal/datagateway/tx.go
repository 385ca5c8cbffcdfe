package datagateway

import "context"

type Tx interface {
	// Commit persists every write of the transaction atomically.
	Commit(ctx context.Context) error
	// Rollback discards the transaction. It's a no-op after Commit.
	Rollback(ctx context.Context) error
}
