package btcclient

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Contract is the subset of a node client needed to resolve previous outputs.
type Contract interface {
	// GetRawTransaction returns errs.NotFound when the node doesn't know the transaction.
	GetRawTransaction(ctx context.Context, txHash chainhash.Hash) (*wire.MsgTx, error)
}
