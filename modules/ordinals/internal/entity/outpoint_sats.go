package entity

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
)

// OutPointSats is an unspent output with the sats it holds, as stored in a UTXO snapshot.
type OutPointSats struct {
	OutPoint  wire.OutPoint
	Value     uint64
	SatRanges ordinals.SatRanges
}
