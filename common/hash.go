package common

import (
	"math"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Zero value of chainhash.Hash
var (
	ZeroHash = *utils.Must(chainhash.NewHashFromStr("0000000000000000000000000000000000000000000000000000000000000000"))
	NullHash = ZeroHash
)

var (
	// UnboundOutPoint holds inscriptions that were never bound to a sat.
	UnboundOutPoint = wire.OutPoint{Hash: ZeroHash, Index: 0}

	// LostOutPoint holds sats (and the inscriptions on them) that no output claimed.
	LostOutPoint = wire.OutPoint{Hash: NullHash, Index: math.MaxUint32}
)
