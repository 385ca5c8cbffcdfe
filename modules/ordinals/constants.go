package ordinals

import (
	"github.com/hertarr/ordi/common"
)

const (
	ClientVersion = "v0.1.0"
	DBVersion     = 1
)

// firstInscriptionHeight is the first block scanned for envelopes. Earlier blocks only move sats.
var firstInscriptionHeight = map[common.Network]int64{
	common.NetworkMainnet: 767430,
	common.NetworkTestnet: 2413343,
	common.NetworkRegtest: 0,
}
