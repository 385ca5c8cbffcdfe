package ordinals

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/hertarr/ordi/common"
)

// GetJubileeHeight returns the height from which no inscription is cursed.
func GetJubileeHeight(network common.Network) int64 {
	switch network {
	case common.NetworkMainnet:
		return 824544
	case common.NetworkTestnet:
		return 2544192
	default:
		return 0
	}
}

// Subsidy returns the sats minted by the coinbase at height.
func Subsidy(height int64, params *chaincfg.Params) uint64 {
	return uint64(blockchain.CalcBlockSubsidy(int32(height), params))
}

// StartingSat returns the first sat minted at height, the sum of all earlier subsidies.
func StartingSat(height int64, params *chaincfg.Params) uint64 {
	interval := int64(params.SubsidyReductionInterval)
	if interval == 0 {
		return Subsidy(0, params) * uint64(height)
	}

	var sat uint64
	for epochStart := int64(0); epochStart < height; epochStart += interval {
		subsidy := Subsidy(epochStart, params)
		if subsidy == 0 {
			break
		}
		blocks := min(interval, height-epochStart)
		sat += subsidy * uint64(blocks)
	}
	return sat
}
