package ordinals

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
)

func TestStartingSat(t *testing.T) {
	params := &chaincfg.MainNetParams
	tests := []struct {
		height   int64
		expected uint64
	}{
		{0, 0},
		{1, 50 * 1e8},
		{210000, 210000 * 50 * 1e8},
		{210001, 210000*50*1e8 + 25*1e8},
		{420000, 210000*50*1e8 + 210000*25*1e8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, StartingSat(tt.height, params), "height %d", tt.height)
	}

	t.Run("matches summed subsidies", func(t *testing.T) {
		regtest := &chaincfg.RegressionNetParams
		var sum uint64
		for h := int64(0); h < 1000; h++ {
			assert.Equal(t, sum, StartingSat(h, regtest))
			sum += Subsidy(h, regtest)
		}
	})
	t.Run("supply is bounded", func(t *testing.T) {
		assert.Less(t, StartingSat(100_000_000, params), uint64(21_000_000*1e8))
	})
}
