package btcutils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	BitcoinDecimals = 8
)

// FormatSatoshi renders sats as a fixed 8 decimals BTC amount.
func FormatSatoshi(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -BitcoinDecimals).StringFixed(BitcoinDecimals)
}
