package ordinals

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
)

// SatPoint is a position inside an output, in sats from its first sat.
type SatPoint struct {
	OutPoint wire.OutPoint
	Offset   uint64
}

func (s SatPoint) String() string {
	return fmt.Sprintf("%s:%d", s.OutPoint.String(), s.Offset)
}

// NewSatPointFromString parses the `<txid>:<vout>:<offset>` form.
func NewSatPointFromString(s string) (SatPoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return SatPoint{}, errors.Wrapf(errs.InvalidArgument, "invalid sat point %q: must contain exactly two separators", s)
	}
	txHash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return SatPoint{}, errors.Wrapf(errs.InvalidArgument, "invalid sat point %q: bad txid", s)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return SatPoint{}, errors.Wrapf(errs.InvalidArgument, "invalid sat point %q: bad vout", s)
	}
	offset, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return SatPoint{}, errors.Wrapf(errs.InvalidArgument, "invalid sat point %q: bad offset", s)
	}
	return SatPoint{
		OutPoint: wire.OutPoint{Hash: *txHash, Index: uint32(vout)},
		Offset:   offset,
	}, nil
}

// MarshalText implements encoding.TextMarshaler
func (s SatPoint) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *SatPoint) UnmarshalText(text []byte) error {
	parsed, err := NewSatPointFromString(string(text))
	if err != nil {
		return errors.WithStack(err)
	}
	*s = parsed
	return nil
}
