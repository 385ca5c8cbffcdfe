package ordinals

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/pkg/leb128"
	"github.com/samber/lo"
)

// SatRange is the half open interval [Start, End) of sats.
type SatRange struct {
	Start uint64
	End   uint64
}

func (r SatRange) Len() uint64 {
	return r.End - r.Start
}

func (r SatRange) Contains(sat uint64) bool {
	return sat >= r.Start && sat < r.End
}

func (r SatRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// SatRanges is an ordered sequence of ranges owned by a single output (or in flight between outputs).
type SatRanges []SatRange

// Len returns the number of sats in the sequence.
func (rs SatRanges) Len() uint64 {
	return lo.SumBy(rs, SatRange.Len)
}

// Offset returns the position of sat in the sequence.
func (rs SatRanges) Offset(sat uint64) (uint64, bool) {
	var offset uint64
	for _, r := range rs {
		if r.Contains(sat) {
			return offset + sat - r.Start, true
		}
		offset += r.Len()
	}
	return 0, false
}

// SatAt returns the sat at offset in the sequence.
func (rs SatRanges) SatAt(offset uint64) (uint64, bool) {
	for _, r := range rs {
		if offset < r.Len() {
			return r.Start + offset, true
		}
		offset -= r.Len()
	}
	return 0, false
}

// Take removes the first n sats of the sequence and returns them,
// splitting the range that straddles the boundary. Take never merges ranges.
func (rs *SatRanges) Take(n uint64) SatRanges {
	taken := make(SatRanges, 0)
	rest := *rs
	for n > 0 && len(rest) > 0 {
		r := rest[0]
		if r.Len() <= n {
			taken = append(taken, r)
			n -= r.Len()
			rest = rest[1:]
			continue
		}
		taken = append(taken, SatRange{Start: r.Start, End: r.Start + n})
		rest = append(SatRanges{{Start: r.Start + n, End: r.End}}, rest[1:]...)
		n = 0
	}
	*rs = rest
	return taken
}

// Bytes encodes the sequence as LEB128 (start, length) pairs.
func (rs SatRanges) Bytes() []byte {
	b := make([]byte, 0, len(rs)*12)
	for _, r := range rs {
		b = leb128.AppendUint128(b, uint128.From64(r.Start))
		b = leb128.AppendUint128(b, uint128.From64(r.Len()))
	}
	return b
}

// NewSatRangesFromBytes decodes the output of SatRanges.Bytes.
func NewSatRangesFromBytes(b []byte) (SatRanges, error) {
	rs := make(SatRanges, 0)
	for len(b) > 0 {
		start, n, err := leb128.DecodeUint64(b)
		if err != nil {
			return nil, errors.Wrap(err, "can't decode range start")
		}
		b = b[n:]
		length, n, err := leb128.DecodeUint64(b)
		if err != nil {
			return nil, errors.Wrap(err, "can't decode range length")
		}
		b = b[n:]
		rs = append(rs, SatRange{Start: start, End: start + length})
	}
	return rs, nil
}

// String returns the `start-end,start-end` form used by UTXO snapshots.
func (rs SatRanges) String() string {
	return strings.Join(lo.Map(rs, func(r SatRange, _ int) string { return r.String() }), ",")
}

// ParseSatRanges parses the output of SatRanges.String.
func ParseSatRanges(s string) (SatRanges, error) {
	rs := make(SatRanges, 0)
	if s == "" {
		return rs, nil
	}
	for _, part := range strings.Split(s, ",") {
		startStr, endStr, ok := strings.Cut(part, "-")
		if !ok {
			return nil, errors.Wrapf(errs.InvalidArgument, "invalid sat range %q", part)
		}
		start, err := strconv.ParseUint(startStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(errs.InvalidArgument, "invalid sat range start %q", part)
		}
		end, err := strconv.ParseUint(endStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(errs.InvalidArgument, "invalid sat range end %q", part)
		}
		if end <= start {
			return nil, errors.Wrapf(errs.InvalidArgument, "empty sat range %q", part)
		}
		rs = append(rs, SatRange{Start: start, End: end})
	}
	return rs, nil
}
