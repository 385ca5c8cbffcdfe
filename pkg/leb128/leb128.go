package leb128

import (
	"github.com/gaze-network/uint128"
	"github.com/hertarr/ordi/common/errs"
)

const (
	ErrEmpty        = errs.ErrorKind("leb128: empty byte sequence")
	ErrUnterminated = errs.ErrorKind("leb128: unterminated byte sequence")
)

// maxUint128Bytes is the longest encoding of a uint128, ceil(128/7).
const maxUint128Bytes = 19

// AppendUint128 appends the unsigned LEB128 encoding of n to dst.
func AppendUint128(dst []byte, n uint128.Uint128) []byte {
	for !n.Rsh(7).IsZero() {
		dst = append(dst, n.And64(0x7f).Uint8()|0x80)
		n = n.Rsh(7)
	}
	return append(dst, n.Uint8())
}

// AppendUint64 appends the unsigned LEB128 encoding of n to dst.
func AppendUint64(dst []byte, n uint64) []byte {
	return AppendUint128(dst, uint128.From64(n))
}

func EncodeUint128(n uint128.Uint128) []byte {
	return AppendUint128(nil, n)
}

// DecodeUint128 decodes a value from the front of data and returns it with the number of bytes read.
func DecodeUint128(data []byte) (n uint128.Uint128, length int, err error) {
	if len(data) == 0 {
		return uint128.Zero, 0, ErrEmpty
	}
	for i, b := range data {
		if i >= maxUint128Bytes {
			return uint128.Zero, 0, errs.OverflowUint128
		}
		group := uint128.From64(uint64(b & 0x7f))
		// only the 2 lowest bits of the last group fit
		if i == maxUint128Bytes-1 && group.Uint8()&0x7c != 0 {
			return uint128.Zero, 0, errs.OverflowUint128
		}
		n = n.Or(group.Lsh(uint(7 * i)))
		if b&0x80 == 0 {
			return n, i + 1, nil
		}
	}
	return uint128.Zero, 0, ErrUnterminated
}

// DecodeUint64 is DecodeUint128 for values that must fit a uint64.
func DecodeUint64(data []byte) (n uint64, length int, err error) {
	v, length, err := DecodeUint128(data)
	if err != nil {
		return 0, 0, err
	}
	if !v.IsUint64() {
		return 0, 0, errs.OverflowUint64
	}
	return v.Uint64(), length, nil
}
