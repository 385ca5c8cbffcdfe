package leb128

import (
	"testing"

	"github.com/gaze-network/uint128"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLEB128(t *testing.T) {
	tests := []struct {
		value    uint128.Uint128
		expected []byte
	}{
		{uint128.From64(0), []byte{0x00}},
		{uint128.From64(127), []byte{0x7f}},
		{uint128.From64(128), []byte{0x80, 0x01}},
		{uint128.From64(624485), []byte{0xe5, 0x8e, 0x26}},
		{uint128.Max, append(repeat(0xff, 18), 0x03)},
	}
	for _, tt := range tests {
		t.Run(tt.value.String(), func(t *testing.T) {
			encoded := EncodeUint128(tt.value)
			assert.Equal(t, tt.expected, encoded)

			decoded, n, err := DecodeUint128(append(encoded, 0xaa))
			require.NoError(t, err)
			assert.Equal(t, len(encoded), n)
			assert.Equal(t, tt.value, decoded)
		})
	}

	t.Run("errors", func(t *testing.T) {
		_, _, err := DecodeUint128(nil)
		assert.ErrorIs(t, err, ErrEmpty)
		_, _, err = DecodeUint128([]byte{0x80, 0x80})
		assert.ErrorIs(t, err, ErrUnterminated)
		_, _, err = DecodeUint128(append(repeat(0xff, 18), 0x04))
		assert.Error(t, err)
		_, _, err = DecodeUint64(EncodeUint128(uint128.From64(1).Lsh(64)))
		assert.Error(t, err)
	})
}

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
