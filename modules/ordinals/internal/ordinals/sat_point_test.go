package ordinals

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSatPointFromString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    SatPoint
		shouldError bool
	}{
		{
			name:     "valid sat point",
			input:    "1111111111111111111111111111111111111111111111111111111111111111:1:2",
			expected: SatPoint{OutPoint: wire.OutPoint{Hash: testHash, Index: 1}, Offset: 2},
		},
		{name: "no separator", input: "abc", shouldError: true},
		{name: "invalid output index", input: "abc:xyz", shouldError: true},
		{name: "no offset", input: "1111111111111111111111111111111111111111111111111111111111111111:1", shouldError: true},
		{name: "invalid offset", input: "1111111111111111111111111111111111111111111111111111111111111111:1:foo", shouldError: true},
		{name: "too many separators", input: "1111111111111111111111111111111111111111111111111111111111111111:1:2:3", shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := NewSatPointFromString(tt.input)
			if tt.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
			assert.Equal(t, tt.input, actual.String())
		})
	}
}
