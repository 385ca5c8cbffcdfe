package datasources

import (
	stderrors "errors"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/hertarr/ordi/common/errs"
	"github.com/stretchr/testify/assert"
)

func TestRPCError(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		kind   error
		detail string
	}{
		{
			name:   "unknown transaction",
			err:    btcjson.NewRPCError(btcjson.ErrRPCInvalidAddressOrKey, "No such mempool or blockchain transaction"),
			kind:   errs.NotFound,
			detail: "No such mempool or blockchain transaction",
		},
		{
			name:   "height out of range",
			err:    btcjson.NewRPCError(btcjson.ErrRPCInvalidParameter, "Block height out of range"),
			kind:   errs.NotFound,
			detail: "Block height out of range",
		},
		{
			name:   "node warming up",
			err:    btcjson.NewRPCError(btcjson.ErrRPCInWarmup, "Loading block index"),
			kind:   errs.SourceUnavailable,
			detail: "Loading block index",
		},
		{
			name:   "transport",
			err:    stderrors.New("dial tcp 127.0.0.1:8332: connect: connection refused"),
			kind:   errs.SourceUnavailable,
			detail: "connection refused",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := rpcError(tc.err)
			// the kind must be visible to the standard library too
			assert.True(t, stderrors.Is(err, tc.kind))
			assert.ErrorIs(t, err, tc.kind)
			assert.ErrorContains(t, err, tc.detail)
		})
	}

	t.Run("other rpc errors are left alone", func(t *testing.T) {
		err := btcjson.NewRPCError(btcjson.ErrRPCMisc, "unexpected")
		got := rpcError(err)
		assert.Equal(t, err, got)
		assert.False(t, stderrors.Is(got, errs.NotFound))
		assert.False(t, stderrors.Is(got, errs.SourceUnavailable))
	})
}
