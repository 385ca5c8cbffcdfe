package ordinals

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/modules/ordinals/internal/datagateway"
)

// putOutPointValue records the value of a new output. A no-op in remote mode.
func (p *Processor) putOutPointValue(ctx context.Context, dg datagateway.OrdinalsDataGatewayWithTx, outPoint wire.OutPoint, value uint64) error {
	if p.prevOutCache != nil {
		return nil
	}
	return errors.WithStack(dg.PutOutPointValue(ctx, outPoint, value))
}

// takeOutPointValue returns the value of a spent output and forgets it.
func (p *Processor) takeOutPointValue(ctx context.Context, dg datagateway.OrdinalsDataGatewayWithTx, outPoint wire.OutPoint) (uint64, error) {
	if p.prevOutCache == nil {
		value, err := dg.TakeOutPointValue(ctx, outPoint)
		if errors.Is(err, errs.NotFound) {
			return 0, errors.WithSecondaryError(errors.Wrapf(errs.ConsistencyError, "value of %s not found", outPoint), err)
		}
		return value, errors.WithStack(err)
	}

	if value, ok := p.prevOutCache.Get(outPoint); ok {
		p.prevOutCache.Remove(outPoint)
		return value, nil
	}

	tx, err := p.btcClient.GetRawTransaction(ctx, outPoint.Hash)
	if errors.Is(err, errs.NotFound) {
		return 0, errors.WithSecondaryError(errors.Wrapf(errs.ConsistencyError, "transaction of %s not found", outPoint), err)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get transaction of %s", outPoint)
	}
	if int(outPoint.Index) >= len(tx.TxOut) {
		return 0, errors.Wrapf(errs.ConsistencyError, "transaction %s has no output %d", outPoint.Hash, outPoint.Index)
	}

	// siblings are likely spent soon
	for i, txOut := range tx.TxOut {
		if uint32(i) != outPoint.Index {
			p.prevOutCache.Add(wire.OutPoint{Hash: outPoint.Hash, Index: uint32(i)}, uint64(txOut.Value))
		}
	}
	return uint64(tx.TxOut[outPoint.Index].Value), nil
}
