package leveldb

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
	"github.com/syndtr/goleveldb/leveldb/util"
)

func (r *Repository) GetSatRanges(_ context.Context, outPoint wire.OutPoint) (ordinals.SatRanges, error) {
	raw, err := r.get(satRangesKey(outPoint))
	if err != nil {
		return nil, errors.Wrapf(err, "can't get sat ranges of %s", outPoint)
	}
	ranges, err := ordinals.NewSatRangesFromBytes(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "can't decode sat ranges of %s", outPoint)
	}
	return ranges, nil
}

func (r *Repository) CreateSatRanges(ctx context.Context, outPoint wire.OutPoint, ranges ordinals.SatRanges) (uint64, error) {
	// a duplicated txid overwrites the output, the sats it held are lost
	previous, err := r.GetSatRanges(ctx, outPoint)
	switch {
	case errors.Is(err, errs.NotFound):
		previous = nil
	case err != nil:
		return 0, errors.WithStack(err)
	default:
		if err := r.AppendLostSatRanges(ctx, previous); err != nil {
			return 0, errors.Wrapf(err, "can't move ranges of duplicated outpoint %s to lost", outPoint)
		}
	}
	if err := r.put(satRangesKey(outPoint), ranges.Bytes()); err != nil {
		return 0, errors.WithStack(err)
	}
	return previous.Len(), nil
}

func (r *Repository) ConsumeSatRanges(ctx context.Context, outPoint wire.OutPoint) (ordinals.SatRanges, error) {
	ranges, err := r.GetSatRanges(ctx, outPoint)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := r.delete(satRangesKey(outPoint)); err != nil {
		return nil, errors.Wrapf(err, "can't delete sat ranges of %s", outPoint)
	}
	return ranges, nil
}

func (r *Repository) AppendLostSatRanges(ctx context.Context, ranges ordinals.SatRanges) error {
	if len(ranges) == 0 {
		return nil
	}
	lost, err := r.GetSatRanges(ctx, common.LostOutPoint)
	if err != nil && !errors.Is(err, errs.NotFound) {
		return errors.WithStack(err)
	}
	lost = append(lost, ranges...)
	return errors.WithStack(r.put(satRangesKey(common.LostOutPoint), lost.Bytes()))
}

// IterateSatRanges reads committed entries only, it must not be called inside a transaction.
func (r *Repository) IterateSatRanges(ctx context.Context, fn func(outPoint wire.OutPoint, ranges ordinals.SatRanges) error) error {
	if r.tx != nil {
		return errors.Wrap(errs.InternalError, "can't iterate sat ranges inside a transaction")
	}

	snapshot, err := r.db.GetSnapshot()
	if err != nil {
		return errors.Wrap(err, "can't get snapshot")
	}
	defer snapshot.Release()

	iter := snapshot.NewIterator(util.BytesPrefix([]byte{prefixSatRanges}), nil)
	defer iter.Release()
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		outPoint := outPointFromBytes(iter.Key()[1:])
		if outPoint == common.LostOutPoint {
			continue
		}
		ranges, err := ordinals.NewSatRangesFromBytes(iter.Value())
		if err != nil {
			return errors.Wrapf(err, "can't decode sat ranges of %s", outPoint)
		}
		if err := fn(outPoint, ranges); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.Wrap(iter.Error(), "iterator error")
}

func (r *Repository) GetOutPointValue(_ context.Context, outPoint wire.OutPoint) (uint64, error) {
	raw, err := r.get(outPointValueKey(outPoint))
	if err != nil {
		return 0, errors.Wrapf(err, "can't get value of %s", outPoint)
	}
	return decodeValue(raw)
}

func (r *Repository) PutOutPointValue(_ context.Context, outPoint wire.OutPoint, value uint64) error {
	return errors.WithStack(r.put(outPointValueKey(outPoint), encodeValue(value)))
}

func (r *Repository) TakeOutPointValue(ctx context.Context, outPoint wire.OutPoint) (uint64, error) {
	value, err := r.GetOutPointValue(ctx, outPoint)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if err := r.delete(outPointValueKey(outPoint)); err != nil {
		return 0, errors.Wrapf(err, "can't delete value of %s", outPoint)
	}
	return value, nil
}
