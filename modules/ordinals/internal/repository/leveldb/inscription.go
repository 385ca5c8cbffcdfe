package leveldb

import (
	"context"
	"encoding/json"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
)

func (r *Repository) GetInscriptionEntryById(_ context.Context, id ordinals.InscriptionId) (*entity.InscriptionEntry, error) {
	raw, err := r.get(inscriptionKey(id))
	if err != nil {
		return nil, errors.Wrapf(err, "can't get inscription %s", id)
	}
	var entry entity.InscriptionEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, errors.Wrapf(err, "can't decode inscription %s", id)
	}
	return &entry, nil
}

func (r *Repository) GetInscriptionIdByNumber(_ context.Context, number int64) (ordinals.InscriptionId, error) {
	raw, err := r.get(inscriptionNumberKey(number))
	if err != nil {
		return ordinals.InscriptionId{}, errors.Wrapf(err, "can't get inscription number %d", number)
	}
	return ordinals.NewInscriptionIdFromBytes(raw)
}

func (r *Repository) GetInscriptionIdsBySat(_ context.Context, sat uint64) ([]ordinals.InscriptionId, error) {
	raw, err := r.get(satInscriptionsKey(sat))
	if errors.Is(err, errs.NotFound) {
		return []ordinals.InscriptionId{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "can't get inscriptions on sat %d", sat)
	}
	return decodeInscriptionIds(raw)
}

func (r *Repository) CreateInscriptionEntry(ctx context.Context, entry *entity.InscriptionEntry) error {
	_, err := r.get(inscriptionKey(entry.Id))
	if err == nil {
		return errors.Wrapf(errs.DuplicateId, "inscription %s already exists", entry.Id)
	}
	if !errors.Is(err, errs.NotFound) {
		return errors.WithStack(err)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrapf(err, "can't encode inscription %s", entry.Id)
	}
	if err := r.put(inscriptionKey(entry.Id), raw); err != nil {
		return errors.WithStack(err)
	}
	if err := r.put(inscriptionNumberKey(entry.Number), entry.Id.Bytes()); err != nil {
		return errors.WithStack(err)
	}
	if entry.Sat == nil {
		return nil
	}

	ids, err := r.GetInscriptionIdsBySat(ctx, *entry.Sat)
	if err != nil {
		return errors.WithStack(err)
	}
	b := make([]byte, 0, (len(ids)+1)*ordinals.InscriptionIdSize)
	for _, id := range ids {
		b = append(b, id.Bytes()...)
	}
	b = append(b, entry.Id.Bytes()...)
	return errors.WithStack(r.put(satInscriptionsKey(*entry.Sat), b))
}

func (r *Repository) UpdateInscriptionLocation(ctx context.Context, id ordinals.InscriptionId, satPoint ordinals.SatPoint) error {
	entry, err := r.GetInscriptionEntryById(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	entry.SatPoint = satPoint
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrapf(err, "can't encode inscription %s", id)
	}
	return errors.WithStack(r.put(inscriptionKey(id), raw))
}

func (r *Repository) GetInscriptionsInOutPoint(_ context.Context, outPoint wire.OutPoint) ([]entity.InscriptionLocation, error) {
	raw, err := r.get(outPointInscriptionsKey(outPoint))
	if errors.Is(err, errs.NotFound) {
		return []entity.InscriptionLocation{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "can't get inscriptions in %s", outPoint)
	}
	return decodeLocations(raw)
}

func (r *Repository) AddInscriptionsToOutPoint(ctx context.Context, outPoint wire.OutPoint, locations []entity.InscriptionLocation) error {
	if len(locations) == 0 {
		return nil
	}
	current, err := r.GetInscriptionsInOutPoint(ctx, outPoint)
	if err != nil {
		return errors.WithStack(err)
	}
	current = append(current, locations...)
	return errors.WithStack(r.put(outPointInscriptionsKey(outPoint), encodeLocations(current)))
}

func (r *Repository) TakeInscriptionsInOutPoint(ctx context.Context, outPoint wire.OutPoint) ([]entity.InscriptionLocation, error) {
	locations, err := r.GetInscriptionsInOutPoint(ctx, outPoint)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(locations) == 0 {
		return locations, nil
	}
	if err := r.delete(outPointInscriptionsKey(outPoint)); err != nil {
		return nil, errors.Wrapf(err, "can't delete inscriptions in %s", outPoint)
	}
	return locations, nil
}
