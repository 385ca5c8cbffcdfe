package leveldb

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
	"github.com/hertarr/ordi/pkg/leb128"
)

var errTruncated = errors.Wrap(errs.ConsistencyError, "truncated value")

func encodeValue(value uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, value)
}

func decodeValue(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errors.WithStack(errTruncated)
	}
	return binary.LittleEndian.Uint64(b), nil
}

// encodeLocations writes each location as its id followed by the LEB128 sat.
func encodeLocations(locations []entity.InscriptionLocation) []byte {
	b := make([]byte, 0, len(locations)*(ordinals.InscriptionIdSize+8))
	for _, location := range locations {
		b = append(b, location.Id.Bytes()...)
		b = leb128.AppendUint64(b, location.Sat)
	}
	return b
}

func decodeLocations(b []byte) ([]entity.InscriptionLocation, error) {
	locations := make([]entity.InscriptionLocation, 0)
	for len(b) > 0 {
		if len(b) < ordinals.InscriptionIdSize {
			return nil, errors.WithStack(errTruncated)
		}
		id, err := ordinals.NewInscriptionIdFromBytes(b[:ordinals.InscriptionIdSize])
		if err != nil {
			return nil, errors.WithStack(err)
		}
		sat, n, err := leb128.DecodeUint64(b[ordinals.InscriptionIdSize:])
		if err != nil {
			return nil, errors.Wrap(err, "can't decode sat")
		}
		b = b[ordinals.InscriptionIdSize+n:]
		locations = append(locations, entity.InscriptionLocation{Id: id, Sat: sat})
	}
	return locations, nil
}

func decodeInscriptionIds(b []byte) ([]ordinals.InscriptionId, error) {
	if len(b)%ordinals.InscriptionIdSize != 0 {
		return nil, errors.WithStack(errTruncated)
	}
	ids := make([]ordinals.InscriptionId, 0, len(b)/ordinals.InscriptionIdSize)
	for ; len(b) > 0; b = b[ordinals.InscriptionIdSize:] {
		id, err := ordinals.NewInscriptionIdFromBytes(b[:ordinals.InscriptionIdSize])
		if err != nil {
			return nil, errors.WithStack(err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type undoEntry struct {
	key   []byte
	prior []byte
	found bool
}

// encodeUndoRecord writes, per entry: key length, key, found flag, then value length and value when found.
func encodeUndoRecord(entries []undoEntry) []byte {
	b := make([]byte, 0)
	for _, entry := range entries {
		b = leb128.AppendUint64(b, uint64(len(entry.key)))
		b = append(b, entry.key...)
		if !entry.found {
			b = append(b, 0)
			continue
		}
		b = append(b, 1)
		b = leb128.AppendUint64(b, uint64(len(entry.prior)))
		b = append(b, entry.prior...)
	}
	return b
}

func decodeUndoRecord(b []byte) ([]undoEntry, error) {
	readBytes := func() ([]byte, error) {
		size, n, err := leb128.DecodeUint64(b)
		if err != nil {
			return nil, errors.Wrap(err, "can't decode length")
		}
		if uint64(len(b)-n) < size {
			return nil, errors.WithStack(errTruncated)
		}
		data := b[n : n+int(size)]
		b = b[n+int(size):]
		return data, nil
	}

	entries := make([]undoEntry, 0)
	for len(b) > 0 {
		key, err := readBytes()
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, errors.WithStack(errTruncated)
		}
		found := b[0] == 1
		b = b[1:]
		entry := undoEntry{key: key, found: found}
		if found {
			if entry.prior, err = readBytes(); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
