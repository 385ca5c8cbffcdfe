package ordinals

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
)

// InscriptionIdSize is the size of a binary encoded InscriptionId.
const InscriptionIdSize = chainhash.HashSize + 4

// InscriptionId is the reveal transaction hash and the index of the envelope in it.
type InscriptionId struct {
	TxHash chainhash.Hash
	Index  uint32
}

func NewInscriptionId(txHash chainhash.Hash, index uint32) InscriptionId {
	return InscriptionId{TxHash: txHash, Index: index}
}

func (i InscriptionId) String() string {
	return fmt.Sprintf("%si%d", i.TxHash.String(), i.Index)
}

// NewInscriptionIdFromString parses the `<txid>i<index>` form.
func NewInscriptionIdFromString(s string) (InscriptionId, error) {
	txid, index, ok := strings.Cut(s, "i")
	if !ok {
		return InscriptionId{}, errors.Wrapf(errs.InvalidArgument, "invalid inscription id %q: missing separator", s)
	}
	txHash, err := chainhash.NewHashFromStr(txid)
	if err != nil || len(txid) != chainhash.MaxHashStringSize {
		return InscriptionId{}, errors.Wrapf(errs.InvalidArgument, "invalid inscription id %q: bad txid", s)
	}
	n, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return InscriptionId{}, errors.Wrapf(errs.InvalidArgument, "invalid inscription id %q: bad index", s)
	}
	return InscriptionId{TxHash: *txHash, Index: uint32(n)}, nil
}

// Bytes returns the hash bytes followed by the big endian index.
func (i InscriptionId) Bytes() []byte {
	b := make([]byte, InscriptionIdSize)
	copy(b, i.TxHash[:])
	binary.BigEndian.PutUint32(b[chainhash.HashSize:], i.Index)
	return b
}

// NewInscriptionIdFromBytes decodes the output of Bytes.
func NewInscriptionIdFromBytes(b []byte) (InscriptionId, error) {
	if len(b) != InscriptionIdSize {
		return InscriptionId{}, errors.Wrapf(errs.InvalidArgument, "invalid inscription id length %d", len(b))
	}
	var id InscriptionId
	copy(id.TxHash[:], b[:chainhash.HashSize])
	id.Index = binary.BigEndian.Uint32(b[chainhash.HashSize:])
	return id, nil
}

// MarshalText implements encoding.TextMarshaler
func (i InscriptionId) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (i *InscriptionId) UnmarshalText(text []byte) error {
	parsed, err := NewInscriptionIdFromString(string(text))
	if err != nil {
		return errors.WithStack(err)
	}
	*i = parsed
	return nil
}
