package leveldb

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
)

// Key prefixes, one per table.
const (
	prefixSatRanges            byte = 'r'
	prefixOutPointValue        byte = 'v'
	prefixInscription          byte = 'i'
	prefixInscriptionNumber    byte = 'n'
	prefixOutPointInscriptions byte = 'o'
	prefixSatInscriptions      byte = 's'
	prefixIndexedBlock         byte = 'b'
	prefixUndo                 byte = 'u'
	prefixLedgerState          byte = 'c'
	prefixIndexerState         byte = 'm'
)

const outPointSize = chainhash.HashSize + 4

// outPointBytes encodes the outpoint with a big endian index so outputs of a tx sort in order.
func outPointBytes(outPoint wire.OutPoint) []byte {
	b := make([]byte, outPointSize)
	copy(b, outPoint.Hash[:])
	binary.BigEndian.PutUint32(b[chainhash.HashSize:], outPoint.Index)
	return b
}

func outPointFromBytes(b []byte) wire.OutPoint {
	var outPoint wire.OutPoint
	copy(outPoint.Hash[:], b[:chainhash.HashSize])
	outPoint.Index = binary.BigEndian.Uint32(b[chainhash.HashSize:])
	return outPoint
}

func prefixed(prefix byte, b []byte) []byte {
	return append([]byte{prefix}, b...)
}

func uint64Key(prefix byte, n uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{prefix}, n)
}

func satRangesKey(outPoint wire.OutPoint) []byte {
	return prefixed(prefixSatRanges, outPointBytes(outPoint))
}

func outPointValueKey(outPoint wire.OutPoint) []byte {
	return prefixed(prefixOutPointValue, outPointBytes(outPoint))
}

func inscriptionKey(id ordinals.InscriptionId) []byte {
	return prefixed(prefixInscription, id.Bytes())
}

// inscriptionNumberKey flips the sign bit so negative numbers sort before positive ones.
func inscriptionNumberKey(number int64) []byte {
	return uint64Key(prefixInscriptionNumber, uint64(number)^(1<<63))
}

func outPointInscriptionsKey(outPoint wire.OutPoint) []byte {
	return prefixed(prefixOutPointInscriptions, outPointBytes(outPoint))
}

func satInscriptionsKey(sat uint64) []byte {
	return uint64Key(prefixSatInscriptions, sat)
}

func indexedBlockKey(height int64) []byte {
	return uint64Key(prefixIndexedBlock, uint64(height))
}

func undoKey(height int64) []byte {
	return uint64Key(prefixUndo, uint64(height))
}

func ledgerStateKey() []byte {
	return []byte{prefixLedgerState}
}

func indexerStateKey() []byte {
	return []byte{prefixIndexerState}
}
