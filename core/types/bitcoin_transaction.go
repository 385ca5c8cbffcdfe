package types

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/samber/lo"
)

type Transaction struct {
	BlockHeight int64
	BlockHash   chainhash.Hash
	Index       uint32
	TxHash      chainhash.Hash
	Version     int32
	LockTime    uint32
	TxIn        []*TxIn
	TxOut       []*TxOut
}

// IsCoinbase reports whether tx is the coinbase of its block.
func (tx *Transaction) IsCoinbase() bool {
	if len(tx.TxIn) != 1 {
		return false
	}
	in := tx.TxIn[0]
	return in.PreviousOutIndex == wire.MaxPrevOutIndex && in.PreviousOutTxHash == (chainhash.Hash{})
}

// OutPoint returns the outpoint of the vout-th output.
func (tx *Transaction) OutPoint(vout uint32) wire.OutPoint {
	return wire.OutPoint{Hash: tx.TxHash, Index: vout}
}

// TotalOutputValue returns the sum of all output values.
func (tx *Transaction) TotalOutputValue() uint64 {
	return lo.SumBy(tx.TxOut, func(out *TxOut) uint64 { return uint64(out.Value) })
}

type TxIn struct {
	SignatureScript   []byte
	Witness           [][]byte
	Sequence          uint32
	PreviousOutIndex  uint32
	PreviousOutTxHash chainhash.Hash
}

// PreviousOutPoint returns the outpoint spent by the input.
func (in *TxIn) PreviousOutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: in.PreviousOutTxHash, Index: in.PreviousOutIndex}
}

type TxOut struct {
	PkScript []byte
	Value    int64
}

// ParseMsgTx parses btcd/wire.MsgTx to Transaction.
func ParseMsgTx(src *wire.MsgTx, blockHeight int64, blockHash chainhash.Hash, index uint32) *Transaction {
	return &Transaction{
		BlockHeight: blockHeight,
		BlockHash:   blockHash,
		Index:       index,
		TxHash:      src.TxHash(),
		Version:     src.Version,
		LockTime:    src.LockTime,
		TxIn: lo.Map(src.TxIn, func(item *wire.TxIn, _ int) *TxIn {
			return ParseTxIn(item)
		}),
		TxOut: lo.Map(src.TxOut, func(item *wire.TxOut, _ int) *TxOut {
			return ParseTxOut(item)
		}),
	}
}

// ParseTxIn parses btcd/wire.TxIn to TxIn.
func ParseTxIn(src *wire.TxIn) *TxIn {
	return &TxIn{
		SignatureScript:   src.SignatureScript,
		Witness:           src.Witness,
		Sequence:          src.Sequence,
		PreviousOutIndex:  src.PreviousOutPoint.Index,
		PreviousOutTxHash: src.PreviousOutPoint.Hash,
	}
}

// ParseTxOut parses btcd/wire.TxOut to TxOut.
func ParseTxOut(src *wire.TxOut) *TxOut {
	return &TxOut{
		PkScript: src.PkScript,
		Value:    src.Value,
	}
}
