package types

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/samber/lo"
)

type BlockHeader struct {
	Hash       chainhash.Hash
	Height     int64
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32
}

// ParseBlockHeader converts a wire header found at height.
func ParseBlockHeader(src *wire.BlockHeader, height int64) BlockHeader {
	return BlockHeader{
		Hash:       src.BlockHash(),
		Height:     height,
		Version:    src.Version,
		PrevBlock:  src.PrevBlock,
		MerkleRoot: src.MerkleRoot,
		Timestamp:  src.Timestamp,
		Bits:       src.Bits,
		Nonce:      src.Nonce,
	}
}

type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// ParseMsgBlock converts a decoded block found at height.
// Transactions keep their position in the block.
func ParseMsgBlock(src *wire.MsgBlock, height int64) *Block {
	header := ParseBlockHeader(&src.Header, height)
	return &Block{
		Header: header,
		Transactions: lo.Map(src.Transactions, func(item *wire.MsgTx, index int) *Transaction {
			return ParseMsgTx(item, height, header.Hash, uint32(index))
		}),
	}
}

func (b *Block) BlockHeader() BlockHeader {
	return b.Header
}
