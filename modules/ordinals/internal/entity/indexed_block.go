package entity

import "github.com/btcsuite/btcd/chaincfg/chainhash"

type IndexedBlock struct {
	Height   int64          `json:"height"`
	Hash     chainhash.Hash `json:"hash"`
	PrevHash chainhash.Hash `json:"prevHash"`
}
