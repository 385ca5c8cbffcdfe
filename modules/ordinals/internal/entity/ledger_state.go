package entity

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// LedgerState is the checkpoint of the last applied block together with
// every counter the next block continues from.
type LedgerState struct {
	Height int64          `json:"height"`
	Hash   chainhash.Hash `json:"hash"`

	// NextSat is the first sat the next coinbase mints.
	NextSat uint64 `json:"nextSat"`

	NextNumber       int64  `json:"nextNumber"`
	NextCursedNumber int64  `json:"nextCursedNumber"`
	NextSequence     uint64 `json:"nextSequence"`

	UnboundInscriptions uint64 `json:"unboundInscriptions"`
	LostSats            uint64 `json:"lostSats"`
}
