package entity

import "github.com/hertarr/ordi/modules/ordinals/internal/ordinals"

// Flotsam is an inscription moving through a transaction, positioned by its
// offset in the transaction's input sats.
type Flotsam struct {
	Offset        uint64
	Sat           uint64
	InscriptionId ordinals.InscriptionId

	// Old is the location before the transaction. Nil for inscriptions revealed by it.
	Old *ordinals.SatPoint
	// New is the entry created by the transaction. Nil for inscriptions it only moves.
	New *InscriptionEntry
}
