package entity

import (
	"time"

	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
)

type InscriptionEntry struct {
	Id       ordinals.InscriptionId `json:"id"`
	Number   int64                  `json:"number"`
	Sequence uint64                 `json:"sequence"`

	// Sat is nil for unbound inscriptions.
	Sat     *uint64 `json:"sat,omitempty"`
	Cursed  bool    `json:"cursed"`
	Unbound bool    `json:"unbound"`

	Inscription ordinals.Inscription `json:"inscription"`

	GenesisHeight   int64             `json:"genesisHeight"`
	GenesisSatPoint ordinals.SatPoint `json:"genesisSatPoint"`
	SatPoint        ordinals.SatPoint `json:"satPoint"`
	Timestamp       time.Time         `json:"timestamp"`
}

// InscriptionLocation is an inscription held by an output.
type InscriptionLocation struct {
	Id  ordinals.InscriptionId
	Sat uint64
}
