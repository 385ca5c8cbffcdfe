package ordinals

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
)

type EventKind uint8

const (
	EventKindInscribe EventKind = iota + 1
	EventKindTransfer
)

func (k EventKind) String() string {
	switch k {
	case EventKindInscribe:
		return "inscribe"
	case EventKindTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("EventKind(%d)", k)
	}
}

// Event is emitted once the block that caused it is committed.
type Event interface {
	Kind() EventKind
}

// InscribeEvent is the first placement of a new inscription.
type InscribeEvent struct {
	Number        int64
	Sequence      uint64
	InscriptionId ordinals.InscriptionId
	Inscription   ordinals.Inscription

	// Sat is nil for unbound inscriptions.
	Sat     *uint64
	Cursed  bool
	Unbound bool

	SatPoint ordinals.SatPoint
	// Address of the output holding the inscription, empty when it has none.
	Address string

	Height    int64
	Timestamp time.Time
	// TxHash is the transaction whose output received the inscription.
	TxHash chainhash.Hash
}

func (*InscribeEvent) Kind() EventKind { return EventKindInscribe }

func (e *InscribeEvent) String() string {
	return fmt.Sprintf("inscribe %d, %s at %s.", e.Number, e.InscriptionId, e.SatPoint.OutPoint)
}

// TransferEvent is a move of an existing inscription to a new output.
type TransferEvent struct {
	InscriptionId ordinals.InscriptionId
	Number        int64
	From          ordinals.SatPoint
	To            ordinals.SatPoint
	Address       string

	Height    int64
	Timestamp time.Time
	TxHash    chainhash.Hash
}

func (*TransferEvent) Kind() EventKind { return EventKindTransfer }

func (e *TransferEvent) String() string {
	return fmt.Sprintf("transfer %s from %s to %s.", e.InscriptionId, e.From, e.To)
}
