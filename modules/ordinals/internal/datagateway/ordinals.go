package datagateway

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
)

type OrdinalsDataGateway interface {
	OrdinalsReaderDataGateway
	OrdinalsWriterDataGateway

	// BeginOrdinalsTx starts the transaction of the block at height. Writes are
	// visible to reads of the returned gateway only, until Commit persists them
	// in one batch together with the undo record of the block.
	BeginOrdinalsTx(ctx context.Context, height int64) (OrdinalsDataGatewayWithTx, error)

	// RevertBlocks restores the state left by block from-1, undoing every block from the latest down to from.
	RevertBlocks(ctx context.Context, from int64) error

	// ImportOutPoints seeds outputs from a UTXO snapshot, values only when withValues is set.
	ImportOutPoints(ctx context.Context, outPoints []entity.OutPointSats, withValues bool) error
	// ImportCheckpoint sets the block a snapshot was taken at. It can't be reverted.
	ImportCheckpoint(ctx context.Context, state *entity.LedgerState, block *entity.IndexedBlock) error

	Close() error
}

type OrdinalsDataGatewayWithTx interface {
	OrdinalsReaderDataGateway
	OrdinalsWriterDataGateway
	Tx
}

type OrdinalsReaderDataGateway interface {
	// GetLatestBlock returns errs.NotFound when nothing was indexed yet.
	GetLatestBlock(ctx context.Context) (types.BlockHeader, error)
	GetIndexedBlockByHeight(ctx context.Context, height int64) (*entity.IndexedBlock, error)
	GetLedgerState(ctx context.Context) (*entity.LedgerState, error)

	GetSatRanges(ctx context.Context, outPoint wire.OutPoint) (ordinals.SatRanges, error)
	GetOutPointValue(ctx context.Context, outPoint wire.OutPoint) (uint64, error)
	// IterateSatRanges calls fn for every live ledger entry, lost sats excluded.
	IterateSatRanges(ctx context.Context, fn func(outPoint wire.OutPoint, ranges ordinals.SatRanges) error) error

	GetInscriptionEntryById(ctx context.Context, id ordinals.InscriptionId) (*entity.InscriptionEntry, error)
	GetInscriptionIdByNumber(ctx context.Context, number int64) (ordinals.InscriptionId, error)
	GetInscriptionsInOutPoint(ctx context.Context, outPoint wire.OutPoint) ([]entity.InscriptionLocation, error)
	GetInscriptionIdsBySat(ctx context.Context, sat uint64) ([]ordinals.InscriptionId, error)
}

type OrdinalsWriterDataGateway interface {
	// CreateSatRanges sets the ranges of a new output. Ranges still held by the
	// outpoint (a duplicated txid) are moved to the lost sats and their length is returned.
	CreateSatRanges(ctx context.Context, outPoint wire.OutPoint, ranges ordinals.SatRanges) (uint64, error)
	// ConsumeSatRanges deletes and returns the ranges of a spent output, errs.NotFound if there are none.
	ConsumeSatRanges(ctx context.Context, outPoint wire.OutPoint) (ordinals.SatRanges, error)
	AppendLostSatRanges(ctx context.Context, ranges ordinals.SatRanges) error

	PutOutPointValue(ctx context.Context, outPoint wire.OutPoint, value uint64) error
	// TakeOutPointValue deletes and returns the value of a spent output, errs.NotFound if there is none.
	TakeOutPointValue(ctx context.Context, outPoint wire.OutPoint) (uint64, error)

	// CreateInscriptionEntry fails with errs.DuplicateId when the id exists.
	CreateInscriptionEntry(ctx context.Context, entry *entity.InscriptionEntry) error
	UpdateInscriptionLocation(ctx context.Context, id ordinals.InscriptionId, satPoint ordinals.SatPoint) error
	AddInscriptionsToOutPoint(ctx context.Context, outPoint wire.OutPoint, locations []entity.InscriptionLocation) error
	// TakeInscriptionsInOutPoint deletes and returns the inscriptions of a spent output.
	TakeInscriptionsInOutPoint(ctx context.Context, outPoint wire.OutPoint) ([]entity.InscriptionLocation, error)

	CreateIndexedBlock(ctx context.Context, block *entity.IndexedBlock) error
	SetLedgerState(ctx context.Context, state *entity.LedgerState) error
}
