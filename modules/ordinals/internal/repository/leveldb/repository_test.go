package leveldb

import (
	"context"
	"testing"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/internal/kvstore"
	"github.com/hertarr/ordi/modules/ordinals/internal/datagateway"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hashA = *utils.Must(chainhash.NewHashFromStr("aa00000000000000000000000000000000000000000000000000000000000000"))
	hashB = *utils.Must(chainhash.NewHashFromStr("bb00000000000000000000000000000000000000000000000000000000000000"))
)

func newTestRepository(t *testing.T, undoRetention int64) *Repository {
	t.Helper()
	repo := NewRepository(kvstore.OpenMem(), undoRetention)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// dump returns every key of the database.
func dump(t *testing.T, repo *Repository) map[string]string {
	t.Helper()
	result := make(map[string]string)
	iter := repo.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		result[string(iter.Key())] = string(iter.Value())
	}
	require.NoError(t, iter.Error())
	return result
}

// applyBlock commits a block that moves the ranges of spent into created.
func applyBlock(t *testing.T, repo *Repository, height int64, hash chainhash.Hash, spent *wire.OutPoint, created wire.OutPoint, ranges ordinals.SatRanges) {
	t.Helper()
	ctx := context.Background()
	tx, err := repo.BeginOrdinalsTx(ctx, height)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	if spent != nil {
		_, err := tx.ConsumeSatRanges(ctx, *spent)
		require.NoError(t, err)
		_, err = tx.TakeOutPointValue(ctx, *spent)
		require.NoError(t, err)
	}
	_, err = tx.CreateSatRanges(ctx, created, ranges)
	require.NoError(t, err)
	require.NoError(t, tx.PutOutPointValue(ctx, created, ranges.Len()))
	require.NoError(t, tx.CreateIndexedBlock(ctx, &entity.IndexedBlock{Height: height, Hash: hash}))
	require.NoError(t, tx.SetLedgerState(ctx, &entity.LedgerState{Height: height, Hash: hash}))
	require.NoError(t, tx.Commit(ctx))
}

func TestTxOverlay(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, 10)
	outPoint := wire.OutPoint{Hash: hashA, Index: 1}

	tx, err := repo.BeginOrdinalsTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx.PutOutPointValue(ctx, outPoint, 42))

	value, err := tx.GetOutPointValue(ctx, outPoint)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), value)

	// not visible outside of the transaction until commit
	_, err = repo.GetOutPointValue(ctx, outPoint)
	assert.ErrorIs(t, err, errs.NotFound)

	value, err = tx.TakeOutPointValue(ctx, outPoint)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), value)
	_, err = tx.GetOutPointValue(ctx, outPoint)
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, 10)
	before := dump(t, repo)

	tx, err := repo.BeginOrdinalsTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx.PutOutPointValue(ctx, wire.OutPoint{Hash: hashA}, 1))
	require.NoError(t, tx.Rollback(ctx))

	assert.Equal(t, before, dump(t, repo))
	assert.Error(t, tx.Commit(ctx))
}

func TestRevertBlocks(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, 10)

	coinbase := wire.OutPoint{Hash: hashA}
	applyBlock(t, repo, 0, hashA, nil, coinbase, ordinals.SatRanges{{Start: 0, End: 100}})
	afterFirst := dump(t, repo)

	spend := wire.OutPoint{Hash: hashB}
	applyBlock(t, repo, 1, hashB, &coinbase, spend, ordinals.SatRanges{{Start: 0, End: 100}})
	applyBlock(t, repo, 2, hashA, &spend, wire.OutPoint{Hash: hashB, Index: 1}, ordinals.SatRanges{{Start: 0, End: 100}})

	require.NoError(t, repo.RevertBlocks(ctx, 1))

	// the undo record of block 0 survives, the rest is identical
	assert.Equal(t, afterFirst, dump(t, repo))

	latest, err := repo.GetLatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest.Height)

	ranges, err := repo.GetSatRanges(ctx, coinbase)
	require.NoError(t, err)
	assert.Equal(t, ordinals.SatRanges{{Start: 0, End: 100}}, ranges)
}

func TestRevertBlocksBeyondRetention(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, 2)

	prev := wire.OutPoint{Hash: hashA}
	applyBlock(t, repo, 0, hashA, nil, prev, ordinals.SatRanges{{Start: 0, End: 10}})
	for height := int64(1); height < 5; height++ {
		next := wire.OutPoint{Hash: hashB, Index: uint32(height)}
		applyBlock(t, repo, height, hashB, &prev, next, ordinals.SatRanges{{Start: 0, End: 10}})
		prev = next
	}

	_, err := kvstore.Get(repo.db, undoKey(2))
	assert.ErrorIs(t, err, errs.NotFound)
	_, err = kvstore.Get(repo.db, undoKey(3))
	assert.NoError(t, err)

	before := dump(t, repo)
	err = repo.RevertBlocks(ctx, 1)
	assert.ErrorIs(t, err, errs.ConsistencyError)
	assert.Equal(t, before, dump(t, repo))

	require.NoError(t, repo.RevertBlocks(ctx, 3))
	latest, err := repo.GetLatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Height)
}

func TestCreateSatRangesDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, 10)
	outPoint := wire.OutPoint{Hash: hashA}

	overwritten, err := repo.CreateSatRanges(ctx, outPoint, ordinals.SatRanges{{Start: 0, End: 50}})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), overwritten)
	overwritten, err = repo.CreateSatRanges(ctx, outPoint, ordinals.SatRanges{{Start: 50, End: 100}})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), overwritten)

	lost, err := repo.GetSatRanges(ctx, common.LostOutPoint)
	require.NoError(t, err)
	assert.Equal(t, ordinals.SatRanges{{Start: 0, End: 50}}, lost)

	var visited []wire.OutPoint
	require.NoError(t, repo.IterateSatRanges(ctx, func(outPoint wire.OutPoint, _ ordinals.SatRanges) error {
		visited = append(visited, outPoint)
		return nil
	}))
	assert.Equal(t, []wire.OutPoint{outPoint}, visited)
}

func TestConsumeMissingSatRanges(t *testing.T) {
	repo := newTestRepository(t, 10)
	_, err := repo.ConsumeSatRanges(context.Background(), wire.OutPoint{Hash: hashA})
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestInscriptionEntry(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, 10)

	sat := uint64(42)
	id := ordinals.NewInscriptionId(hashA, 0)
	entry := &entity.InscriptionEntry{
		Id:       id,
		Number:   -1,
		Sat:      &sat,
		Cursed:   true,
		SatPoint: ordinals.SatPoint{OutPoint: wire.OutPoint{Hash: hashA}, Offset: 0},
		Inscription: ordinals.Inscription{
			ContentType: "text/plain",
			Content:     []byte("ord"),
		},
	}

	tx, err := repo.BeginOrdinalsTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx.CreateInscriptionEntry(ctx, entry))
	assert.ErrorIs(t, tx.CreateInscriptionEntry(ctx, entry), errs.DuplicateId)
	require.NoError(t, tx.Commit(ctx))

	got, err := repo.GetInscriptionEntryById(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entry.Number, got.Number)
	assert.Equal(t, entry.Inscription, got.Inscription)
	assert.Equal(t, sat, *got.Sat)

	byNumber, err := repo.GetInscriptionIdByNumber(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, id, byNumber)

	bySat, err := repo.GetInscriptionIdsBySat(ctx, sat)
	require.NoError(t, err)
	assert.Equal(t, []ordinals.InscriptionId{id}, bySat)

	newSatPoint := ordinals.SatPoint{OutPoint: wire.OutPoint{Hash: hashB, Index: 2}, Offset: 7}
	require.NoError(t, repo.UpdateInscriptionLocation(ctx, id, newSatPoint))
	got, err = repo.GetInscriptionEntryById(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, newSatPoint, got.SatPoint)
}

func TestOutPointInscriptions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, 10)
	outPoint := wire.OutPoint{Hash: hashA, Index: 3}

	locations := []entity.InscriptionLocation{
		{Id: ordinals.NewInscriptionId(hashA, 0), Sat: 1},
		{Id: ordinals.NewInscriptionId(hashB, 1), Sat: 1 << 40},
	}
	require.NoError(t, repo.AddInscriptionsToOutPoint(ctx, outPoint, locations[:1]))
	require.NoError(t, repo.AddInscriptionsToOutPoint(ctx, outPoint, locations[1:]))

	taken, err := repo.TakeInscriptionsInOutPoint(ctx, outPoint)
	require.NoError(t, err)
	assert.Equal(t, locations, taken)

	taken, err = repo.TakeInscriptionsInOutPoint(ctx, outPoint)
	require.NoError(t, err)
	assert.Empty(t, taken)
}

func TestUndoRecordCodec(t *testing.T) {
	entries := []undoEntry{
		{key: []byte("a"), prior: []byte("value"), found: true},
		{key: []byte("b")},
		{key: []byte("c"), prior: []byte{}, found: true},
	}
	decoded, err := decodeUndoRecord(encodeUndoRecord(entries))
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	for i, entry := range entries {
		assert.Equal(t, entry.key, decoded[i].key)
		assert.Equal(t, entry.found, decoded[i].found)
		assert.Equal(t, len(entry.prior), len(decoded[i].prior))
	}

	_, err = decodeUndoRecord([]byte{5, 'a'})
	assert.ErrorIs(t, err, errs.ConsistencyError)
}

func TestGetLatestBlockEmpty(t *testing.T) {
	repo := newTestRepository(t, 10)
	_, err := repo.GetLatestBlock(context.Background())
	assert.ErrorIs(t, err, errs.NotFound)
}

var _ datagateway.OrdinalsDataGatewayWithTx = (*Repository)(nil)
