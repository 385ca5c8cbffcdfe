package ordinals

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/internal/metrics"
	"github.com/hertarr/ordi/modules/ordinals/config"
	"github.com/hertarr/ordi/modules/ordinals/internal/datagateway"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
	"github.com/hertarr/ordi/pkg/btcutils"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// blockState is the in-flight state of the block being applied.
type blockState struct {
	dg     datagateway.OrdinalsDataGatewayWithTx
	header types.BlockHeader
	ledger *entity.LedgerState

	// sats paid as fees so far, in tx order, and the inscriptions on them
	feePool     ordinals.SatRanges
	feePoolLen  uint64
	feeFlotsams []*entity.Flotsam

	events []Event
}

// Process implements indexer.Processor. Every block commits on its own, and its
// events are dispatched right after the commit.
func (p *Processor) Process(ctx context.Context, blocks []*types.Block) error {
	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		ctx := logger.WithContext(ctx, slogx.Int64("height", block.Header.Height))
		logger.DebugContext(ctx, "Processing new block", slogx.Int("txs", len(block.Transactions)))
		start := time.Now()

		events, err := p.processBlock(ctx, block)
		if err != nil {
			return errors.Wrapf(err, "failed to process block %d", block.Header.Height)
		}
		metrics.ObserveBlock(start)
		countEvents(events)

		p.dispatcher.Dispatch(ctx, events)
		logger.DebugContext(ctx, "Inserted new block",
			slogx.Int("events", len(events)),
			slogx.Duration("duration", time.Since(start)),
		)
	}
	return nil
}

func (p *Processor) processBlock(ctx context.Context, block *types.Block) ([]Event, error) {
	height := block.Header.Height
	ledger, err := p.ordinalsDg.GetLedgerState(ctx)
	if errors.Is(err, errs.NotFound) {
		ledger, err = &entity.LedgerState{Height: -1, NextCursedNumber: -1}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get ledger state")
	}
	if height != ledger.Height+1 {
		return nil, errors.Wrapf(errs.ConsistencyError, "block %d doesn't follow the checkpoint at %d", height, ledger.Height)
	}
	if ledger.Height >= 0 && !block.Header.PrevBlock.IsEqual(&ledger.Hash) {
		return nil, errors.Wrapf(errs.ConsistencyError, "block %d builds on %s, checkpoint is %s", height, block.Header.PrevBlock, ledger.Hash)
	}
	if len(block.Transactions) == 0 || !block.Transactions[0].IsCoinbase() {
		return nil, errors.Wrapf(errs.ConsistencyError, "block %d has no coinbase", height)
	}

	envelopes, err := p.decodeEnvelopes(ctx, block)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	dg, err := p.ordinalsDg.BeginOrdinalsTx(ctx, height)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err := dg.Rollback(ctx); err != nil {
			logger.WarnContext(ctx, "failed to rollback transaction",
				slogx.Error(err),
				slogx.String("event", "rollback_ordinals_block"),
			)
		}
	}()

	bs := &blockState{
		dg:     dg,
		header: block.Header,
		ledger: ledger,
		events: make([]Event, 0),
	}

	// coinbase goes last, it collects the fees of the block
	for i, tx := range block.Transactions[1:] {
		if err := p.processTx(ctx, bs, tx, envelopes[i+1]); err != nil {
			return nil, errors.Wrapf(err, "failed to process tx %s", tx.TxHash)
		}
	}
	if err := p.processCoinbase(ctx, bs, block.Transactions[0]); err != nil {
		return nil, errors.Wrap(err, "failed to process coinbase")
	}

	ledger.Height, ledger.Hash = height, block.Header.Hash
	if err := dg.SetLedgerState(ctx, ledger); err != nil {
		return nil, errors.Wrap(err, "failed to set ledger state")
	}
	if err := dg.CreateIndexedBlock(ctx, &entity.IndexedBlock{
		Height:   height,
		Hash:     block.Header.Hash,
		PrevHash: block.Header.PrevBlock,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to create indexed block")
	}
	if err := dg.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to commit block")
	}
	return bs.events, nil
}

// decodeEnvelopes parses the envelopes of every transaction in parallel. The coinbase never has any.
func (p *Processor) decodeEnvelopes(ctx context.Context, block *types.Block) ([][]*ordinals.Envelope, error) {
	envelopes := make([][]*ordinals.Envelope, len(block.Transactions))
	if block.Header.Height < firstInscriptionHeight[p.network] {
		return envelopes, nil
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(max(p.config.DecodeWorkers, 1))
	for i := 1; i < len(block.Transactions); i++ {
		tx := block.Transactions[i]
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.WithStack(err)
			}
			envelopes[i] = ordinals.ParseEnvelopesFromTx(tx)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.Wrap(err, "failed to decode envelopes")
	}
	return envelopes, nil
}

func (p *Processor) processTx(ctx context.Context, bs *blockState, tx *types.Transaction, envelopes []*ordinals.Envelope) error {
	var (
		inputSats        = make(ordinals.SatRanges, 0)
		totalInputValue  uint64
		totalOutputValue = tx.TotalOutputValue()
		flotsams         = make([]*entity.Flotsam, 0)
		detected         = make([]*detectedEnvelope, 0, len(envelopes))
	)

	for i, txIn := range tx.TxIn {
		outPoint := txIn.PreviousOutPoint()
		ranges, err := bs.dg.ConsumeSatRanges(ctx, outPoint)
		if errors.Is(err, errs.NotFound) {
			return errors.WithSecondaryError(errors.Wrapf(errs.ConsistencyError, "sat ranges of %s not found", outPoint), err)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to consume sat ranges of %s", outPoint)
		}
		value, err := p.takeOutPointValue(ctx, bs.dg, outPoint)
		if err != nil {
			return errors.Wrapf(err, "failed to take value of %s", outPoint)
		}
		if value != ranges.Len() {
			return errors.Wrapf(errs.ConsistencyError, "%s is worth %d sats but holds %d", outPoint, value, ranges.Len())
		}

		locations, err := bs.dg.TakeInscriptionsInOutPoint(ctx, outPoint)
		if err != nil {
			return errors.Wrapf(err, "failed to take inscriptions in %s", outPoint)
		}
		for _, location := range locations {
			offset, ok := ranges.Offset(location.Sat)
			if !ok {
				return errors.Wrapf(errs.ConsistencyError, "inscription %s is on sat %d, which %s doesn't hold", location.Id, location.Sat, outPoint)
			}
			flotsams = append(flotsams, &entity.Flotsam{
				Offset:        totalInputValue + offset,
				Sat:           location.Sat,
				InscriptionId: location.Id,
				Old:           &ordinals.SatPoint{OutPoint: outPoint, Offset: offset},
			})
		}

		for _, envelope := range envelopes {
			if envelope.InputIndex != uint32(i) {
				continue
			}
			detected = append(detected, &detectedEnvelope{
				envelope:    envelope,
				inputOffset: totalInputValue,
				inputValue:  value,
			})
		}

		inputSats = append(inputSats, ranges...)
		totalInputValue += value
	}
	if totalOutputValue > totalInputValue {
		return errors.Wrapf(errs.ConsistencyError, "outputs pay %d sats, inputs hold %d", totalOutputValue, totalInputValue)
	}

	newFlotsams, err := p.inscribe(ctx, bs, tx, detected, inputSats, totalOutputValue)
	if err != nil {
		return errors.WithStack(err)
	}
	unbound := make([]*entity.Flotsam, 0)
	for _, flotsam := range newFlotsams {
		if flotsam.New.Unbound {
			unbound = append(unbound, flotsam)
		} else {
			flotsams = append(flotsams, flotsam)
		}
	}

	fees, floating, err := p.partition(ctx, bs, tx, inputSats, flotsams)
	if err != nil {
		return errors.WithStack(err)
	}

	// the rest rides with the fees to the coinbase
	for _, flotsam := range floating {
		flotsam.Offset = bs.feePoolLen + flotsam.Offset - totalOutputValue
		bs.feeFlotsams = append(bs.feeFlotsams, flotsam)
	}
	bs.feePool = append(bs.feePool, fees...)
	bs.feePoolLen += totalInputValue - totalOutputValue

	for _, flotsam := range unbound {
		satPoint := ordinals.SatPoint{OutPoint: common.UnboundOutPoint, Offset: bs.ledger.UnboundInscriptions}
		bs.ledger.UnboundInscriptions++
		if err := p.place(ctx, bs, tx, nil, flotsam, satPoint); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

type detectedEnvelope struct {
	envelope    *ordinals.Envelope
	inputOffset uint64
	inputValue  uint64
}

// inscribe turns the envelopes of tx into new inscriptions, numbered in envelope order.
func (p *Processor) inscribe(ctx context.Context, bs *blockState, tx *types.Transaction, detected []*detectedEnvelope, inputSats ordinals.SatRanges, totalOutputValue uint64) ([]*entity.Flotsam, error) {
	flotsams := make([]*entity.Flotsam, 0, len(detected))
	// inscriptions of this tx by sat, not indexed yet
	pending := make(map[uint64][]*entity.InscriptionEntry)

	for index, d := range detected {
		envelope := d.envelope
		cursed := envelope.UnrecognizedEvenField || // unrecognized even field
			envelope.DuplicateField || // duplicate field
			envelope.IncompleteField || // incomplete field
			envelope.InputIndex != 0 || // not first input
			envelope.Offset != 0 || // not first envelope in input
			envelope.Inscription.Pointer != nil || // contains pointer
			envelope.PushNum || // contains pushnum opcodes
			envelope.Stutter // contains stuttering curse structure
		unbound := d.inputValue == 0 || envelope.UnrecognizedEvenField

		offset := d.inputOffset
		if pointer := envelope.Inscription.Pointer; pointer != nil && *pointer < totalOutputValue {
			offset = *pointer
		}

		var sat *uint64
		if !unbound {
			s, ok := inputSats.SatAt(offset)
			if !ok {
				return nil, errors.Wrapf(errs.InternalError, "offset %d is outside of the inputs", offset)
			}
			sat = &s

			if !cursed {
				reinscription, err := p.isCursedReinscription(ctx, bs, s, pending[s])
				if err != nil {
					return nil, errors.WithStack(err)
				}
				cursed = reinscription
			}
		}

		// no more curses from the jubilee on
		if cursed && bs.header.Height >= ordinals.GetJubileeHeight(p.network) {
			cursed = false
		}

		number, sequence := p.nextNumber(bs.ledger, cursed)
		entry := &entity.InscriptionEntry{
			Id:            ordinals.NewInscriptionId(tx.TxHash, uint32(index)),
			Number:        number,
			Sequence:      sequence,
			Sat:           sat,
			Cursed:        cursed,
			Unbound:       unbound,
			Inscription:   envelope.Inscription,
			GenesisHeight: bs.header.Height,
			Timestamp:     bs.header.Timestamp,
		}
		if sat != nil {
			pending[*sat] = append(pending[*sat], entry)
		}
		flotsams = append(flotsams, &entity.Flotsam{
			Offset:        offset,
			Sat:           lo.FromPtr(sat),
			InscriptionId: entry.Id,
			New:           entry,
		})
	}
	return flotsams, nil
}

// isCursedReinscription reports whether a new inscription on sat is cursed for being a reinscription.
// Reinscribing a sat whose only inscription is cursed is allowed.
func (p *Processor) isCursedReinscription(ctx context.Context, bs *blockState, sat uint64, pending []*entity.InscriptionEntry) (bool, error) {
	ids, err := bs.dg.GetInscriptionIdsBySat(ctx, sat)
	if err != nil {
		return false, errors.Wrapf(err, "failed to get inscriptions on sat %d", sat)
	}
	switch len(ids) + len(pending) {
	case 0:
		return false, nil
	case 1:
		if len(pending) == 1 {
			return !pending[0].Cursed, nil
		}
		initial, err := bs.dg.GetInscriptionEntryById(ctx, ids[0])
		if err != nil {
			return false, errors.Wrapf(err, "failed to get inscription %s", ids[0])
		}
		return !initial.Cursed, nil
	default:
		return true, nil
	}
}

func (p *Processor) nextNumber(ledger *entity.LedgerState, cursed bool) (number int64, sequence uint64) {
	sequence = ledger.NextSequence
	ledger.NextSequence++
	if cursed && p.config.CursedNumbering != config.CursedNumberingShared {
		number = ledger.NextCursedNumber
		ledger.NextCursedNumber--
		return number, sequence
	}
	number = ledger.NextNumber
	ledger.NextNumber++
	return number, sequence
}

// partition hands out sats to the outputs of tx in order and places the flotsams landing in them.
// It returns the sats no output claimed and the flotsams on them, offsets unchanged.
func (p *Processor) partition(ctx context.Context, bs *blockState, tx *types.Transaction, sats ordinals.SatRanges, flotsams []*entity.Flotsam) (ordinals.SatRanges, []*entity.Flotsam, error) {
	slices.SortStableFunc(flotsams, func(a, b *entity.Flotsam) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	var (
		start uint64
		next  int
	)
	for vout, txOut := range tx.TxOut {
		value := uint64(txOut.Value)
		outPoint := tx.OutPoint(uint32(vout))
		overwritten, err := bs.dg.CreateSatRanges(ctx, outPoint, sats.Take(value))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to create sat ranges of %s", outPoint)
		}
		bs.ledger.LostSats += overwritten
		if err := p.putOutPointValue(ctx, bs.dg, outPoint, value); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to put value of %s", outPoint)
		}

		end := start + value
		locations := make([]entity.InscriptionLocation, 0)
		for ; next < len(flotsams) && flotsams[next].Offset < end; next++ {
			flotsam := flotsams[next]
			satPoint := ordinals.SatPoint{OutPoint: outPoint, Offset: flotsam.Offset - start}
			if err := p.place(ctx, bs, tx, txOut.PkScript, flotsam, satPoint); err != nil {
				return nil, nil, errors.WithStack(err)
			}
			locations = append(locations, entity.InscriptionLocation{Id: flotsam.InscriptionId, Sat: flotsam.Sat})
		}
		if err := bs.dg.AddInscriptionsToOutPoint(ctx, outPoint, locations); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to add inscriptions to %s", outPoint)
		}
		start = end
	}
	return sats, flotsams[next:], nil
}

func (p *Processor) processCoinbase(ctx context.Context, bs *blockState, tx *types.Transaction) error {
	params := p.network.ChainParams()
	subsidy := ordinals.Subsidy(bs.header.Height, params)

	// fees first, then the newly minted sats
	sats := bs.feePool
	if subsidy > 0 {
		sats = append(sats, ordinals.SatRange{Start: bs.ledger.NextSat, End: bs.ledger.NextSat + subsidy})
	}
	reward := bs.feePoolLen + subsidy
	totalOutputValue := tx.TotalOutputValue()
	if totalOutputValue > reward {
		return errors.Wrapf(errs.ConsistencyError, "coinbase pays %d sats, block reward is %d", totalOutputValue, reward)
	}

	lost, floating, err := p.partition(ctx, bs, tx, sats, bs.feeFlotsams)
	if err != nil {
		return errors.WithStack(err)
	}

	// whatever the coinbase doesn't claim is gone for good
	if err := bs.dg.AppendLostSatRanges(ctx, lost); err != nil {
		return errors.Wrap(err, "failed to append lost sats")
	}
	locations := make([]entity.InscriptionLocation, 0, len(floating))
	for _, flotsam := range floating {
		satPoint := ordinals.SatPoint{
			OutPoint: common.LostOutPoint,
			Offset:   bs.ledger.LostSats + flotsam.Offset - totalOutputValue,
		}
		if err := p.place(ctx, bs, tx, nil, flotsam, satPoint); err != nil {
			return errors.WithStack(err)
		}
		locations = append(locations, entity.InscriptionLocation{Id: flotsam.InscriptionId, Sat: flotsam.Sat})
	}
	if err := bs.dg.AddInscriptionsToOutPoint(ctx, common.LostOutPoint, locations); err != nil {
		return errors.Wrap(err, "failed to add lost inscriptions")
	}

	bs.ledger.LostSats += reward - totalOutputValue
	bs.ledger.NextSat += subsidy
	return nil
}

// place records the new location of an inscription and emits its event.
func (p *Processor) place(ctx context.Context, bs *blockState, tx *types.Transaction, pkScript []byte, flotsam *entity.Flotsam, satPoint ordinals.SatPoint) error {
	address := p.address(pkScript)
	if entry := flotsam.New; entry != nil {
		entry.GenesisSatPoint, entry.SatPoint = satPoint, satPoint
		if err := bs.dg.CreateInscriptionEntry(ctx, entry); err != nil {
			if errors.Is(err, errs.DuplicateId) {
				return errors.WithSecondaryError(errors.Wrapf(errs.ConsistencyError, "inscription %s recorded twice", entry.Id), err)
			}
			return errors.Wrapf(err, "failed to create inscription %s", entry.Id)
		}
		bs.events = append(bs.events, &InscribeEvent{
			Number:        entry.Number,
			Sequence:      entry.Sequence,
			InscriptionId: entry.Id,
			Inscription:   entry.Inscription,
			Sat:           entry.Sat,
			Cursed:        entry.Cursed,
			Unbound:       entry.Unbound,
			SatPoint:      satPoint,
			Address:       address,
			Height:        bs.header.Height,
			Timestamp:     bs.header.Timestamp,
			TxHash:        tx.TxHash,
		})
		return nil
	}

	entry, err := bs.dg.GetInscriptionEntryById(ctx, flotsam.InscriptionId)
	if err != nil {
		return errors.Wrapf(err, "failed to get inscription %s", flotsam.InscriptionId)
	}
	if err := bs.dg.UpdateInscriptionLocation(ctx, flotsam.InscriptionId, satPoint); err != nil {
		return errors.Wrapf(err, "failed to update location of %s", flotsam.InscriptionId)
	}
	bs.events = append(bs.events, &TransferEvent{
		InscriptionId: flotsam.InscriptionId,
		Number:        entry.Number,
		From:          lo.FromPtr(flotsam.Old),
		To:            satPoint,
		Address:       address,
		Height:        bs.header.Height,
		Timestamp:     bs.header.Timestamp,
		TxHash:        tx.TxHash,
	})
	return nil
}

// address returns the address paid by pkScript, empty for scripts without one.
func (p *Processor) address(pkScript []byte) string {
	if len(pkScript) == 0 {
		return ""
	}
	address, err := btcutils.PkScriptToAddress(pkScript, p.network)
	if err != nil {
		return ""
	}
	return address
}

func countEvents(events []Event) {
	for _, event := range events {
		switch event := event.(type) {
		case *InscribeEvent:
			kind := metrics.KindBlessed
			switch {
			case event.Unbound:
				kind = metrics.KindUnbound
			case event.Cursed:
				kind = metrics.KindCursed
			}
			metrics.InscriptionsTotal.WithLabelValues(kind).Inc()
		case *TransferEvent:
			metrics.TransfersTotal.Inc()
		}
	}
}
