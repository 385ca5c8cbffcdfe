package ordinals

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/core/indexer"
	"github.com/hertarr/ordi/core/types"
	"github.com/hertarr/ordi/modules/ordinals/config"
	"github.com/hertarr/ordi/modules/ordinals/internal/datagateway"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
	"github.com/hertarr/ordi/pkg/btcclient"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Make sure to implement the Bitcoin Processor interface
var _ indexer.Processor[*types.Block] = (*Processor)(nil)

type Processor struct {
	ordinalsDg    datagateway.OrdinalsDataGateway
	indexerInfoDg datagateway.IndexerInfoDataGateway
	btcClient     btcclient.Contract
	network       common.Network
	config        config.Config
	dispatcher    *Dispatcher

	// remote prevout values, nil when values are stored locally
	prevOutCache *lru.Cache[wire.OutPoint, uint64]

	shutdownOnce sync.Once
	cleanupFuncs []func(context.Context) error
}

// NewProcessor returns the ordinals processor. btcClient is only used to resolve
// spent output values when conf.PrevOut.Remote is set.
func NewProcessor(ordinalsDg datagateway.OrdinalsDataGateway, indexerInfoDg datagateway.IndexerInfoDataGateway, btcClient btcclient.Contract, network common.Network, conf config.Config, dispatcher *Dispatcher, cleanupFuncs []func(context.Context) error) (*Processor, error) {
	p := &Processor{
		ordinalsDg:    ordinalsDg,
		indexerInfoDg: indexerInfoDg,
		btcClient:     btcClient,
		network:       network,
		config:        conf,
		dispatcher:    dispatcher,
		cleanupFuncs:  cleanupFuncs,
	}
	if conf.PrevOut.Remote {
		if btcClient == nil {
			return nil, errors.Wrap(errs.ConfigError, "remote prevout lookup needs a bitcoin node client")
		}
		cache, err := lru.New[wire.OutPoint, uint64](conf.PrevOut.CacheSize)
		if err != nil {
			return nil, errors.WithSecondaryError(errors.Wrap(errs.ConfigError, "can't create prevout cache"), err)
		}
		p.prevOutCache = cache
	}
	return p, nil
}

func (p *Processor) Name() string {
	return common.ModuleOrdinals.String()
}

// VerifyStates implements indexer.Processor.
func (p *Processor) VerifyStates(ctx context.Context) error {
	indexerState, err := p.indexerInfoDg.GetLatestIndexerState(ctx)
	if err != nil && !errors.Is(err, errs.NotFound) {
		return errors.Wrap(err, "failed to get latest indexer state")
	}
	// if not found, create indexer state
	if errors.Is(err, errs.NotFound) {
		if err := p.indexerInfoDg.CreateIndexerState(ctx, entity.IndexerState{
			ClientVersion: ClientVersion,
			DBVersion:     DBVersion,
			Network:       p.network,
		}); err != nil {
			return errors.Wrap(err, "failed to set indexer state")
		}
		return nil
	}

	if indexerState.DBVersion != DBVersion {
		return errors.Wrapf(errs.ConfigError, "db version mismatch: current version is %d. Please upgrade to version %d", indexerState.DBVersion, DBVersion)
	}
	if indexerState.Network != p.network {
		return errors.Wrapf(errs.ConfigError, "network mismatch: latest indexed network is %s, configured network is %s. If you want to change the network, please reset the database", indexerState.Network, p.network)
	}
	return nil
}

// CurrentBlock implements indexer.Processor.
func (p *Processor) CurrentBlock(ctx context.Context) (types.BlockHeader, error) {
	blockHeader, err := p.ordinalsDg.GetLatestBlock(ctx)
	if err != nil {
		return types.BlockHeader{}, errors.Wrap(err, "failed to get latest block")
	}
	return blockHeader, nil
}

// GetIndexedBlock implements indexer.Processor.
func (p *Processor) GetIndexedBlock(ctx context.Context, height int64) (types.BlockHeader, error) {
	indexedBlock, err := p.ordinalsDg.GetIndexedBlockByHeight(ctx, height)
	if err != nil {
		return types.BlockHeader{}, errors.Wrap(err, "failed to get indexed block")
	}
	return types.BlockHeader{
		Height:    indexedBlock.Height,
		Hash:      indexedBlock.Hash,
		PrevBlock: indexedBlock.PrevHash,
	}, nil
}

// RevertData implements indexer.Processor.
func (p *Processor) RevertData(ctx context.Context, from int64) error {
	if err := p.ordinalsDg.RevertBlocks(ctx, from); err != nil {
		return errors.Wrap(err, "failed to revert blocks")
	}
	logger.InfoContext(ctx, "Reverted ordinals state", slogx.Int64("from", from))
	return nil
}

// Shutdown implements indexer.Processor. Safe to call more than once.
func (p *Processor) Shutdown(ctx context.Context) error {
	var cleanupErrs []error
	p.shutdownOnce.Do(func() {
		for _, cleanup := range p.cleanupFuncs {
			if err := cleanup(ctx); err != nil {
				cleanupErrs = append(cleanupErrs, err)
			}
		}
	})
	return errors.WithStack(errors.Join(cleanupErrs...))
}
