package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/logger"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultTimestampConcurrency = 8

// EventFetcher pulls bridge logs for a block range and normalizes them
type EventFetcher struct {
	logs        LogFilterer
	decoder     *BridgeDecoder
	resolver    TimestampResolver
	bridge      common.Address
	concurrency int
	logger      *logger.Logger
}

// NewEventFetcher creates a new event fetcher
func NewEventFetcher(
	cfg *config.EthereumConfig,
	logs LogFilterer,
	decoder *BridgeDecoder,
	resolver TimestampResolver,
	logger *logger.Logger,
) (*EventFetcher, error) {
	if !common.IsHexAddress(cfg.BridgeAddress) {
		return nil, fmt.Errorf("invalid bridge address %q", cfg.BridgeAddress)
	}

	concurrency := cfg.TimestampConcurrency
	if concurrency <= 0 {
		concurrency = defaultTimestampConcurrency
	}

	return &EventFetcher{
		logs:        logs,
		decoder:     decoder,
		resolver:    resolver,
		bridge:      common.HexToAddress(cfg.BridgeAddress),
		concurrency: concurrency,
		logger:      logger.WithComponent("event-fetcher"),
	}, nil
}

var _ service.EventSource = (*EventFetcher)(nil)

// LatestBlock returns the chain head
func (f *EventFetcher) LatestBlock(ctx context.Context) (uint64, error) {
	head, err := f.logs.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: latest block: %w", entity.ErrRPC, err)
	}
	return head, nil
}

// FetchEvents returns the bridge transactions emitted in [fromBlock, toBlock]
// ordered by block number. Any RPC failure fails the whole range.
func (f *EventFetcher) FetchEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*entity.Transaction, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("%w: from block %d is after to block %d", entity.ErrValidation, fromBlock, toBlock)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{f.bridge},
		Topics:    [][]common.Hash{f.decoder.Topics()},
	}

	logs, err := f.logs.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: filter logs %d-%d: %w", entity.ErrRPC, fromBlock, toBlock, err)
	}

	transactions := make([]*entity.Transaction, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		tx, err := f.decoder.Decode(lg)
		if errors.Is(err, errUnknownEvent) {
			f.logger.Debug("Skipping unknown log",
				zap.String("tx_hash", lg.TxHash.Hex()),
				zap.Uint64("block_number", lg.BlockNumber))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", entity.ErrRPC, err)
		}
		transactions = append(transactions, tx)
	}

	if err := f.resolveTimestamps(ctx, transactions); err != nil {
		return nil, err
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].BlockNumber < transactions[j].BlockNumber
	})

	f.logger.Debug("Fetched bridge events",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
		zap.Int("logs", len(logs)),
		zap.Int("transactions", len(transactions)))

	return transactions, nil
}

// resolveTimestamps looks up every distinct block concurrently and joins
// before assigning timestamps.
func (f *EventFetcher) resolveTimestamps(ctx context.Context, transactions []*entity.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	blocks := make([]uint64, 0, len(transactions))
	seen := make(map[uint64]struct{}, len(transactions))
	for _, tx := range transactions {
		if _, ok := seen[tx.BlockNumber]; ok {
			continue
		}
		seen[tx.BlockNumber] = struct{}{}
		blocks = append(blocks, tx.BlockNumber)
	}

	var (
		mu         sync.Mutex
		timestamps = make(map[uint64]int64, len(blocks))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, block := range blocks {
		block := block
		g.Go(func() error {
			ts, err := f.resolver.BlockTimestamp(gctx, block)
			if err != nil {
				return err
			}
			mu.Lock()
			timestamps[block] = ts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, entity.ErrRPC) {
			err = fmt.Errorf("%w: %w", entity.ErrRPC, err)
		}
		return err
	}

	for _, tx := range transactions {
		tx.Timestamp = timestamps[tx.BlockNumber]
	}
	return nil
}
