package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/repository"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/logger"
	"bridge-flow-indexer/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncOptions bounds what a single run does
type SyncOptions struct {
	DeployBlock   uint64
	BatchSize     uint64
	WindowTimeout time.Duration
	HeadTimeout   time.Duration
}

// SyncCoordinator drives the ledger from the checkpoint to the chain head in
// fixed-size block windows
type SyncCoordinator struct {
	source     service.EventSource
	txRepo     repository.TransactionRepository
	statusRepo repository.SyncStatusRepository
	publisher  service.TransactionPublisher
	metrics    *metrics.Metrics
	opts       SyncOptions
	logger     *logger.Logger

	running sync.Mutex
	active  atomic.Bool
}

// NewSyncCoordinator creates a new sync coordinator. publisher and metrics may be nil.
func NewSyncCoordinator(
	source service.EventSource,
	txRepo repository.TransactionRepository,
	statusRepo repository.SyncStatusRepository,
	publisher service.TransactionPublisher,
	metrics *metrics.Metrics,
	opts SyncOptions,
	logger *logger.Logger,
) *SyncCoordinator {
	if opts.BatchSize == 0 {
		opts.BatchSize = 1000
	}
	if opts.WindowTimeout <= 0 {
		opts.WindowTimeout = 2 * time.Minute
	}
	if opts.HeadTimeout <= 0 {
		opts.HeadTimeout = 30 * time.Second
	}
	return &SyncCoordinator{
		source:     source,
		txRepo:     txRepo,
		statusRepo: statusRepo,
		publisher:  publisher,
		metrics:    metrics,
		opts:       opts,
		logger:     logger.WithComponent("sync-coordinator"),
	}
}

var _ service.SyncService = (*SyncCoordinator)(nil)

// BlockWindow is an inclusive block range
type BlockWindow struct {
	From uint64
	To   uint64
}

// SplitWindows cuts [from, to] into consecutive windows of at most size blocks
func SplitWindows(from, to, size uint64) []BlockWindow {
	if size == 0 || from > to {
		return nil
	}
	var windows []BlockWindow
	for cur := from; cur <= to; {
		end := to
		if to-cur >= size {
			end = cur + size - 1
		}
		windows = append(windows, BlockWindow{From: cur, To: end})
		if end == to {
			break
		}
		cur = end + 1
	}
	return windows
}

// RunOnce syncs from the checkpoint to the current head. A failed window
// stops the run with the checkpoint left at the last completed window.
func (c *SyncCoordinator) RunOnce(ctx context.Context) (*entity.SyncResult, error) {
	if !c.running.TryLock() {
		c.metrics.ObserveSkippedRun()
		return nil, entity.ErrSyncInProgress
	}
	defer c.running.Unlock()
	c.active.Store(true)
	defer c.active.Store(false)

	started := time.Now()
	runID := uuid.NewString()
	log := c.logger.WithRun(runID)

	result, err := c.run(ctx, runID, log)
	switch {
	case err != nil:
		c.metrics.ObserveRun(metrics.ResultFailure, time.Since(started))
		log.Error("Sync run failed", zap.Error(err))
	case result.UpToDate:
		c.metrics.ObserveRun(metrics.ResultUpToDate, time.Since(started))
		log.Debug("Already up to date", zap.Uint64("last_synced_block", result.LastSyncedBlock))
	default:
		c.metrics.ObserveRun(metrics.ResultSuccess, time.Since(started))
		log.Info("Sync run completed",
			zap.Uint64("from_block", result.FromBlock),
			zap.Uint64("to_block", result.ToBlock),
			zap.Int("windows", result.Windows),
			zap.Int("found", result.TransactionsFound),
			zap.Int("inserted", result.TransactionsInserted),
			zap.Duration("elapsed", time.Since(started)))
	}
	return result, err
}

func (c *SyncCoordinator) run(ctx context.Context, runID string, log *logger.Logger) (*entity.SyncResult, error) {
	checkpoint, err := c.statusRepo.GetCheckpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	headCtx, cancel := context.WithTimeout(ctx, c.opts.HeadTimeout)
	head, err := c.source.LatestBlock(headCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}
	c.metrics.SetChainHead(head)

	from := checkpoint.LastSyncedBlock
	if from < c.opts.DeployBlock {
		from = c.opts.DeployBlock
	}

	result := &entity.SyncResult{
		RunID:           runID,
		FromBlock:       from,
		ToBlock:         head,
		LastSyncedBlock: checkpoint.LastSyncedBlock,
	}
	if from >= head {
		result.UpToDate = true
		return result, nil
	}

	log.Info("Starting sync run",
		zap.Uint64("from_block", from),
		zap.Uint64("to_block", head),
		zap.Uint64("batch_size", c.opts.BatchSize))

	for _, w := range SplitWindows(from, head, c.opts.BatchSize) {
		found, fresh, err := c.processWindow(ctx, w)
		if err != nil {
			c.metrics.ObserveWindow(metrics.ResultFailure, 0)
			return result, fmt.Errorf("window [%d, %d]: %w", w.From, w.To, err)
		}
		c.metrics.ObserveWindow(metrics.ResultSuccess, len(fresh))
		c.metrics.SetCheckpoint(w.To)

		result.Windows++
		result.TransactionsFound += found
		result.TransactionsInserted += len(fresh)
		result.LastSyncedBlock = w.To

		log.Debug("Window synced",
			zap.Uint64("from_block", w.From),
			zap.Uint64("to_block", w.To),
			zap.Int("found", found),
			zap.Int("inserted", len(fresh)))

		c.publish(ctx, runID, fresh, log)
	}

	return result, nil
}

// processWindow fetches, persists and checkpoints one window under the window timeout
func (c *SyncCoordinator) processWindow(ctx context.Context, w BlockWindow) (int, []*entity.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.WindowTimeout)
	defer cancel()

	transactions, err := c.source.FetchEvents(ctx, w.From, w.To)
	if err != nil {
		return 0, nil, err
	}

	fresh, err := c.txRepo.UpsertMany(ctx, transactions)
	if err != nil {
		return 0, nil, err
	}

	if err := c.statusRepo.AdvanceCheckpoint(ctx, w.To); err != nil {
		return 0, nil, fmt.Errorf("advance checkpoint: %w", err)
	}
	return len(transactions), fresh, nil
}

func (c *SyncCoordinator) publish(ctx context.Context, runID string, fresh []*entity.Transaction, log *logger.Logger) {
	if c.publisher == nil || len(fresh) == 0 {
		return
	}
	if err := c.publisher.PublishTransactions(ctx, runID, fresh); err != nil {
		log.Warn("Failed to publish transactions", zap.Int("count", len(fresh)), zap.Error(err))
	}
}

// Status reports the checkpoint and whether a run is in flight
func (c *SyncCoordinator) Status(ctx context.Context) (*entity.SyncStatus, error) {
	checkpoint, err := c.statusRepo.GetCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	return &entity.SyncStatus{
		LastSyncedBlock: checkpoint.LastSyncedBlock,
		UpdatedAt:       checkpoint.UpdatedAt,
		Running:         c.active.Load(),
	}, nil
}

// IsInProgress reports whether err means another run holds the lock
func IsInProgress(err error) bool {
	return errors.Is(err, entity.ErrSyncInProgress)
}
