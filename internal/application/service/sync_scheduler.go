package service

import (
	"context"
	"sync"
	"time"

	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// SyncScheduler runs the sync service on a fixed interval and on demand.
// Timer ticks and triggers are serialized through one goroutine.
type SyncScheduler struct {
	syncer     service.SyncService
	interval   time.Duration
	runOnStart bool
	trigger    chan struct{}
	logger     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncScheduler creates a new scheduler
func NewSyncScheduler(syncService service.SyncService, interval time.Duration, runOnStart bool, logger *logger.Logger) *SyncScheduler {
	return &SyncScheduler{
		syncer:     syncService,
		interval:   interval,
		runOnStart: runOnStart,
		trigger:    make(chan struct{}, 1),
		logger:     logger.WithComponent("sync-scheduler"),
	}
}

// Start launches the scheduling loop
func (s *SyncScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("Sync scheduler started",
		zap.Duration("interval", s.interval),
		zap.Bool("run_on_start", s.runOnStart))
}

// Stop cancels the loop and waits for an in-flight run to return
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Sync scheduler stopped")
}

// Trigger requests a run as soon as possible. Requests arriving while one is
// already pending are coalesced.
func (s *SyncScheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *SyncScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.runOnce(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, "interval")
		case <-s.trigger:
			s.runOnce(ctx, "trigger")
		}
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context, reason string) {
	_, err := s.syncer.RunOnce(ctx)
	switch {
	case err == nil:
	case IsInProgress(err):
		s.logger.Debug("Sync already running, skipping", zap.String("reason", reason))
	case ctx.Err() != nil:
		s.logger.Info("Sync run interrupted by shutdown", zap.String("reason", reason))
	default:
		// The coordinator already logged the failure; the next tick retries it
		s.logger.Warn("Scheduled sync failed", zap.String("reason", reason), zap.Error(err))
	}
}
