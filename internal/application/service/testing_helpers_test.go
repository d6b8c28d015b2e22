package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"go.uber.org/zap/zaptest"
)

const (
	sender    = "0x00000000000000000000000000000000000000aa"
	recipient = "0x00000000000000000000000000000000000000bb"
	hourStart = int64(1728000000)
)

func testLogger(t *testing.T) *logger.Logger {
	return logger.New(zaptest.NewLogger(t))
}

func bridgeEvent(hash string, block uint64, flowType entity.FlowType, value string) *entity.Transaction {
	from := sender
	if flowType == entity.FlowTypeOutflow {
		from = entity.ZeroAddress
	}
	return &entity.Transaction{
		Hash:        hash,
		From:        from,
		To:          recipient,
		Value:       value,
		Timestamp:   hourStart + int64(block%3600),
		Type:        flowType,
		BlockNumber: block,
	}
}

// fakeSource serves canned events and records the requested windows
type fakeSource struct {
	mu       sync.Mutex
	head     uint64
	headErr  error
	events   []*entity.Transaction
	failAt   uint64
	windows  []BlockWindow
	entered  chan struct{}
	release  chan struct{}
	fetchErr error

	// hangHead and hangFetch block until the caller's context is done
	hangHead  bool
	hangFetch bool
}

func (f *fakeSource) LatestBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	hang := f.hangHead
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeSource) FetchEvents(ctx context.Context, from, to uint64) ([]*entity.Transaction, error) {
	f.mu.Lock()
	f.windows = append(f.windows, BlockWindow{From: from, To: to})
	entered, release := f.entered, f.release
	failAt, hang := f.failAt, f.hangFetch
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failAt != 0 && from <= failAt && failAt <= to {
		return nil, fmt.Errorf("%w: eth_getLogs [%d, %d] failed", entity.ErrRPC, from, to)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Transaction
	for _, ev := range f.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSource) requested() []BlockWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BlockWindow(nil), f.windows...)
}

// recordingPublisher captures published batches
type recordingPublisher struct {
	mu     sync.Mutex
	runIDs []string
	hashes []string
	err    error
}

func (p *recordingPublisher) PublishTransactions(ctx context.Context, runID string, txs []*entity.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runIDs = append(p.runIDs, runID)
	for _, tx := range txs {
		p.hashes = append(p.hashes, tx.Hash)
	}
	return p.err
}
