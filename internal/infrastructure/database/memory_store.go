package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/repository"
	"bridge-flow-indexer/internal/domain/service"
)

// MemoryStore keeps transactions, buckets and the checkpoint in process memory.
// It is meant for local development and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]*entity.Transaction
	buckets      map[entity.BucketKey]*entity.TimeSeriesBucket
	checkpoint   entity.SyncCheckpoint
	aggregator   *service.FlowAggregator
	now          func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(aggregator *service.FlowAggregator) *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*entity.Transaction),
		buckets:      make(map[entity.BucketKey]*entity.TimeSeriesBucket),
		checkpoint:   entity.SyncCheckpoint{ID: entity.SyncCheckpointID},
		aggregator:   aggregator,
		now:          time.Now,
	}
}

var (
	_ repository.TransactionRepository = (*MemoryStore)(nil)
	_ repository.SyncStatusRepository  = (*MemoryStore)(nil)
	_ repository.TimeSeriesRepository  = (*MemoryStore)(nil)
)

// UpsertMany stores unknown transactions and folds them into the buckets
func (m *MemoryStore) UpsertMany(ctx context.Context, transactions []*entity.Transaction) ([]*entity.Transaction, error) {
	if len(transactions) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := make([]*entity.Transaction, 0, len(transactions))
	seen := make(map[string]struct{}, len(transactions))
	for _, tx := range transactions {
		if _, ok := m.transactions[tx.Hash]; ok {
			continue
		}
		if _, ok := seen[tx.Hash]; ok {
			continue
		}
		seen[tx.Hash] = struct{}{}
		fresh = append(fresh, tx)
	}

	// Fold before writing anything so a bad value leaves the store untouched
	deltas, err := m.aggregator.Fold(fresh, m.now())
	if err != nil {
		return nil, err
	}

	for _, tx := range fresh {
		stored := *tx
		m.transactions[tx.Hash] = &stored
	}
	for _, delta := range deltas {
		bucket, ok := m.buckets[delta.Key()]
		if !ok {
			bucket = entity.NewTimeSeriesBucket(delta.PeriodType, delta.PeriodID)
			m.buckets[delta.Key()] = bucket
		}
		bucket.Merge(delta)
	}

	return fresh, nil
}

// ListPage returns transactions ordered by timestamp descending
func (m *MemoryStore) ListPage(ctx context.Context, page, limit int) (*entity.TransactionPage, error) {
	offset, limit, err := pageBounds(page, limit)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	all := m.sortedLocked(func(*entity.Transaction) bool { return true })
	m.mu.RUnlock()

	return newPage(window(all, offset, limit), page, limit), nil
}

// GetByAddress returns transactions sent from or to the address
func (m *MemoryStore) GetByAddress(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	matched := m.sortedLocked(func(tx *entity.Transaction) bool {
		if tx.From != filter.Address && tx.To != filter.Address {
			return false
		}
		return filter.Type == nil || tx.Type == *filter.Type
	})
	m.mu.RUnlock()

	return window(matched, filter.Offset, filter.Limit), nil
}

// GetCheckpoint returns the sync checkpoint
func (m *MemoryStore) GetCheckpoint(ctx context.Context) (*entity.SyncCheckpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := m.checkpoint
	return &cp, nil
}

// AdvanceCheckpoint moves the checkpoint forward
func (m *MemoryStore) AdvanceCheckpoint(ctx context.Context, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block > m.checkpoint.LastSyncedBlock {
		m.checkpoint.LastSyncedBlock = block
	}
	m.checkpoint.UpdatedAt = m.now()
	return nil
}

// GetBuckets returns the stored buckets in [fromID, toID]
func (m *MemoryStore) GetBuckets(ctx context.Context, periodType entity.PeriodType, fromID, toID int64) ([]*entity.TimeSeriesBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entity.TimeSeriesBucket
	for key, b := range m.buckets {
		if key.PeriodType != periodType || key.PeriodID < fromID || key.PeriodID > toID {
			continue
		}
		cp := entity.NewTimeSeriesBucket(b.PeriodType, b.PeriodID)
		cp.Merge(b)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodID < out[j].PeriodID })
	return out, nil
}

func (m *MemoryStore) sortedLocked(keep func(*entity.Transaction) bool) []*entity.Transaction {
	out := make([]*entity.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		if keep(tx) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

func window(txs []*entity.Transaction, offset, limit int) []*entity.Transaction {
	if offset < 0 || offset >= len(txs) {
		return []*entity.Transaction{}
	}
	end := offset + limit
	if end < offset || end > len(txs) {
		end = len(txs)
	}
	return txs[offset:end]
}
