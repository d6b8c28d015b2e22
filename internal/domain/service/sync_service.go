package service

import (
	"context"

	"bridge-flow-indexer/internal/domain/entity"
)

// EventSource is the ledger capability the sync engine depends on
type EventSource interface {
	// LatestBlock returns the current chain head
	LatestBlock(ctx context.Context) (uint64, error)

	// FetchEvents returns the normalized bridge transactions in [fromBlock, toBlock]
	FetchEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*entity.Transaction, error)
}

// TransactionPublisher notifies watchers about freshly stored transactions
type TransactionPublisher interface {
	PublishTransactions(ctx context.Context, runID string, transactions []*entity.Transaction) error
}

// SyncService defines the chain sync operations
type SyncService interface {
	// RunOnce performs one full sync cycle. It returns ErrSyncInProgress when
	// another cycle is running.
	RunOnce(ctx context.Context) (*entity.SyncResult, error)

	// Status reports the checkpoint and whether a cycle is running
	Status(ctx context.Context) (*entity.SyncStatus, error)
}

// TimeSeriesService defines the flow time series read path
type TimeSeriesService interface {
	// Query returns the gap-filled series for a period name such as "24h"
	Query(ctx context.Context, period string) ([]entity.TimeSeriesPoint, error)
}

// TransactionService defines the transaction read path
type TransactionService interface {
	ListTransactions(ctx context.Context, page, limit int) (*entity.TransactionPage, error)
	GetTransactionsByAddress(ctx context.Context, address string, flowType *entity.FlowType, limit, offset int) ([]*entity.Transaction, error)
}
