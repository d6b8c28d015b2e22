package repository

import (
	"context"

	"bridge-flow-indexer/internal/domain/entity"
)

// MaxPageLimit caps the number of rows a single read returns
const MaxPageLimit = 100

// TransactionFilter narrows an address lookup
type TransactionFilter struct {
	Address string
	Type    *entity.FlowType
	Limit   int
	Offset  int
}

// TransactionRepository defines the interface for bridge transaction storage
type TransactionRepository interface {
	// UpsertMany stores transactions that are not yet known and folds exactly those
	// into the flow time series in the same storage transaction. It returns the
	// freshly inserted transactions; already stored ones are silently skipped.
	UpsertMany(ctx context.Context, transactions []*entity.Transaction) ([]*entity.Transaction, error)

	// ListPage returns transactions ordered by timestamp descending
	ListPage(ctx context.Context, page, limit int) (*entity.TransactionPage, error)

	// GetByAddress returns transactions sent from or to the address
	GetByAddress(ctx context.Context, filter TransactionFilter) ([]*entity.Transaction, error)
}
