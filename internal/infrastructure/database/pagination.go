package database

import (
	"fmt"
	"math"
	"strings"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/repository"
)

// pageBounds converts a 1-based page into offset and capped limit
func pageBounds(page, limit int) (offset, capped int, err error) {
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1, got %d", entity.ErrValidation, page)
	}
	if limit < 1 {
		return 0, 0, fmt.Errorf("%w: limit must be >= 1, got %d", entity.ErrValidation, limit)
	}
	if limit > repository.MaxPageLimit {
		limit = repository.MaxPageLimit
	}
	if page-1 > math.MaxInt/limit {
		return 0, 0, fmt.Errorf("%w: page %d is out of range", entity.ErrValidation, page)
	}
	return (page - 1) * limit, limit, nil
}

// normalizeFilter validates an address lookup and caps its limit
func normalizeFilter(f repository.TransactionFilter) (repository.TransactionFilter, error) {
	if f.Address == "" {
		return f, fmt.Errorf("%w: address is required", entity.ErrValidation)
	}
	if f.Offset < 0 {
		return f, fmt.Errorf("%w: offset must be >= 0", entity.ErrValidation)
	}
	if f.Limit < 1 || f.Limit > repository.MaxPageLimit {
		f.Limit = repository.MaxPageLimit
	}
	f.Address = strings.ToLower(f.Address)
	return f, nil
}

func newPage(transactions []*entity.Transaction, page, limit int) *entity.TransactionPage {
	if transactions == nil {
		transactions = []*entity.Transaction{}
	}
	return &entity.TransactionPage{
		Transactions: transactions,
		Page:         page,
		Limit:        limit,
		HasMore:      len(transactions) == limit,
	}
}
