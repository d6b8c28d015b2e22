package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/repository"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Listing bounds
const (
	MaxListLimit    = 20
	MaxAddressLimit = repository.MaxPageLimit
)

// TransactionAppService serves the transaction read path
type TransactionAppService struct {
	repo   repository.TransactionRepository
	logger *logger.Logger
}

// NewTransactionAppService creates a new transaction service
func NewTransactionAppService(repo repository.TransactionRepository, logger *logger.Logger) *TransactionAppService {
	return &TransactionAppService{
		repo:   repo,
		logger: logger.WithComponent("transaction-service"),
	}
}

var _ service.TransactionService = (*TransactionAppService)(nil)

// ListTransactions returns one page of the newest transactions
func (s *TransactionAppService) ListTransactions(ctx context.Context, page, limit int) (*entity.TransactionPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", entity.ErrValidation)
	}
	if limit < 1 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", entity.ErrValidation, MaxListLimit)
	}
	if page-1 > math.MaxInt/limit {
		return nil, fmt.Errorf("%w: page %d is out of range", entity.ErrValidation, page)
	}
	return s.repo.ListPage(ctx, page, limit)
}

// GetTransactionsByAddress returns transactions sent from or to address
func (s *TransactionAppService) GetTransactionsByAddress(ctx context.Context, address string, flowType *entity.FlowType, limit, offset int) ([]*entity.Transaction, error) {
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: invalid address %q", entity.ErrValidation, address)
	}
	if limit < 1 || limit > MaxAddressLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", entity.ErrValidation, MaxAddressLimit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0", entity.ErrValidation)
	}

	return s.repo.GetByAddress(ctx, repository.TransactionFilter{
		Address: strings.ToLower(address),
		Type:    flowType,
		Limit:   limit,
		Offset:  offset,
	})
}
