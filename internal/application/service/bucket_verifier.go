package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/repository"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

const verifyPageSize = repository.MaxPageLimit

// BucketMismatch is a stored bucket whose sums disagree with its transactions
type BucketMismatch struct {
	Key             entity.BucketKey
	StoredInflow    *big.Int
	StoredOutflow   *big.Int
	ExpectedInflow  *big.Int
	ExpectedOutflow *big.Int
}

// BucketVerifier recomputes every bucket from the stored transactions and
// compares the result with the stored buckets
type BucketVerifier struct {
	txRepo     repository.TransactionRepository
	tsRepo     repository.TimeSeriesRepository
	aggregator *service.FlowAggregator
	logger     *logger.Logger
}

// NewBucketVerifier creates a new verifier
func NewBucketVerifier(
	txRepo repository.TransactionRepository,
	tsRepo repository.TimeSeriesRepository,
	aggregator *service.FlowAggregator,
	logger *logger.Logger,
) *BucketVerifier {
	return &BucketVerifier{
		txRepo:     txRepo,
		tsRepo:     tsRepo,
		aggregator: aggregator,
		logger:     logger.WithComponent("bucket-verifier"),
	}
}

// Verify returns the buckets that do not match a fresh fold of all stored
// transactions. It must not run concurrently with a sync.
func (v *BucketVerifier) Verify(ctx context.Context) ([]BucketMismatch, error) {
	var all []*entity.Transaction
	for page := 1; ; page++ {
		p, err := v.txRepo.ListPage(ctx, page, verifyPageSize)
		if err != nil {
			return nil, fmt.Errorf("list page %d: %w", page, err)
		}
		all = append(all, p.Transactions...)
		if !p.HasMore {
			break
		}
	}
	v.logger.Info("Loaded transactions", zap.Int("count", len(all)))

	expected, err := v.aggregator.Fold(all, time.Now())
	if err != nil {
		return nil, err
	}

	var mismatches []BucketMismatch
	for _, pt := range entity.PeriodTypes {
		want := make(map[int64]*entity.TimeSeriesBucket)
		lo, hi := int64(0), int64(-1)
		for _, b := range expected {
			if b.PeriodType != pt {
				continue
			}
			want[b.PeriodID] = b
			if hi < lo {
				lo, hi = b.PeriodID, b.PeriodID
			}
			lo, hi = min(lo, b.PeriodID), max(hi, b.PeriodID)
		}
		if len(want) == 0 {
			continue
		}

		stored, err := v.tsRepo.GetBuckets(ctx, pt, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("load %s buckets: %w", pt, err)
		}
		got := make(map[int64]*entity.TimeSeriesBucket, len(stored))
		for _, b := range stored {
			got[b.PeriodID] = b
		}

		for id := lo; id <= hi; id++ {
			w, g := want[id], got[id]
			if w == nil && g == nil {
				continue
			}
			if w == nil {
				w = entity.NewTimeSeriesBucket(pt, id)
			}
			if g == nil {
				g = entity.NewTimeSeriesBucket(pt, id)
			}
			if w.InflowAmount.Cmp(g.InflowAmount) == 0 && w.OutflowAmount.Cmp(g.OutflowAmount) == 0 {
				continue
			}
			mismatches = append(mismatches, BucketMismatch{
				Key:             entity.BucketKey{PeriodType: pt, PeriodID: id},
				StoredInflow:    g.InflowAmount,
				StoredOutflow:   g.OutflowAmount,
				ExpectedInflow:  w.InflowAmount,
				ExpectedOutflow: w.OutflowAmount,
			})
		}
	}

	v.logger.Info("Bucket verification finished",
		zap.Int("transactions", len(all)),
		zap.Int("buckets", len(expected)),
		zap.Int("mismatches", len(mismatches)))
	return mismatches, nil
}
