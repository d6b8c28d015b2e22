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

// TimeSeriesAppService answers flow time series queries from the stored buckets
type TimeSeriesAppService struct {
	repo   repository.TimeSeriesRepository
	now    func() time.Time
	logger *logger.Logger
}

// NewTimeSeriesAppService creates a new time series service
func NewTimeSeriesAppService(repo repository.TimeSeriesRepository, logger *logger.Logger) *TimeSeriesAppService {
	return &TimeSeriesAppService{
		repo:   repo,
		now:    time.Now,
		logger: logger.WithComponent("time-series-service"),
	}
}

var _ service.TimeSeriesService = (*TimeSeriesAppService)(nil)

// Query returns exactly N points for the period, ending with the current
// period and ascending by time. Periods without a bucket are zero.
func (s *TimeSeriesAppService) Query(ctx context.Context, period string) ([]entity.TimeSeriesPoint, error) {
	sp, err := entity.ParseSeriesPeriod(period)
	if err != nil {
		return nil, err
	}

	current := sp.PeriodType.PeriodID(s.now().Unix())
	first := current - int64(sp.Points) + 1

	buckets, err := s.repo.GetBuckets(ctx, sp.PeriodType, first, current)
	if err != nil {
		return nil, fmt.Errorf("load %s buckets: %w", sp.PeriodType, err)
	}

	byID := make(map[int64]*entity.TimeSeriesBucket, len(buckets))
	for _, b := range buckets {
		byID[b.PeriodID] = b
	}

	points := make([]entity.TimeSeriesPoint, 0, sp.Points)
	for id := first; id <= current; id++ {
		point := entity.TimeSeriesPoint{
			Time:    sp.PeriodType.FirstTimestamp(id),
			Inflow:  new(big.Int),
			Outflow: new(big.Int),
		}
		if b, ok := byID[id]; ok {
			if b.InflowAmount != nil {
				point.Inflow.Set(b.InflowAmount)
			}
			if b.OutflowAmount != nil {
				point.Outflow.Set(b.OutflowAmount)
			}
		}
		points = append(points, point)
	}

	s.logger.Debug("Time series query",
		zap.String("period", period),
		zap.Int("buckets", len(buckets)),
		zap.Int("points", len(points)))
	return points, nil
}
