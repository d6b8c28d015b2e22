package repository

import (
	"context"

	"bridge-flow-indexer/internal/domain/entity"
)

// TimeSeriesRepository reads aggregated flow buckets. Writes happen through
// TransactionRepository.UpsertMany only.
type TimeSeriesRepository interface {
	// GetBuckets returns stored buckets of periodType with fromID <= id <= toID
	GetBuckets(ctx context.Context, periodType entity.PeriodType, fromID, toID int64) ([]*entity.TimeSeriesBucket, error)
}
