package service

import (
	"math/big"
	"sort"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
)

// FlowAggregator folds transactions into per-period flow sums
type FlowAggregator struct {
	periodTypes []entity.PeriodType
}

// NewFlowAggregator creates an aggregator for hourly, daily and monthly buckets
func NewFlowAggregator() *FlowAggregator {
	return &FlowAggregator{periodTypes: entity.PeriodTypes}
}

// Fold groups transactions by period and sums their values by flow type.
// The returned buckets are deltas meant to be added to the stored buckets,
// ordered by period type then period id.
func (a *FlowAggregator) Fold(transactions []*entity.Transaction, now time.Time) ([]*entity.TimeSeriesBucket, error) {
	if len(transactions) == 0 {
		return nil, nil
	}

	deltas := make(map[entity.BucketKey]*entity.TimeSeriesBucket)
	for _, tx := range transactions {
		amount, err := tx.Amount()
		if err != nil {
			return nil, err
		}

		for _, pt := range a.periodTypes {
			key := entity.BucketKey{PeriodType: pt, PeriodID: pt.PeriodID(tx.Timestamp)}
			bucket, ok := deltas[key]
			if !ok {
				bucket = entity.NewTimeSeriesBucket(key.PeriodType, key.PeriodID)
				bucket.LastUpdated = now
				deltas[key] = bucket
			}
			addFlow(bucket, tx.Type, amount)
		}
	}

	out := make([]*entity.TimeSeriesBucket, 0, len(deltas))
	for _, b := range deltas {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodType != out[j].PeriodType {
			return out[i].PeriodType < out[j].PeriodType
		}
		return out[i].PeriodID < out[j].PeriodID
	})
	return out, nil
}

func addFlow(b *entity.TimeSeriesBucket, flowType entity.FlowType, amount *big.Int) {
	if flowType == entity.FlowTypeInflow {
		b.InflowAmount.Add(b.InflowAmount, amount)
		return
	}
	b.OutflowAmount.Add(b.OutflowAmount, amount)
}
