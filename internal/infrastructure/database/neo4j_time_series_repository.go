package database

import (
	"context"
	"fmt"
	"time"

	"bridge-flow-indexer/internal/domain/entity"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4JTimeSeriesRepository implements TimeSeriesRepository interface
type Neo4JTimeSeriesRepository struct {
	client *Neo4JClient
}

// NewNeo4JTimeSeriesRepository creates a new Neo4J time series repository
func NewNeo4JTimeSeriesRepository(client *Neo4JClient) *Neo4JTimeSeriesRepository {
	return &Neo4JTimeSeriesRepository{client: client}
}

const bucketReturn = `
	RETURN b.period_type AS period_type, b.period_id AS period_id, b.first_timestamp AS first_timestamp,
		b.inflow_amount AS inflow_amount, b.outflow_amount AS outflow_amount, b.last_updated AS last_updated`

// GetBuckets returns the stored buckets in [fromID, toID]
func (r *Neo4JTimeSeriesRepository) GetBuckets(ctx context.Context, periodType entity.PeriodType, fromID, toID int64) ([]*entity.TimeSeriesBucket, error) {
	session := r.client.NewSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		res, err := mtx.Run(ctx, `
			MATCH (b:FlowTimeSeries {period_type: $period_type})
			WHERE b.period_id >= $from_id AND b.period_id <= $to_id`+bucketReturn+`
			ORDER BY period_id`,
			map[string]any{"period_type": string(periodType), "from_id": fromID, "to_id": toID})
		if err != nil {
			return nil, err
		}
		return collectBuckets(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s buckets: %w", entity.ErrStorage, periodType, err)
	}
	return result.([]*entity.TimeSeriesBucket), nil
}

// mergeBuckets adds deltas to the stored buckets. Amounts exceed int64, so the
// addition happens in Go on values read inside the same write transaction.
func mergeBuckets(ctx context.Context, mtx neo4j.ManagedTransaction, deltas []*entity.TimeSeriesBucket) error {
	if len(deltas) == 0 {
		return nil
	}

	keys := make([]map[string]any, 0, len(deltas))
	for _, d := range deltas {
		keys = append(keys, map[string]any{"period_type": string(d.PeriodType), "period_id": d.PeriodID})
	}

	res, err := mtx.Run(ctx, `
		UNWIND $keys AS k
		MATCH (b:FlowTimeSeries {period_type: k.period_type, period_id: k.period_id})`+bucketReturn,
		map[string]any{"keys": keys})
	if err != nil {
		return err
	}
	stored, err := collectBuckets(ctx, res)
	if err != nil {
		return err
	}

	merged := make(map[entity.BucketKey]*entity.TimeSeriesBucket, len(stored))
	for _, b := range stored {
		merged[b.Key()] = b
	}

	rows := make([]map[string]any, 0, len(deltas))
	for _, d := range deltas {
		b, ok := merged[d.Key()]
		if !ok {
			b = entity.NewTimeSeriesBucket(d.PeriodType, d.PeriodID)
		}
		b.Merge(d)
		rows = append(rows, map[string]any{
			"period_type":     string(b.PeriodType),
			"period_id":       b.PeriodID,
			"first_timestamp": b.FirstTimestamp,
			"inflow_amount":   b.InflowAmount.String(),
			"outflow_amount":  b.OutflowAmount.String(),
			"last_updated":    b.LastUpdated,
		})
	}

	_, err = mtx.Run(ctx, `
		UNWIND $buckets AS row
		MERGE (b:FlowTimeSeries {period_type: row.period_type, period_id: row.period_id})
		SET b.first_timestamp = row.first_timestamp,
			b.inflow_amount = row.inflow_amount,
			b.outflow_amount = row.outflow_amount,
			b.last_updated = row.last_updated`,
		map[string]any{"buckets": rows})
	return err
}

func collectBuckets(ctx context.Context, res neo4j.ResultWithContext) ([]*entity.TimeSeriesBucket, error) {
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}

	buckets := make([]*entity.TimeSeriesBucket, 0, len(records))
	for _, rec := range records {
		periodType, _, err := neo4j.GetRecordValue[string](rec, "period_type")
		if err != nil {
			return nil, err
		}
		periodID, _, err := neo4j.GetRecordValue[int64](rec, "period_id")
		if err != nil {
			return nil, err
		}
		first, _, err := neo4j.GetRecordValue[int64](rec, "first_timestamp")
		if err != nil {
			return nil, err
		}
		inflow, _, err := neo4j.GetRecordValue[string](rec, "inflow_amount")
		if err != nil {
			return nil, err
		}
		outflow, _, err := neo4j.GetRecordValue[string](rec, "outflow_amount")
		if err != nil {
			return nil, err
		}
		lastUpdated, _, err := neo4j.GetRecordValue[time.Time](rec, "last_updated")
		if err != nil {
			return nil, err
		}

		b := &entity.TimeSeriesBucket{
			PeriodType:     entity.PeriodType(periodType),
			PeriodID:       periodID,
			FirstTimestamp: first,
			LastUpdated:    lastUpdated,
		}
		if b.InflowAmount, err = parseAmount(inflow); err != nil {
			return nil, err
		}
		if b.OutflowAmount, err = parseAmount(outflow); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}
