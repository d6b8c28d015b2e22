package database

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/repository"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	insertTransactionSQL = `
		INSERT INTO transactions (hash, from_address, to_address, value, timestamp, type, block_number)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (hash) DO NOTHING
		RETURNING hash`

	mergeBucketSQL = `
		INSERT INTO flow_time_series_realtime
			(period_type, period_id, first_timestamp, inflow_amount, outflow_amount, last_updated)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
		ON CONFLICT (period_type, period_id) DO UPDATE SET
			inflow_amount = flow_time_series_realtime.inflow_amount + EXCLUDED.inflow_amount,
			outflow_amount = flow_time_series_realtime.outflow_amount + EXCLUDED.outflow_amount,
			last_updated = EXCLUDED.last_updated`

	selectTransactionColumns = `hash, from_address, to_address, value::text, timestamp, type, block_number`
)

// PostgresTransactionRepository implements TransactionRepository on Postgres
type PostgresTransactionRepository struct {
	client     *PostgresClient
	aggregator *service.FlowAggregator
	logger     *logger.Logger
}

// NewPostgresTransactionRepository creates a new Postgres transaction repository
func NewPostgresTransactionRepository(client *PostgresClient, aggregator *service.FlowAggregator, logger *logger.Logger) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{
		client:     client,
		aggregator: aggregator,
		logger:     logger.WithComponent("postgres-transaction-repo"),
	}
}

// UpsertMany inserts unknown transactions and merges exactly those into the
// flow buckets, all in one database transaction.
func (r *PostgresTransactionRepository) UpsertMany(ctx context.Context, transactions []*entity.Transaction) ([]*entity.Transaction, error) {
	if len(transactions) == 0 {
		return nil, nil
	}

	dbTx, err := r.client.Pool().BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", entity.ErrStorage, err)
	}
	defer dbTx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, tx := range transactions {
		batch.Queue(insertTransactionSQL,
			tx.Hash, tx.From, tx.To, tx.Value, tx.Timestamp, string(tx.Type), int64(tx.BlockNumber))
	}

	fresh := make([]*entity.Transaction, 0, len(transactions))
	results := dbTx.SendBatch(ctx, batch)
	for _, tx := range transactions {
		var hash string
		err := results.QueryRow().Scan(&hash)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			results.Close()
			return nil, fmt.Errorf("%w: insert transaction %s: %w", entity.ErrStorage, tx.Hash, err)
		}
		fresh = append(fresh, tx)
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("%w: insert transactions: %w", entity.ErrStorage, err)
	}

	deltas, err := r.aggregator.Fold(fresh, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if len(deltas) > 0 {
		bucketBatch := &pgx.Batch{}
		for _, d := range deltas {
			bucketBatch.Queue(mergeBucketSQL,
				string(d.PeriodType), d.PeriodID, d.FirstTimestamp,
				d.InflowAmount.String(), d.OutflowAmount.String(), d.LastUpdated)
		}
		if err := dbTx.SendBatch(ctx, bucketBatch).Close(); err != nil {
			return nil, fmt.Errorf("%w: merge buckets: %w", entity.ErrStorage, err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", entity.ErrStorage, err)
	}

	r.logger.Debug("Upserted transactions",
		zap.Int("received", len(transactions)),
		zap.Int("inserted", len(fresh)),
		zap.Int("buckets", len(deltas)))

	return fresh, nil
}

// ListPage returns transactions ordered by timestamp descending
func (r *PostgresTransactionRepository) ListPage(ctx context.Context, page, limit int) (*entity.TransactionPage, error) {
	offset, limit, err := pageBounds(page, limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.client.Pool().Query(ctx,
		`SELECT `+selectTransactionColumns+` FROM transactions
		 ORDER BY timestamp DESC, hash ASC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %w", entity.ErrStorage, err)
	}

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}
	return newPage(txs, page, limit), nil
}

// GetByAddress returns transactions sent from or to the address
func (r *PostgresTransactionRepository) GetByAddress(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	var flowType *string
	if filter.Type != nil {
		s := string(*filter.Type)
		flowType = &s
	}

	rows, err := r.client.Pool().Query(ctx,
		`SELECT `+selectTransactionColumns+` FROM transactions
		 WHERE (from_address = $1 OR to_address = $1)
		   AND ($2::text IS NULL OR type = $2)
		 ORDER BY timestamp DESC, hash ASC
		 LIMIT $3 OFFSET $4`, filter.Address, flowType, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: transactions of %s: %w", entity.ErrStorage, filter.Address, err)
	}
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]*entity.Transaction, error) {
	defer rows.Close()

	txs := []*entity.Transaction{}
	for rows.Next() {
		var (
			tx       entity.Transaction
			flowType string
			block    int64
		)
		if err := rows.Scan(&tx.Hash, &tx.From, &tx.To, &tx.Value, &tx.Timestamp, &flowType, &block); err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %w", entity.ErrStorage, err)
		}
		tx.Type = entity.FlowType(flowType)
		tx.BlockNumber = uint64(block)
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read transactions: %w", entity.ErrStorage, err)
	}
	return txs, nil
}

// PostgresSyncStatusRepository implements SyncStatusRepository on Postgres
type PostgresSyncStatusRepository struct {
	client *PostgresClient
}

// NewPostgresSyncStatusRepository creates a new Postgres checkpoint repository
func NewPostgresSyncStatusRepository(client *PostgresClient) *PostgresSyncStatusRepository {
	return &PostgresSyncStatusRepository{client: client}
}

// GetCheckpoint returns the checkpoint, zero when none was written yet
func (r *PostgresSyncStatusRepository) GetCheckpoint(ctx context.Context) (*entity.SyncCheckpoint, error) {
	cp := &entity.SyncCheckpoint{ID: entity.SyncCheckpointID}
	var block int64
	err := r.client.Pool().QueryRow(ctx,
		`SELECT last_synced_block, updated_at FROM sync_status WHERE id = $1`,
		entity.SyncCheckpointID).Scan(&block, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read checkpoint: %w", entity.ErrStorage, err)
	}
	cp.LastSyncedBlock = uint64(block)
	return cp, nil
}

// AdvanceCheckpoint moves the checkpoint forward; GREATEST keeps it monotonic
func (r *PostgresSyncStatusRepository) AdvanceCheckpoint(ctx context.Context, block uint64) error {
	_, err := r.client.Pool().Exec(ctx,
		`INSERT INTO sync_status (id, last_synced_block, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			last_synced_block = GREATEST(sync_status.last_synced_block, EXCLUDED.last_synced_block),
			updated_at = NOW()`,
		entity.SyncCheckpointID, int64(block))
	if err != nil {
		return fmt.Errorf("%w: advance checkpoint to %d: %w", entity.ErrStorage, block, err)
	}
	return nil
}

// PostgresTimeSeriesRepository implements TimeSeriesRepository on Postgres
type PostgresTimeSeriesRepository struct {
	client *PostgresClient
}

// NewPostgresTimeSeriesRepository creates a new Postgres time series repository
func NewPostgresTimeSeriesRepository(client *PostgresClient) *PostgresTimeSeriesRepository {
	return &PostgresTimeSeriesRepository{client: client}
}

// GetBuckets returns the stored buckets in [fromID, toID]
func (r *PostgresTimeSeriesRepository) GetBuckets(ctx context.Context, periodType entity.PeriodType, fromID, toID int64) ([]*entity.TimeSeriesBucket, error) {
	rows, err := r.client.Pool().Query(ctx,
		`SELECT period_id, first_timestamp, inflow_amount::text, outflow_amount::text, last_updated
		 FROM flow_time_series_realtime
		 WHERE period_type = $1 AND period_id BETWEEN $2 AND $3
		 ORDER BY period_id`, string(periodType), fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s buckets: %w", entity.ErrStorage, periodType, err)
	}
	defer rows.Close()

	var buckets []*entity.TimeSeriesBucket
	for rows.Next() {
		var inflow, outflow string
		b := &entity.TimeSeriesBucket{PeriodType: periodType}
		if err := rows.Scan(&b.PeriodID, &b.FirstTimestamp, &inflow, &outflow, &b.LastUpdated); err != nil {
			return nil, fmt.Errorf("%w: scan bucket: %w", entity.ErrStorage, err)
		}
		if b.InflowAmount, err = parseAmount(inflow); err != nil {
			return nil, err
		}
		if b.OutflowAmount, err = parseAmount(outflow); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read buckets: %w", entity.ErrStorage, err)
	}
	return buckets, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid stored amount %q", entity.ErrStorage, s)
	}
	return v, nil
}
