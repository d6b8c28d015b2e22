package database

import (
	"context"
	"fmt"

	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresClient handles the Postgres connection pool
type PostgresClient struct {
	pool   *pgxpool.Pool
	config *config.PostgresConfig
	logger *logger.Logger
}

// NewPostgresClient creates a new Postgres client
func NewPostgresClient(cfg *config.PostgresConfig, logger *logger.Logger) *PostgresClient {
	return &PostgresClient{
		config: cfg,
		logger: logger.WithComponent("postgres-client"),
	}
}

// Connect opens the pool and creates the schema
func (p *PostgresClient) Connect(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(p.config.URL)
	if err != nil {
		return fmt.Errorf("failed to parse Postgres URL: %w", err)
	}
	if p.config.MaxConns > 0 {
		poolCfg.MaxConns = p.config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping Postgres: %w", err)
	}

	p.pool = pool
	p.logger.Info("Connected to Postgres", zap.String("host", poolCfg.ConnConfig.Host))

	if err := p.setupSchema(ctx); err != nil {
		return fmt.Errorf("failed to setup schema: %w", err)
	}
	return nil
}

// Close closes the pool
func (p *PostgresClient) Close(ctx context.Context) error {
	if p.pool != nil {
		p.logger.Info("Closing Postgres pool")
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

// Pool returns the connection pool
func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}

// IsConnected checks if the pool can reach Postgres
func (p *PostgresClient) IsConnected(ctx context.Context) bool {
	if p.pool == nil {
		return false
	}
	return p.pool.Ping(ctx) == nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		hash TEXT PRIMARY KEY,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		value NUMERIC(78, 0) NOT NULL,
		timestamp BIGINT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('inflow', 'outflow')),
		block_number BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_timestamp_idx ON transactions (timestamp DESC, hash)`,
	`CREATE INDEX IF NOT EXISTS transactions_from_idx ON transactions (from_address)`,
	`CREATE INDEX IF NOT EXISTS transactions_to_idx ON transactions (to_address)`,
	`CREATE TABLE IF NOT EXISTS sync_status (
		id TEXT PRIMARY KEY,
		last_synced_block BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS flow_time_series_realtime (
		period_type TEXT NOT NULL,
		period_id BIGINT NOT NULL,
		first_timestamp BIGINT NOT NULL,
		inflow_amount NUMERIC NOT NULL DEFAULT 0,
		outflow_amount NUMERIC NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (period_type, period_id)
	)`,
}

// setupSchema creates the tables and indexes
func (p *PostgresClient) setupSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	p.logger.Info("Schema setup completed")
	return nil
}
