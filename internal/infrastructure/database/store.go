package database

import (
	"context"
	"fmt"

	"bridge-flow-indexer/internal/domain/repository"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// Store bundles the repositories of the configured storage backend
type Store struct {
	Driver       string
	Transactions repository.TransactionRepository
	SyncStatus   repository.SyncStatusRepository
	TimeSeries   repository.TimeSeriesRepository

	connect func(ctx context.Context) error
	close   func(ctx context.Context) error
	healthy func(ctx context.Context) bool
	logger  *logger.Logger
}

// NewStore builds the repositories selected by storage.driver
func NewStore(cfg *config.Config, aggregator *service.FlowAggregator, logger *logger.Logger) (*Store, error) {
	s := &Store{
		Driver: cfg.Storage.Driver,
		logger: logger.WithComponent("store"),
	}

	switch cfg.Storage.Driver {
	case config.StorageDriverNeo4J:
		client := NewNeo4JClient(&cfg.Neo4J, logger)
		s.Transactions = NewNeo4JTransactionRepository(client, aggregator, logger)
		s.SyncStatus = NewNeo4JSyncStatusRepository(client)
		s.TimeSeries = NewNeo4JTimeSeriesRepository(client)
		s.connect = client.Connect
		s.close = client.Close
		s.healthy = client.IsConnected

	case config.StorageDriverPostgres:
		client := NewPostgresClient(&cfg.Postgres, logger)
		s.Transactions = NewPostgresTransactionRepository(client, aggregator, logger)
		s.SyncStatus = NewPostgresSyncStatusRepository(client)
		s.TimeSeries = NewPostgresTimeSeriesRepository(client)
		s.connect = client.Connect
		s.close = client.Close
		s.healthy = client.IsConnected

	case config.StorageDriverMemory:
		mem := NewMemoryStore(aggregator)
		s.Transactions = mem
		s.SyncStatus = mem
		s.TimeSeries = mem

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	return s, nil
}

// Connect opens the backend connection and prepares its schema
func (s *Store) Connect(ctx context.Context) error {
	s.logger.Info("Opening store", zap.String("driver", s.Driver))
	if s.connect == nil {
		return nil
	}
	return s.connect(ctx)
}

// Close releases the backend connection
func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Healthy reports whether the backend is reachable
func (s *Store) Healthy(ctx context.Context) bool {
	if s.healthy == nil {
		return true
	}
	return s.healthy(ctx)
}
