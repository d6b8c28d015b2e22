package database

import (
	"context"
	"os"
	"testing"

	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"go.uber.org/zap/zaptest"
)

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("Skipping Postgres test - set POSTGRES_TEST_URL to a disposable database")
	}

	ctx := context.Background()
	log := logger.New(zaptest.NewLogger(t))
	client := NewPostgresClient(&config.PostgresConfig{URL: url, MaxConns: 4}, log)
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close(ctx)

	for _, table := range []string{"transactions", "sync_status", "flow_time_series_realtime"} {
		if _, err := client.Pool().Exec(ctx, "TRUNCATE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}

	aggregator := service.NewFlowAggregator()
	runStoreContract(t,
		NewPostgresTransactionRepository(client, aggregator, log),
		NewPostgresSyncStatusRepository(client),
		NewPostgresTimeSeriesRepository(client))
}
