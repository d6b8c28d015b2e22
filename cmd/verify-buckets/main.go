package main

import (
	"context"
	"fmt"
	"os"
	"time"

	app_service "bridge-flow-indexer/internal/application/service"
	domain_service "bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/database"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// verify-buckets recomputes the flow buckets from the stored transactions and
// reports every bucket that drifted. Stop the indexer before running it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	log = log.WithComponent("verify-buckets")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	aggregator := domain_service.NewFlowAggregator()
	store, err := database.NewStore(cfg, aggregator, log)
	if err != nil {
		log.Fatal("Failed to build store", zap.Error(err))
	}
	if err := store.Connect(ctx); err != nil {
		log.Fatal("Failed to connect to store", zap.Error(err))
	}
	defer store.Close(ctx)

	verifier := app_service.NewBucketVerifier(store.Transactions, store.TimeSeries, aggregator, log)
	mismatches, err := verifier.Verify(ctx)
	if err != nil {
		log.Fatal("Verification failed", zap.Error(err))
	}

	for _, m := range mismatches {
		log.Warn("Bucket drift",
			zap.String("period_type", string(m.Key.PeriodType)),
			zap.Int64("period_id", m.Key.PeriodID),
			zap.String("stored_inflow", m.StoredInflow.String()),
			zap.String("expected_inflow", m.ExpectedInflow.String()),
			zap.String("stored_outflow", m.StoredOutflow.String()),
			zap.String("expected_outflow", m.ExpectedOutflow.String()))
	}
	if len(mismatches) > 0 {
		store.Close(ctx)
		os.Exit(2)
	}
	log.Info("All buckets match their transactions")
}
