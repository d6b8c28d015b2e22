package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app_service "bridge-flow-indexer/internal/application/service"
	"bridge-flow-indexer/internal/domain/repository"
	domain_service "bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/handlers/api"
	"bridge-flow-indexer/internal/infrastructure/blockchain"
	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/database"
	"bridge-flow-indexer/internal/infrastructure/logger"
	"bridge-flow-indexer/internal/infrastructure/messaging"
	"bridge-flow-indexer/internal/infrastructure/metrics"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Create FX application
	app := fx.New(
		// Provide dependencies
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.Ethereum),
		fx.Supply(&cfg.NATS),
		fx.Provide(func() *zap.Logger { return log.Logger }),

		// Storage providers
		fx.Provide(
			domain_service.NewFlowAggregator,
			database.NewStore,
			func(s *database.Store) repository.TransactionRepository { return s.Transactions },
			func(s *database.Store) repository.SyncStatusRepository { return s.SyncStatus },
			func(s *database.Store) repository.TimeSeriesRepository { return s.TimeSeries },
			func(s *database.Store) api.HealthChecker { return s },
		),

		// Ledger providers
		fx.Provide(
			blockchain.NewEthereumClient,
			func(c *blockchain.EthereumClient) blockchain.LogFilterer { return c },
			func(c *blockchain.EthereumClient) blockchain.HeaderReader { return c },
			blockchain.NewBlockTimestampCache,
			blockchain.NewTimestampResolver,
			func(cfg *config.EthereumConfig) (*blockchain.BridgeDecoder, error) {
				return blockchain.NewBridgeDecoder(cfg.BridgeABI)
			},
			fx.Annotate(blockchain.NewEventFetcher, fx.As(new(domain_service.EventSource))),
		),

		// Messaging and metrics
		fx.Provide(
			messaging.NewNATSBus,
			func(bus *messaging.NATSBus) domain_service.TransactionPublisher { return bus },
			metrics.NewMetrics,
		),

		// Application providers
		fx.Provide(
			newSyncCoordinator,
			func(c *app_service.SyncCoordinator) domain_service.SyncService { return c },
			fx.Annotate(app_service.NewTimeSeriesAppService, fx.As(new(domain_service.TimeSeriesService))),
			fx.Annotate(app_service.NewTransactionAppService, fx.As(new(domain_service.TransactionService))),
			func(cfg *config.Config, syncService domain_service.SyncService, log *logger.Logger) *app_service.SyncScheduler {
				return app_service.NewSyncScheduler(syncService, cfg.Sync.Interval, cfg.Sync.RunOnStart, log)
			},
			api.NewServer,
		),

		// Lifecycle hooks
		fx.Invoke(startInfrastructure),
		fx.Invoke(startSync),
		fx.Invoke(startAPIServer),
		fx.Invoke(startMetricsServer),

		// Configure logging
		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	// Start the application
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	// Stop the application
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}

func newSyncCoordinator(
	cfg *config.Config,
	source domain_service.EventSource,
	txRepo repository.TransactionRepository,
	statusRepo repository.SyncStatusRepository,
	publisher domain_service.TransactionPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
) *app_service.SyncCoordinator {
	return app_service.NewSyncCoordinator(source, txRepo, statusRepo, publisher, m, app_service.SyncOptions{
		DeployBlock:   cfg.Ethereum.DeployBlock,
		BatchSize:     cfg.Sync.BatchSize,
		WindowTimeout: cfg.Sync.WindowTimeout,
		HeadTimeout:   cfg.Ethereum.RequestTimeout,
	}, log)
}

// startInfrastructure opens the store, the ledger client and NATS
func startInfrastructure(
	lifecycle fx.Lifecycle,
	store *database.Store,
	ethClient *blockchain.EthereumClient,
	bus *messaging.NATSBus,
	log *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Connecting to store", zap.String("driver", store.Driver))
			if err := store.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to store: %w", err)
			}

			if err := ethClient.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to ledger: %w", err)
			}

			if err := bus.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := bus.Disconnect(); err != nil {
				log.Error("Failed to disconnect from NATS", zap.Error(err))
			}
			ethClient.Close()
			if err := store.Close(ctx); err != nil {
				log.Error("Failed to close store", zap.Error(err))
			}
			return nil
		},
	})
}

// startSync starts the scheduler and routes NATS triggers to it
func startSync(
	lifecycle fx.Lifecycle,
	cfg *config.Config,
	scheduler *app_service.SyncScheduler,
	bus *messaging.NATSBus,
	log *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Sync.Enabled {
				log.Info("Scheduled sync is disabled, runs only on demand")
				return nil
			}
			if err := bus.SubscribeTriggers(scheduler.Trigger); err != nil {
				return fmt.Errorf("failed to subscribe to sync triggers: %w", err)
			}
			scheduler.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Stop()
			return nil
		},
	})
}

// startAPIServer starts the HTTP API
func startAPIServer(lifecycle fx.Lifecycle, server *api.Server) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			server.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
}

// startMetricsServer exposes Prometheus metrics on their own port
func startMetricsServer(
	lifecycle fx.Lifecycle,
	cfg *config.Config,
	m *metrics.Metrics,
	log *zap.Logger,
) {
	if !cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting metrics server", zap.Int("port", cfg.Metrics.Port))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Metrics server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
