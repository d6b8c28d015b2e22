package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/logger"
	"bridge-flow-indexer/internal/infrastructure/metrics"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Query defaults
const (
	defaultListLimit    = 20
	defaultAddressLimit = 100
)

// HealthChecker reports whether the storage backend is reachable
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Server exposes the read API and the manual sync trigger
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	timeSeries   service.TimeSeriesService
	transactions service.TransactionService
	syncer       service.SyncService
	health       HealthChecker
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

// NewServer creates the HTTP server and registers its routes
func NewServer(
	cfg *config.Config,
	timeSeries service.TimeSeriesService,
	transactions service.TransactionService,
	syncer service.SyncService,
	health HealthChecker,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		timeSeries:   timeSeries,
		transactions: transactions,
		syncer:       syncer,
		health:       health,
		metrics:      metrics,
		logger:       logger.WithComponent("http-server"),
	}
	s.routes(cfg.API.BasePath)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}
	return s
}

func (s *Server) routes(basePath string) {
	s.router.Use(s.instrument)

	r := s.router
	if basePath != "" {
		r = s.router.PathPrefix(basePath).Subrouter()
	}
	r.HandleFunc("/time-series", s.handleTimeSeries).Methods(http.MethodGet)
	r.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{address}", s.handleAddressTransactions).Methods(http.MethodGet)
	r.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/sync/status", s.handleSyncStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if s.health != nil && !s.health.Healthy(ctx) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	points, err := s.timeSeries.Query(r.Context(), period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: toPointDTOs(points)})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(q.Get("limit"), defaultListLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.transactions.ListTransactions(r.Context(), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data:    toTransactionDTOs(result.Transactions),
		Pagination: &pagination{
			Page:    result.Page,
			Limit:   result.Limit,
			HasMore: result.HasMore,
		},
	})
}

func (s *Server) handleAddressTransactions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	q := r.URL.Query()

	var flowType *entity.FlowType
	if raw := q.Get("type"); raw != "" {
		ft, err := entity.ParseFlowType(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		flowType = &ft
	}
	limit, err := intParam(q.Get("limit"), defaultAddressLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	txs, err := s.transactions.GetTransactionsByAddress(r.Context(), address, flowType, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: toTransactionDTOs(txs)})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncer.RunOnce(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	message := "Sync completed"
	if result.UpToDate {
		message = "Already up to date"
	}
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: message,
		Result:  toSyncResultDTO(result),
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.syncer.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dto := syncStatusDTO{
		LastSyncedBlock: status.LastSyncedBlock,
		Running:         status.Running,
	}
	if !status.UpdatedAt.IsZero() {
		dto.UpdatedAt = status.UpdatedAt.Unix()
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: dto})
}

// writeError maps domain errors onto status codes
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entity.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, entity.ErrSyncInProgress):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, response{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", entity.ErrValidation, raw)
	}
	return v, nil
}

// instrument records request metrics labeled by route template
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		s.metrics.ObserveHTTP(r.Method, path, ww.status, time.Since(start))
	})
}

// responseWriter captures status code for Prometheus labeling.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
