package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRun(ResultSuccess, time.Second)
	m.ObserveWindow(ResultFailure, 3)
	m.SetCheckpoint(10)
	m.SetChainHead(11)
	m.ObserveSkippedRun()
	m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.ObserveRun(ResultSuccess, 2*time.Second)
	m.ObserveRun(ResultFailure, time.Second)
	m.ObserveSkippedRun()
	m.ObserveSkippedRun()
	m.ObserveWindow(ResultSuccess, 4)
	m.ObserveWindow(ResultSuccess, 1)
	m.SetCheckpoint(150)
	m.ObserveHTTP("GET", "/transactions", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.syncRuns.WithLabelValues(ResultSuccess)); got != 1 {
		t.Errorf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(m.syncRuns.WithLabelValues(ResultSkipped)); got != 2 {
		t.Errorf("skipped runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.transactionsInserted); got != 5 {
		t.Errorf("inserted = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.lastSyncedBlock); got != 150 {
		t.Errorf("checkpoint gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/transactions", "4xx")); got != 1 {
		t.Errorf("4xx requests = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bridge_last_synced_block 150") {
		t.Errorf("exposition missing checkpoint gauge")
	}
}
