package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	domain_service "bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/database"
)

func TestQueryEmpty24h(t *testing.T) {
	store := database.NewMemoryStore(domain_service.NewFlowAggregator())
	svc := NewTimeSeriesAppService(store, testLogger(t))
	now := time.Unix(hourStart+1800, 0)
	svc.now = func() time.Time { return now }

	points, err := svc.Query(context.Background(), "24h")
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 24 {
		t.Fatalf("len = %d, want 24", len(points))
	}
	if points[23].Time != hourStart {
		t.Errorf("last point = %d, want current hour %d", points[23].Time, hourStart)
	}
	for i, p := range points {
		if p.Inflow.Sign() != 0 || p.Outflow.Sign() != 0 {
			t.Errorf("point %d not zero: %s/%s", i, p.Inflow, p.Outflow)
		}
		if i > 0 && p.Time-points[i-1].Time != 3600 {
			t.Errorf("points %d and %d are %d s apart", i-1, i, p.Time-points[i-1].Time)
		}
	}
}

func TestQueryFillsStoredBuckets(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore(domain_service.NewFlowAggregator())
	_, err := store.UpsertMany(ctx, []*entity.Transaction{
		{Hash: "0x1", From: sender, To: recipient, Value: "1000000000000000000000000", Timestamp: hourStart + 5, Type: entity.FlowTypeInflow},
		{Hash: "0x2", From: entity.ZeroAddress, To: recipient, Value: "42", Timestamp: hourStart - 3600, Type: entity.FlowTypeOutflow},
		// outside the 24h range
		{Hash: "0x3", From: sender, To: recipient, Value: "9", Timestamp: hourStart - 48*3600, Type: entity.FlowTypeInflow},
	})
	if err != nil {
		t.Fatal(err)
	}

	svc := NewTimeSeriesAppService(store, testLogger(t))
	svc.now = func() time.Time { return time.Unix(hourStart+60, 0) }

	points, err := svc.Query(ctx, "24h")
	if err != nil {
		t.Fatal(err)
	}
	if got := points[23].Inflow.String(); got != "1000000000000000000000000" {
		t.Errorf("current hour inflow = %s", got)
	}
	if got := points[22].Outflow.String(); got != "42" {
		t.Errorf("previous hour outflow = %s", got)
	}
	for i := 0; i < 22; i++ {
		if points[i].Inflow.Sign() != 0 {
			t.Errorf("point %d inflow = %s, want 0", i, points[i].Inflow)
		}
	}
}

func TestQueryPeriodShapes(t *testing.T) {
	store := database.NewMemoryStore(domain_service.NewFlowAggregator())
	svc := NewTimeSeriesAppService(store, testLogger(t))
	now := time.Unix(1747382512, 0)
	svc.now = func() time.Time { return now }

	tests := []struct {
		period string
		points int
		step   int64
	}{
		{"24h", 24, 3600},
		{"7d", 7, 86400},
		{"30d", 30, 86400},
		{"1y", 12, 2592000},
	}
	for _, tt := range tests {
		points, err := svc.Query(context.Background(), tt.period)
		if err != nil {
			t.Fatalf("%s: %v", tt.period, err)
		}
		if len(points) != tt.points {
			t.Errorf("%s: %d points, want %d", tt.period, len(points), tt.points)
		}
		last := points[len(points)-1].Time
		if last > now.Unix() || now.Unix()-last >= tt.step {
			t.Errorf("%s: last point %d does not contain now", tt.period, last)
		}
		if last%tt.step != 0 {
			t.Errorf("%s: last point %d not aligned to %d", tt.period, last, tt.step)
		}
	}
}

func TestQueryUnknownPeriod(t *testing.T) {
	store := database.NewMemoryStore(domain_service.NewFlowAggregator())
	svc := NewTimeSeriesAppService(store, testLogger(t))
	if _, err := svc.Query(context.Background(), "2w"); !errors.Is(err, entity.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}
