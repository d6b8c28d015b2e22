package messaging

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap/zaptest"
)

func TestDisabledBusIsNoop(t *testing.T) {
	bus := NewNATSBus(&config.NATSConfig{Enabled: false}, logger.New(zaptest.NewLogger(t)))
	ctx := context.Background()

	if err := bus.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := bus.PublishTransactions(ctx, "run", []*entity.Transaction{{Hash: "0x1"}}); err != nil {
		t.Errorf("publish on disabled bus: %v", err)
	}
	if err := bus.SubscribeTriggers(func() { t.Error("trigger on disabled bus") }); err != nil {
		t.Errorf("subscribe on disabled bus: %v", err)
	}
	if bus.IsConnected() {
		t.Error("disabled bus reports connected")
	}
	if err := bus.Disconnect(); err != nil {
		t.Error(err)
	}
}

func TestBusRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("Skipping NATS test - set NATS_TEST_URL")
	}

	cfg := &config.NATSConfig{
		Enabled:            true,
		URL:                url,
		TransactionSubject: "test.bridge.transactions",
		TriggerSubject:     "test.bridge.sync.trigger",
		ConnectTimeout:     5 * time.Second,
		ReconnectDelay:     time.Second,
		ReconnectAttempts:  1,
	}
	bus := NewNATSBus(cfg, logger.New(zaptest.NewLogger(t)))
	ctx := context.Background()
	if err := bus.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer bus.Disconnect()

	watcher, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	msgs := make(chan *nats.Msg, 4)
	sub, err := watcher.ChanSubscribe(cfg.TransactionSubject, msgs)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	watcher.Flush()

	tx := &entity.Transaction{Hash: "0xabc", Value: "5", Type: entity.FlowTypeInflow, BlockNumber: 7}
	if err := bus.PublishTransactions(ctx, "run-1", []*entity.Transaction{tx}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		var got TransactionMessage
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got.RunID != "run-1" || got.Hash != "0xabc" || got.BlockNumber != 7 {
			t.Errorf("message = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transaction message received")
	}

	triggered := make(chan struct{}, 1)
	if err := bus.SubscribeTriggers(func() { triggered <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	reply, err := watcher.Request(cfg.TriggerSubject, nil, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply.Data) != "accepted" {
		t.Errorf("reply = %q", reply.Data)
	}
	<-triggered
}
