package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// TransactionMessage is the payload published for every freshly stored transaction
type TransactionMessage struct {
	RunID       string          `json:"run_id"`
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       string          `json:"value"`
	Timestamp   int64           `json:"timestamp"`
	Type        entity.FlowType `json:"type"`
	BlockNumber uint64          `json:"block_number"`
}

// NATSBus publishes fresh transactions and listens for sync triggers.
// With NATS disabled every method is a no-op.
type NATSBus struct {
	mu     sync.RWMutex
	conn   *nats.Conn
	sub    *nats.Subscription
	config *config.NATSConfig
	logger *logger.Logger
}

// NewNATSBus creates a new NATS bus
func NewNATSBus(cfg *config.NATSConfig, logger *logger.Logger) *NATSBus {
	return &NATSBus{
		config: cfg,
		logger: logger.WithComponent("nats-bus"),
	}
}

var _ service.TransactionPublisher = (*NATSBus)(nil)

// Connect connects to the NATS server
func (n *NATSBus) Connect(ctx context.Context) error {
	if !n.config.Enabled {
		n.logger.Info("NATS is disabled, skipping connection")
		return nil
	}

	n.logger.Info("Connecting to NATS server", zap.String("url", n.config.URL))

	opts := []nats.Option{
		nats.Name("bridge-flow-indexer"),
		nats.Timeout(n.config.ConnectTimeout),
		nats.ReconnectWait(n.config.ReconnectDelay),
		nats.MaxReconnects(n.config.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.logger.Error("Failed to connect to NATS", zap.Error(err))
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	return nil
}

// PublishTransactions publishes one message per transaction on the transaction subject
func (n *NATSBus) PublishTransactions(ctx context.Context, runID string, transactions []*entity.Transaction) error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn == nil {
		return nil
	}

	for _, tx := range transactions {
		data, err := json.Marshal(TransactionMessage{
			RunID:       runID,
			Hash:        tx.Hash,
			From:        tx.From,
			To:          tx.To,
			Value:       tx.Value,
			Timestamp:   tx.Timestamp,
			Type:        tx.Type,
			BlockNumber: tx.BlockNumber,
		})
		if err != nil {
			return fmt.Errorf("marshal transaction %s: %w", tx.Hash, err)
		}
		if err := conn.Publish(n.config.TransactionSubject, data); err != nil {
			return fmt.Errorf("publish transaction %s: %w", tx.Hash, err)
		}
	}

	n.logger.Debug("Published transactions",
		zap.String("subject", n.config.TransactionSubject),
		zap.Int("count", len(transactions)))
	return conn.FlushWithContext(ctx)
}

// SubscribeTriggers calls onTrigger for every message on the trigger subject.
// Requests carrying a reply subject are answered with "accepted".
func (n *NATSBus) SubscribeTriggers(onTrigger func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}

	sub, err := n.conn.Subscribe(n.config.TriggerSubject, func(msg *nats.Msg) {
		n.logger.Info("Sync trigger received", zap.String("subject", msg.Subject))
		onTrigger()
		if msg.Reply != "" {
			if err := msg.Respond([]byte("accepted")); err != nil {
				n.logger.Warn("Failed to answer trigger", zap.Error(err))
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	n.sub = sub

	n.logger.Info("Listening for sync triggers", zap.String("subject", n.config.TriggerSubject))
	return nil
}

// Disconnect drains the subscription and closes the connection
func (n *NATSBus) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sub != nil {
		n.sub.Unsubscribe()
		n.sub = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
		n.logger.Info("Disconnected from NATS")
	}
	return nil
}

// IsConnected checks if connected to NATS
func (n *NATSBus) IsConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil && n.conn.IsConnected()
}
