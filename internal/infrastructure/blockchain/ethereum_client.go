package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"bridge-flow-indexer/internal/infrastructure/config"
	"bridge-flow-indexer/internal/infrastructure/logger"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

var errNotConnected = errors.New("ethereum client not connected")

// LogFilterer is the subset of the ledger RPC used to pull bridge logs
type LogFilterer interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// HeaderReader is the subset of the ledger RPC used to resolve block times
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// EthereumClient provides blockchain interaction capabilities over JSON-RPC
type EthereumClient struct {
	client *ethclient.Client
	config *config.EthereumConfig
	logger *logger.Logger
}

// NewEthereumClient creates a new Ethereum client
func NewEthereumClient(cfg *config.EthereumConfig, logger *logger.Logger) *EthereumClient {
	return &EthereumClient{
		config: cfg,
		logger: logger.WithComponent("ethereum-client"),
	}
}

// Connect dials the RPC endpoint and checks it answers
func (ec *EthereumClient) Connect(ctx context.Context) error {
	ec.logger.Info("Connecting to ledger RPC", zap.String("rpc_url", ec.config.RPCURL))

	client, err := ethclient.DialContext(ctx, ec.config.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial ledger RPC: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to query chain id: %w", err)
	}

	ec.client = client
	ec.logger.Info("Connected to ledger RPC", zap.String("chain_id", chainID.String()))
	return nil
}

// Close closes the RPC connection
func (ec *EthereumClient) Close() {
	if ec.client != nil {
		ec.client.Close()
		ec.client = nil
	}
}

// BlockNumber returns the current chain head
func (ec *EthereumClient) BlockNumber(ctx context.Context) (uint64, error) {
	if ec.client == nil {
		return 0, errNotConnected
	}
	ctx, cancel := ec.withTimeout(ctx)
	defer cancel()
	return ec.client.BlockNumber(ctx)
}

// FilterLogs runs eth_getLogs
func (ec *EthereumClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if ec.client == nil {
		return nil, errNotConnected
	}
	ctx, cancel := ec.withTimeout(ctx)
	defer cancel()
	return ec.client.FilterLogs(ctx, q)
}

// HeaderByNumber returns the header of the given block
func (ec *EthereumClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if ec.client == nil {
		return nil, errNotConnected
	}
	ctx, cancel := ec.withTimeout(ctx)
	defer cancel()
	return ec.client.HeaderByNumber(ctx, number)
}

func (ec *EthereumClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ec.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ec.config.RequestTimeout)
}
