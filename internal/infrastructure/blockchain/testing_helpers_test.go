package blockchain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"bridge-flow-indexer/internal/infrastructure/logger"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap/zaptest"
)

var (
	testBridge = common.HexToAddress("0xa8baad3115A133B101EF935Cb2e198FD04F1C659")
	addrA      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrB      = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	addrC      = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func testLogger(t *testing.T) *logger.Logger {
	return logger.New(zaptest.NewLogger(t))
}

func mustDecoder(t *testing.T) *BridgeDecoder {
	t.Helper()
	d, err := NewBridgeDecoder("")
	if err != nil {
		t.Fatalf("NewBridgeDecoder: %v", err)
	}
	return d
}

func bridgeTokensLog(t *testing.T, d *BridgeDecoder, block uint64, txHash common.Hash, sender, recipient common.Address, amount *big.Int) types.Log {
	t.Helper()
	ev := d.abi.Events[EventBridgeTokens]
	data, err := ev.Inputs.NonIndexed().Pack(common.HexToAddress("0x01"), sender, recipient, amount)
	if err != nil {
		t.Fatalf("pack BridgeTokens: %v", err)
	}
	return types.Log{
		Address:     testBridge,
		Topics:      []common.Hash{ev.ID, common.HexToHash("0x02"), common.HexToHash("0x03"), common.HexToHash("0x04")},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
	}
}

func mintBridgeTokensLog(t *testing.T, d *BridgeDecoder, block uint64, txHash common.Hash, recipient common.Address, amount *big.Int) types.Log {
	t.Helper()
	ev := d.abi.Events[EventMintBridgeTokens]
	data, err := ev.Inputs.NonIndexed().Pack(recipient, amount)
	if err != nil {
		t.Fatalf("pack MintBridgeTokens: %v", err)
	}
	return types.Log{
		Address:     testBridge,
		Topics:      []common.Hash{ev.ID, common.HexToHash("0x05")},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
	}
}

type fakeLedger struct {
	mu          sync.Mutex
	head        uint64
	logs        []types.Log
	times       map[uint64]uint64
	filterErr   error
	headerErr   error
	headerCalls atomic.Int64
	queries     []ethereum.FilterQuery
}

func (f *fakeLedger) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeLedger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= q.FromBlock.Uint64() && lg.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (f *fakeLedger) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.headerCalls.Add(1)
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	ts, ok := f.times[number.Uint64()]
	if !ok {
		return nil, errors.New("not found")
	}
	return &types.Header{Number: number, Time: ts}, nil
}
