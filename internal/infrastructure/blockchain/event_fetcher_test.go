package blockchain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/infrastructure/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func newTestFetcher(t *testing.T, ledger *fakeLedger) *EventFetcher {
	t.Helper()
	cfg := &config.EthereumConfig{BridgeAddress: testBridge.Hex(), TimestampConcurrency: 4}
	f, err := NewEventFetcher(cfg, ledger, mustDecoder(t), NewExactTimestampResolver(ledger, NewBlockTimestampCache()), testLogger(t))
	if err != nil {
		t.Fatalf("NewEventFetcher: %v", err)
	}
	return f
}

func TestFetchEventsScenario(t *testing.T) {
	d := mustDecoder(t)
	ledger := &fakeLedger{
		head: 150,
		logs: []types.Log{},
		times: map[uint64]uint64{
			120: 1_700_000_120,
			140: 1_700_000_140,
		},
	}
	ledger.logs = append(ledger.logs,
		mintBridgeTokensLog(t, d, 140, common.HexToHash("0x02"), addrC, big.NewInt(300)),
		bridgeTokensLog(t, d, 120, common.HexToHash("0x01"), addrA, addrB, big.NewInt(500)),
	)

	f := newTestFetcher(t, ledger)
	txs, err := f.FetchEvents(context.Background(), 100, 150)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}

	if txs[0].BlockNumber != 120 || txs[0].Type != entity.FlowTypeInflow || txs[0].Timestamp != 1_700_000_120 {
		t.Errorf("first tx = %+v", txs[0])
	}
	if txs[1].BlockNumber != 140 || txs[1].Type != entity.FlowTypeOutflow || txs[1].Timestamp != 1_700_000_140 {
		t.Errorf("second tx = %+v", txs[1])
	}

	q := ledger.queries[0]
	if q.FromBlock.Uint64() != 100 || q.ToBlock.Uint64() != 150 {
		t.Errorf("query range = %s-%s", q.FromBlock, q.ToBlock)
	}
	if len(q.Addresses) != 1 || q.Addresses[0] != testBridge {
		t.Errorf("query addresses = %v", q.Addresses)
	}
	if len(q.Topics) != 1 || len(q.Topics[0]) != 2 {
		t.Errorf("query topics = %v", q.Topics)
	}
}

func TestFetchEventsSkipsRemovedLogs(t *testing.T) {
	d := mustDecoder(t)
	lg := bridgeTokensLog(t, d, 10, common.HexToHash("0x01"), addrA, addrB, big.NewInt(1))
	lg.Removed = true
	ledger := &fakeLedger{logs: []types.Log{lg}, times: map[uint64]uint64{10: 10}}

	txs, err := newTestFetcher(t, ledger).FetchEvents(context.Background(), 0, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Errorf("got %d transactions, want 0", len(txs))
	}
}

func TestFetchEventsRPCFailure(t *testing.T) {
	ledger := &fakeLedger{filterErr: errors.New("connection refused")}
	_, err := newTestFetcher(t, ledger).FetchEvents(context.Background(), 0, 10)
	if !errors.Is(err, entity.ErrRPC) {
		t.Errorf("err = %v, want ErrRPC", err)
	}
}

func TestFetchEventsTimestampFailure(t *testing.T) {
	d := mustDecoder(t)
	ledger := &fakeLedger{
		logs:      []types.Log{bridgeTokensLog(t, d, 10, common.HexToHash("0x01"), addrA, addrB, big.NewInt(1))},
		headerErr: errors.New("timeout"),
	}
	txs, err := newTestFetcher(t, ledger).FetchEvents(context.Background(), 0, 10)
	if !errors.Is(err, entity.ErrRPC) {
		t.Errorf("err = %v, want ErrRPC", err)
	}
	if txs != nil {
		t.Error("partial results must not be returned")
	}
}

func TestFetchEventsInvalidRange(t *testing.T) {
	_, err := newTestFetcher(t, &fakeLedger{}).FetchEvents(context.Background(), 10, 9)
	if !errors.Is(err, entity.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestLatestBlock(t *testing.T) {
	head, err := newTestFetcher(t, &fakeLedger{head: 42}).LatestBlock(context.Background())
	if err != nil || head != 42 {
		t.Errorf("LatestBlock = %d, %v", head, err)
	}
}

func TestNewEventFetcherRejectsBadAddress(t *testing.T) {
	cfg := &config.EthereumConfig{BridgeAddress: "not-an-address"}
	if _, err := NewEventFetcher(cfg, &fakeLedger{}, mustDecoder(t), nil, testLogger(t)); err == nil {
		t.Error("expected error for invalid bridge address")
	}
}
