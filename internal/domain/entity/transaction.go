package entity

import (
	"fmt"
	"math/big"
	"time"
)

// ZeroAddress is used as the sender of minted (outflow) transfers
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// FlowType is the direction of a bridge transfer relative to the tracked network
type FlowType string

const (
	FlowTypeInflow  FlowType = "inflow"
	FlowTypeOutflow FlowType = "outflow"
)

// ParseFlowType parses a flow type query value
func ParseFlowType(s string) (FlowType, error) {
	switch FlowType(s) {
	case FlowTypeInflow, FlowTypeOutflow:
		return FlowType(s), nil
	}
	return "", fmt.Errorf("%w: unknown flow type %q", ErrValidation, s)
}

// Transaction represents a normalized bridge event
type Transaction struct {
	Hash        string   `json:"hash"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Value       string   `json:"value"`
	Timestamp   int64    `json:"timestamp"`
	Type        FlowType `json:"type"`
	BlockNumber uint64   `json:"block_number"`
}

// ID returns the primary key of the transaction
func (t *Transaction) ID() string {
	return t.Hash
}

// Amount parses Value as a base-10 integer
func (t *Transaction) Amount() (*big.Int, error) {
	v, ok := new(big.Int).SetString(t.Value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: transaction %s has invalid value %q", ErrValidation, t.Hash, t.Value)
	}
	return v, nil
}

// TransactionPage is one page of the transaction listing
type TransactionPage struct {
	Transactions []*Transaction `json:"transactions"`
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
	HasMore      bool           `json:"has_more"`
}

// SyncCheckpointID is the fixed key of the checkpoint record
const SyncCheckpointID = "bridge_sync"

// SyncCheckpoint records the highest block fully synced and aggregated
type SyncCheckpoint struct {
	ID              string    `json:"id"`
	LastSyncedBlock uint64    `json:"last_synced_block"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SyncResult summarizes one coordinator run
type SyncResult struct {
	RunID                string `json:"run_id"`
	FromBlock            uint64 `json:"from_block"`
	ToBlock              uint64 `json:"to_block"`
	UpToDate             bool   `json:"up_to_date"`
	Windows              int    `json:"windows"`
	TransactionsFound    int    `json:"transactions_found"`
	TransactionsInserted int    `json:"transactions_inserted"`
	LastSyncedBlock      uint64 `json:"last_synced_block"`
}

// SyncStatus is the externally visible state of the sync engine
type SyncStatus struct {
	LastSyncedBlock uint64    `json:"last_synced_block"`
	UpdatedAt       time.Time `json:"updated_at"`
	Running         bool      `json:"running"`
}
