package api

import (
	"math/big"

	"bridge-flow-indexer/internal/domain/entity"

	"github.com/shopspring/decimal"
)

// tokenDecimals is the fixed-point scale of bridged token amounts
const tokenDecimals = 18

type response struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
	Result     any         `json:"result,omitempty"`
}

type pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"hasMore"`
}

type transactionDTO struct {
	ID          string `json:"id"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Amount      string `json:"amount"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
	BlockNumber uint64 `json:"blockNumber"`
}

type pointDTO struct {
	Time    int64  `json:"time"`
	Inflow  string `json:"inflow"`
	Outflow string `json:"outflow"`
}

type syncResultDTO struct {
	RunID                string `json:"runId"`
	FromBlock            uint64 `json:"fromBlock"`
	ToBlock              uint64 `json:"toBlock"`
	UpToDate             bool   `json:"upToDate"`
	Windows              int    `json:"windows"`
	TransactionsFound    int    `json:"transactionsFound"`
	TransactionsInserted int    `json:"transactionsInserted"`
	LastSyncedBlock      uint64 `json:"lastSyncedBlock"`
}

type syncStatusDTO struct {
	LastSyncedBlock uint64 `json:"lastSyncedBlock"`
	UpdatedAt       int64  `json:"updatedAt"`
	Running         bool   `json:"running"`
}

// formatAmount renders a base-unit value as a decimal token amount
func formatAmount(value string) string {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return ""
	}
	return decimal.NewFromBigInt(v, -tokenDecimals).String()
}

func toTransactionDTO(tx *entity.Transaction) transactionDTO {
	return transactionDTO{
		ID:          tx.ID(),
		Hash:        tx.Hash,
		From:        tx.From,
		To:          tx.To,
		Value:       tx.Value,
		Amount:      formatAmount(tx.Value),
		Timestamp:   tx.Timestamp,
		Type:        string(tx.Type),
		BlockNumber: tx.BlockNumber,
	}
}

func toTransactionDTOs(txs []*entity.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionDTO(tx))
	}
	return out
}

func toPointDTOs(points []entity.TimeSeriesPoint) []pointDTO {
	out := make([]pointDTO, 0, len(points))
	for _, p := range points {
		out = append(out, pointDTO{
			Time:    p.Time,
			Inflow:  bigString(p.Inflow),
			Outflow: bigString(p.Outflow),
		})
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toSyncResultDTO(r *entity.SyncResult) *syncResultDTO {
	if r == nil {
		return nil
	}
	return &syncResultDTO{
		RunID:                r.RunID,
		FromBlock:            r.FromBlock,
		ToBlock:              r.ToBlock,
		UpToDate:             r.UpToDate,
		Windows:              r.Windows,
		TransactionsFound:    r.TransactionsFound,
		TransactionsInserted: r.TransactionsInserted,
		LastSyncedBlock:      r.LastSyncedBlock,
	}
}
