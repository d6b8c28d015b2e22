package database

import (
	"context"
	"fmt"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/repository"
	"bridge-flow-indexer/internal/domain/service"
	"bridge-flow-indexer/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4JTransactionRepository implements TransactionRepository interface
type Neo4JTransactionRepository struct {
	client     *Neo4JClient
	aggregator *service.FlowAggregator
	logger     *logger.Logger
}

// NewNeo4JTransactionRepository creates a new Neo4J transaction repository
func NewNeo4JTransactionRepository(client *Neo4JClient, aggregator *service.FlowAggregator, logger *logger.Logger) *Neo4JTransactionRepository {
	return &Neo4JTransactionRepository{
		client:     client,
		aggregator: aggregator,
		logger:     logger.WithComponent("neo4j-transaction-repo"),
	}
}

const transactionReturn = `
	RETURN t.hash AS hash, t.from_address AS from_address, t.to_address AS to_address,
		t.value AS value, t.timestamp AS timestamp, t.type AS type, t.block_number AS block_number`

// UpsertMany creates unknown transactions and merges exactly those into the
// flow buckets inside one write transaction.
func (r *Neo4JTransactionRepository) UpsertMany(ctx context.Context, transactions []*entity.Transaction) ([]*entity.Transaction, error) {
	if len(transactions) == 0 {
		return nil, nil
	}

	session := r.client.NewSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	hashes := make([]string, 0, len(transactions))
	for _, tx := range transactions {
		hashes = append(hashes, tx.Hash)
	}

	result, err := session.ExecuteWrite(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		existing, err := r.existingHashes(ctx, mtx, hashes)
		if err != nil {
			return nil, err
		}

		fresh := make([]*entity.Transaction, 0, len(transactions))
		for _, tx := range transactions {
			if _, ok := existing[tx.Hash]; ok {
				continue
			}
			existing[tx.Hash] = struct{}{}
			fresh = append(fresh, tx)
		}
		if len(fresh) == 0 {
			return fresh, nil
		}

		deltas, err := r.aggregator.Fold(fresh, time.Now().UTC())
		if err != nil {
			return nil, err
		}

		if err := r.createTransactions(ctx, mtx, fresh); err != nil {
			return nil, err
		}
		if err := mergeBuckets(ctx, mtx, deltas); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upsert transactions: %w", entity.ErrStorage, err)
	}

	fresh := result.([]*entity.Transaction)
	r.logger.Debug("Upserted transactions",
		zap.Int("received", len(transactions)),
		zap.Int("inserted", len(fresh)))
	return fresh, nil
}

func (r *Neo4JTransactionRepository) existingHashes(ctx context.Context, mtx neo4j.ManagedTransaction, hashes []string) (map[string]struct{}, error) {
	res, err := mtx.Run(ctx, `
		UNWIND $hashes AS h
		MATCH (t:BridgeTransaction {hash: h})
		RETURN t.hash AS hash`, map[string]any{"hashes": hashes})
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(records))
	for _, rec := range records {
		hash, _, err := neo4j.GetRecordValue[string](rec, "hash")
		if err != nil {
			return nil, err
		}
		existing[hash] = struct{}{}
	}
	return existing, nil
}

func (r *Neo4JTransactionRepository) createTransactions(ctx context.Context, mtx neo4j.ManagedTransaction, txs []*entity.Transaction) error {
	rows := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, map[string]any{
			"hash":         tx.Hash,
			"from_address": tx.From,
			"to_address":   tx.To,
			"value":        tx.Value,
			"timestamp":    tx.Timestamp,
			"type":         string(tx.Type),
			"block_number": int64(tx.BlockNumber),
		})
	}

	_, err := mtx.Run(ctx, `
		UNWIND $transactions AS tx
		MERGE (t:BridgeTransaction {hash: tx.hash})
		ON CREATE SET
			t.from_address = tx.from_address,
			t.to_address = tx.to_address,
			t.value = tx.value,
			t.timestamp = tx.timestamp,
			t.type = tx.type,
			t.block_number = tx.block_number`,
		map[string]any{"transactions": rows})
	return err
}

// ListPage returns transactions ordered by timestamp descending
func (r *Neo4JTransactionRepository) ListPage(ctx context.Context, page, limit int) (*entity.TransactionPage, error) {
	offset, limit, err := pageBounds(page, limit)
	if err != nil {
		return nil, err
	}

	txs, err := r.readTransactions(ctx, `
		MATCH (t:BridgeTransaction)`+transactionReturn+`
		ORDER BY timestamp DESC, hash ASC
		SKIP $skip LIMIT $limit`,
		map[string]any{"skip": offset, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %w", entity.ErrStorage, err)
	}
	return newPage(txs, page, limit), nil
}

// GetByAddress returns transactions sent from or to the address
func (r *Neo4JTransactionRepository) GetByAddress(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	var flowType any
	if filter.Type != nil {
		flowType = string(*filter.Type)
	}

	txs, err := r.readTransactions(ctx, `
		MATCH (t:BridgeTransaction)
		WHERE (t.from_address = $address OR t.to_address = $address)
			AND ($type IS NULL OR t.type = $type)`+transactionReturn+`
		ORDER BY timestamp DESC, hash ASC
		SKIP $skip LIMIT $limit`,
		map[string]any{
			"address": filter.Address,
			"type":    flowType,
			"skip":    filter.Offset,
			"limit":   filter.Limit,
		})
	if err != nil {
		return nil, fmt.Errorf("%w: transactions of %s: %w", entity.ErrStorage, filter.Address, err)
	}
	return txs, nil
}

func (r *Neo4JTransactionRepository) readTransactions(ctx context.Context, query string, params map[string]any) ([]*entity.Transaction, error) {
	session := r.client.NewSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		res, err := mtx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		txs := make([]*entity.Transaction, 0, len(records))
		for _, rec := range records {
			tx, err := transactionFromRecord(rec)
			if err != nil {
				return nil, err
			}
			txs = append(txs, tx)
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*entity.Transaction), nil
}

func transactionFromRecord(rec *neo4j.Record) (*entity.Transaction, error) {
	hash, _, err := neo4j.GetRecordValue[string](rec, "hash")
	if err != nil {
		return nil, err
	}
	from, _, err := neo4j.GetRecordValue[string](rec, "from_address")
	if err != nil {
		return nil, err
	}
	to, _, err := neo4j.GetRecordValue[string](rec, "to_address")
	if err != nil {
		return nil, err
	}
	value, _, err := neo4j.GetRecordValue[string](rec, "value")
	if err != nil {
		return nil, err
	}
	timestamp, _, err := neo4j.GetRecordValue[int64](rec, "timestamp")
	if err != nil {
		return nil, err
	}
	flowType, _, err := neo4j.GetRecordValue[string](rec, "type")
	if err != nil {
		return nil, err
	}
	block, _, err := neo4j.GetRecordValue[int64](rec, "block_number")
	if err != nil {
		return nil, err
	}

	return &entity.Transaction{
		Hash:        hash,
		From:        from,
		To:          to,
		Value:       value,
		Timestamp:   timestamp,
		Type:        entity.FlowType(flowType),
		BlockNumber: uint64(block),
	}, nil
}
