package database

import (
	"context"
	"fmt"
	"time"

	"bridge-flow-indexer/internal/domain/entity"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4JSyncStatusRepository implements SyncStatusRepository interface
type Neo4JSyncStatusRepository struct {
	client *Neo4JClient
}

// NewNeo4JSyncStatusRepository creates a new Neo4J checkpoint repository
func NewNeo4JSyncStatusRepository(client *Neo4JClient) *Neo4JSyncStatusRepository {
	return &Neo4JSyncStatusRepository{client: client}
}

// GetCheckpoint returns the checkpoint, zero when none was written yet
func (r *Neo4JSyncStatusRepository) GetCheckpoint(ctx context.Context) (*entity.SyncCheckpoint, error) {
	session := r.client.NewSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		res, err := mtx.Run(ctx, `
			MATCH (s:SyncStatus {id: $id})
			RETURN s.last_synced_block AS last_synced_block, s.updated_at AS updated_at`,
			map[string]any{"id": entity.SyncCheckpointID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		cp := &entity.SyncCheckpoint{ID: entity.SyncCheckpointID}
		if len(records) == 0 {
			return cp, nil
		}
		block, _, err := neo4j.GetRecordValue[int64](records[0], "last_synced_block")
		if err != nil {
			return nil, err
		}
		updatedAt, _, err := neo4j.GetRecordValue[time.Time](records[0], "updated_at")
		if err != nil {
			return nil, err
		}
		cp.LastSyncedBlock = uint64(block)
		cp.UpdatedAt = updatedAt
		return cp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read checkpoint: %w", entity.ErrStorage, err)
	}
	return result.(*entity.SyncCheckpoint), nil
}

// AdvanceCheckpoint moves the checkpoint forward; lower blocks leave it unchanged
func (r *Neo4JSyncStatusRepository) AdvanceCheckpoint(ctx context.Context, block uint64) error {
	session := r.client.NewSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		return mtx.Run(ctx, `
			MERGE (s:SyncStatus {id: $id})
			ON CREATE SET s.last_synced_block = $block
			ON MATCH SET s.last_synced_block =
				CASE WHEN s.last_synced_block < $block THEN $block ELSE s.last_synced_block END
			SET s.updated_at = $now`,
			map[string]any{
				"id":    entity.SyncCheckpointID,
				"block": int64(block),
				"now":   time.Now().UTC(),
			})
	})
	if err != nil {
		return fmt.Errorf("%w: advance checkpoint to %d: %w", entity.ErrStorage, block, err)
	}
	return nil
}
