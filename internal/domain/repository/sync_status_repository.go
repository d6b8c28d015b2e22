package repository

import (
	"context"

	"bridge-flow-indexer/internal/domain/entity"
)

// SyncStatusRepository persists the sync checkpoint
type SyncStatusRepository interface {
	// GetCheckpoint returns the checkpoint, or a zero checkpoint when none exists
	GetCheckpoint(ctx context.Context) (*entity.SyncCheckpoint, error)

	// AdvanceCheckpoint moves the checkpoint forward to block. Lower values are ignored.
	AdvanceCheckpoint(ctx context.Context, block uint64) error
}
