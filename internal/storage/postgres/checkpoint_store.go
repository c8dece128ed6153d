package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Ticoworld/savercoin/internal/storage"
)

// checkpointKey is the sync_state row holding the next block to request.
const checkpointKey = "lastBlock"

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetCheckpoint returns the stored block. Returns ErrNotFound if none saved yet.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context) (_ uint64, err error) {
	defer func(start time.Time) { observe("checkpoint_get", start, err) }(time.Now())

	var block int64
	err = s.pool.QueryRow(ctx, `SELECT value FROM sync_state WHERE key = $1`, checkpointKey).Scan(&block)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get checkpoint: %w", err)
	}
	return uint64(block), nil
}

// SetCheckpoint upserts the checkpoint row.
func (s *CheckpointStore) SetCheckpoint(ctx context.Context, block uint64) (err error) {
	defer func(start time.Time) { observe("checkpoint_set", start, err) }(time.Now())

	query := `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err = s.pool.Exec(ctx, query, checkpointKey, int64(block)); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
