package memory

import (
	"context"
	"sync"

	"github.com/Ticoworld/savercoin/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu    sync.RWMutex
	block uint64
	set   bool
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

// GetCheckpoint returns the stored block. Returns ErrNotFound if none saved yet.
func (s *CheckpointStore) GetCheckpoint(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.set {
		return 0, storage.ErrNotFound
	}
	return s.block, nil
}

// SetCheckpoint saves the next block to request.
func (s *CheckpointStore) SetCheckpoint(_ context.Context, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.block = block
	s.set = true
	return nil
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)
