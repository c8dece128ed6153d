package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// WinnerStore is an in-memory implementation of storage.WinnerStore.
type WinnerStore struct {
	mu     sync.RWMutex
	winner *domain.ContestWinner
}

// NewWinnerStore creates a new in-memory winner store.
func NewWinnerStore() *WinnerStore {
	return &WinnerStore{}
}

// Insert stores the winner. Returns ErrDuplicateKey if a winner already exists.
func (s *WinnerStore) Insert(_ context.Context, w *domain.ContestWinner) error {
	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.winner != nil {
		return storage.ErrDuplicateKey
	}
	s.winner = copyWinner(w)
	return nil
}

// Get returns the winner. Returns ErrNotFound if none stored.
func (s *WinnerStore) Get(_ context.Context) (*domain.ContestWinner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.winner == nil {
		return nil, storage.ErrNotFound
	}
	return copyWinner(s.winner), nil
}

func copyWinner(w *domain.ContestWinner) *domain.ContestWinner {
	c := *w
	c.BuyDays = slices.Clone(w.BuyDays)
	return &c
}

var _ storage.WinnerStore = (*WinnerStore)(nil)
