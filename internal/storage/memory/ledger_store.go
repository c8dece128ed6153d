package memory

import (
	"context"
	"sync"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LedgeredTransaction // keyed by hash
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		data: make(map[string]*domain.LedgeredTransaction),
	}
}

// Insert adds a new transaction. Returns ErrDuplicateKey if hash exists.
func (s *LedgerStore) Insert(_ context.Context, tx *domain.LedgeredTransaction) error {
	if tx == nil || tx.Hash == "" || !tx.Kind.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[tx.Hash]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	txCopy := *tx
	s.data[tx.Hash] = &txCopy
	return nil
}

// GetByHash retrieves a transaction. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetByHash(_ context.Context, hash string) (*domain.LedgeredTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.data[hash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	txCopy := *tx
	return &txCopy, nil
}

// MarkAggregated flags the transaction as applied to its wallet.
func (s *LedgerStore) MarkAggregated(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.data[hash]
	if !exists {
		return storage.ErrNotFound
	}
	tx.Aggregated = true
	return nil
}

// Count returns the number of ledgered transactions.
func (s *LedgerStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
