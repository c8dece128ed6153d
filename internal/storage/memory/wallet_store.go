package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
// Update holds the store lock for the whole mutation, so updates are
// serialized across all addresses.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WalletAggregate // keyed by address
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.WalletAggregate),
	}
}

// Get retrieves a wallet by address. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(_ context.Context, address string) (*domain.WalletAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return w.Clone(), nil
}

// Update applies fn to a copy of the wallet and stores it if fn reports a change.
func (s *WalletStore) Update(_ context.Context, address string, fn storage.WalletMutation) error {
	if address == "" || fn == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var w *domain.WalletAggregate
	if existing, ok := s.data[address]; ok {
		w = existing.Clone()
	} else {
		w = domain.NewWallet(address)
	}

	changed, err := fn(w)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.data[address] = w.Clone()
	return nil
}

// ListActive returns all wallets that are not disqualified, ordered by address.
func (s *WalletStore) ListActive(_ context.Context) ([]*domain.WalletAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WalletAggregate
	for _, w := range s.data {
		if !w.Disqualified() {
			result = append(result, w.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result, nil
}

var _ storage.WalletStore = (*WalletStore)(nil)
