package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// TransactionArchive is an in-memory implementation of storage.TransactionArchive.
type TransactionArchive struct {
	mu   sync.RWMutex
	data map[string]domain.LedgeredTransaction // keyed by hash, last write wins
}

// NewTransactionArchive creates a new in-memory archive.
func NewTransactionArchive() *TransactionArchive {
	return &TransactionArchive{
		data: make(map[string]domain.LedgeredTransaction),
	}
}

// Append adds transactions to the archive.
func (s *TransactionArchive) Append(_ context.Context, txs []*domain.LedgeredTransaction) error {
	for _, tx := range txs {
		if tx == nil || tx.Hash == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		s.data[tx.Hash] = *tx
	}
	return nil
}

// VolumeByBucket aggregates archived transactions into buckets of widthSeconds.
func (s *TransactionArchive) VolumeByBucket(_ context.Context, widthSeconds, from, to int64) ([]storage.VolumeBucket, error) {
	if widthSeconds <= 0 || from > to {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[int64]*storage.VolumeBucket)
	for _, tx := range s.data {
		if tx.Timestamp < from || tx.Timestamp > to {
			continue
		}
		idx := tx.Timestamp / widthSeconds
		b, ok := buckets[idx]
		if !ok {
			b = &storage.VolumeBucket{Bucket: idx, BuyVolume: decimal.Zero}
			buckets[idx] = b
		}
		switch tx.Kind {
		case domain.TxKindBuy:
			b.Buys++
			b.BuyVolume = b.BuyVolume.Add(tx.TokenAmount)
		case domain.TxKindSell:
			b.Sells++
		}
	}

	result := make([]storage.VolumeBucket, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Bucket < result[j].Bucket
	})
	return result, nil
}

var _ storage.TransactionArchive = (*TransactionArchive)(nil)
