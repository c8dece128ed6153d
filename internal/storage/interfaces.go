package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/domain"
)

// LedgerStore provides access to the transactions ledger.
type LedgerStore interface {
	// Insert adds a new transaction. Returns ErrDuplicateKey if hash exists.
	Insert(ctx context.Context, tx *domain.LedgeredTransaction) error

	// GetByHash retrieves a transaction. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, hash string) (*domain.LedgeredTransaction, error)

	// MarkAggregated records that the wallet effect of hash has been applied.
	// Returns ErrNotFound if not exists.
	MarkAggregated(ctx context.Context, hash string) error

	// Count returns the number of ledgered transactions.
	Count(ctx context.Context) (int64, error)
}

// WalletMutation changes a wallet in place and reports whether anything
// changed. Returning false (or an error) discards the mutation.
type WalletMutation func(w *domain.WalletAggregate) (bool, error)

// WalletStore provides access to wallet aggregates.
type WalletStore interface {
	// Get retrieves a wallet by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.WalletAggregate, error)

	// Update applies fn to the wallet at address atomically with respect to
	// other updates of the same address. A missing wallet is passed to fn as
	// a new active wallet and only persisted if fn reports a change.
	Update(ctx context.Context, address string, fn WalletMutation) error

	// ListActive returns all wallets that are not disqualified.
	ListActive(ctx context.Context) ([]*domain.WalletAggregate, error)
}

// CheckpointStore persists the next block to request from the transfer source.
type CheckpointStore interface {
	// GetCheckpoint returns the stored block. Returns ErrNotFound if none saved yet.
	GetCheckpoint(ctx context.Context) (uint64, error)

	// SetCheckpoint saves the next block to request.
	SetCheckpoint(ctx context.Context, block uint64) error
}

// WinnerStore holds the single contest winner.
type WinnerStore interface {
	// Insert stores the winner. Returns ErrDuplicateKey if a winner already exists.
	Insert(ctx context.Context, w *domain.ContestWinner) error

	// Get returns the winner. Returns ErrNotFound if the contest is not finalized.
	Get(ctx context.Context) (*domain.ContestWinner, error)
}

// VolumeBucket is aggregated trading activity for one buy-day bucket.
type VolumeBucket struct {
	Bucket    int64           // bucket index, see buyday.Bucketer
	BuyVolume decimal.Decimal // sum of buy token amounts
	Buys      int64
	Sells     int64
}

// TransactionArchive is an analytics mirror of the ledger.
type TransactionArchive interface {
	// Append adds transactions to the archive. Re-appending a hash is allowed;
	// readers deduplicate.
	Append(ctx context.Context, txs []*domain.LedgeredTransaction) error

	// VolumeByBucket aggregates archived transactions with timestamps in
	// [from, to] into buckets of widthSeconds, ordered by bucket ASC.
	VolumeByBucket(ctx context.Context, widthSeconds, from, to int64) ([]VolumeBucket, error)
}
