package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

var _ storage.LedgerStore = (*LedgerStore)(nil)

// Insert adds a new transaction. Returns ErrDuplicateKey if tx_hash exists.
func (s *LedgerStore) Insert(ctx context.Context, tx *domain.LedgeredTransaction) (err error) {
	defer func(start time.Time) { observe("ledger_insert", start, err) }(time.Now())

	if tx == nil || tx.Hash == "" || !tx.Kind.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transactions (
			tx_hash, block_number, timestamp, from_address, to_address,
			raw_value, token_amount, kind, aggregated, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		tx.Hash,
		int64(tx.BlockNumber),
		tx.Timestamp,
		tx.From,
		tx.To,
		tx.RawValue,
		tx.TokenAmount.String(),
		string(tx.Kind),
		tx.Aggregated,
		tx.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByHash retrieves a transaction. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetByHash(ctx context.Context, hash string) (_ *domain.LedgeredTransaction, err error) {
	defer func(start time.Time) { observe("ledger_get", start, err) }(time.Now())

	query := `
		SELECT tx_hash, block_number, timestamp, from_address, to_address,
			raw_value::text, token_amount::text, kind, aggregated, created_at
		FROM transactions
		WHERE tx_hash = $1
	`

	var (
		tx          domain.LedgeredTransaction
		block       int64
		tokenAmount string
		kind        string
	)
	err = s.pool.QueryRow(ctx, query, hash).Scan(
		&tx.Hash,
		&block,
		&tx.Timestamp,
		&tx.From,
		&tx.To,
		&tx.RawValue,
		&tokenAmount,
		&kind,
		&tx.Aggregated,
		&tx.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	tx.BlockNumber = uint64(block)
	tx.Kind = domain.TxKind(kind)
	if tx.TokenAmount, err = parseNumeric(tokenAmount); err != nil {
		return nil, err
	}
	return &tx, nil
}

// MarkAggregated sets the aggregated flag. Returns ErrNotFound if not exists.
func (s *LedgerStore) MarkAggregated(ctx context.Context, hash string) (err error) {
	defer func(start time.Time) { observe("ledger_mark", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, `UPDATE transactions SET aggregated = TRUE WHERE tx_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("mark transaction aggregated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Count returns the number of ledgered transactions.
func (s *LedgerStore) Count(ctx context.Context) (_ int64, err error) {
	defer func(start time.Time) { observe("ledger_count", start, err) }(time.Now())

	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}
