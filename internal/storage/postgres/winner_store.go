package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// WinnerStore implements storage.WinnerStore using PostgreSQL.
// The contest_winner table admits a single row (id = 1), so the second
// of two racing inserts fails with a unique violation.
type WinnerStore struct {
	pool *Pool
}

// NewWinnerStore creates a new WinnerStore.
func NewWinnerStore(pool *Pool) *WinnerStore {
	return &WinnerStore{pool: pool}
}

var _ storage.WinnerStore = (*WinnerStore)(nil)

// Insert stores the winner. Returns ErrDuplicateKey if a winner already exists.
func (s *WinnerStore) Insert(ctx context.Context, w *domain.ContestWinner) (err error) {
	defer func(start time.Time) { observe("winner_insert", start, err) }(time.Now())

	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}

	days := w.BuyDays
	if days == nil {
		days = []string{}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO contest_winner (id, address, total_bought, buy_days, created_at)
		VALUES (1, $1, $2::numeric, $3, $4)
	`, w.Address, w.TotalBought.String(), days, w.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert winner: %w", err)
	}
	return nil
}

// Get returns the winner. Returns ErrNotFound if the contest is not finalized.
func (s *WinnerStore) Get(ctx context.Context) (_ *domain.ContestWinner, err error) {
	defer func(start time.Time) { observe("winner_get", start, err) }(time.Now())

	var (
		w     domain.ContestWinner
		total string
	)
	err = s.pool.QueryRow(ctx, `
		SELECT address, total_bought::text, buy_days, created_at
		FROM contest_winner
		WHERE id = 1
	`).Scan(&w.Address, &total, &w.BuyDays, &w.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get winner: %w", err)
	}

	if w.TotalBought, err = parseNumeric(total); err != nil {
		return nil, err
	}
	return &w, nil
}
