package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
// Update serializes writers of one address with a row lock; writers of
// different addresses proceed in parallel.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

var _ storage.WalletStore = (*WalletStore)(nil)

const selectWallet = `
	SELECT address, total_bought::text, buy_days, disqualified, last_updated, last_buy
	FROM wallets
`

// Get retrieves a wallet with its buys. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(ctx context.Context, address string) (_ *domain.WalletAggregate, err error) {
	defer func(start time.Time) { observe("wallet_get", start, err) }(time.Now())

	w, err := scanWallet(s.pool.QueryRow(ctx, selectWallet+` WHERE address = $1`, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	if w.Buys, err = loadBuys(ctx, s.pool, address); err != nil {
		return nil, err
	}
	return w, nil
}

// Update locks the wallet row, applies fn and writes the result back in one
// transaction. A wallet fn leaves unchanged is never written.
func (s *WalletStore) Update(ctx context.Context, address string, fn storage.WalletMutation) (err error) {
	defer func(start time.Time) { observe("wallet_update", start, err) }(time.Now())

	if address == "" || fn == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Materialize the row first so that FOR UPDATE has something to lock
	// even for a first-time address. Rolled back if fn changes nothing.
	if _, err := tx.Exec(ctx,
		`INSERT INTO wallets (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`, address,
	); err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}

	w, err := scanWallet(tx.QueryRow(ctx, selectWallet+` WHERE address = $1 FOR UPDATE`, address))
	if err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	if w.Buys, err = loadBuys(ctx, tx, address); err != nil {
		return err
	}
	stored := len(w.Buys)

	changed, err := fn(w)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	days := w.BuyDays
	if days == nil {
		days = []string{}
	}
	_, err = tx.Exec(ctx, `
		UPDATE wallets
		SET total_bought = $2::numeric,
			buy_days = $3,
			disqualified = $4,
			last_updated = $5,
			last_buy = $6
		WHERE address = $1
	`,
		address,
		w.TotalBought.String(),
		days,
		w.Disqualified(),
		w.LastUpdated,
		w.LastBuy,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}

	// Buys are append-only, so only the tail added by fn is new.
	for _, b := range w.Buys[stored:] {
		_, err := tx.Exec(ctx, `
			INSERT INTO wallet_buys (tx_hash, address, token_amount, usd_value, timestamp)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		`, b.TxHash, address, b.TokenAmount.String(), b.USDValue.String(), b.Timestamp)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("buy %s already credited to another wallet: %w", b.TxHash, storage.ErrDuplicateKey)
			}
			return fmt.Errorf("insert wallet buy: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListActive returns all wallets that are not disqualified, ordered by address.
// Wallets and buys are read from one snapshot so totals always match buys.
func (s *WalletStore) ListActive(ctx context.Context) (_ []*domain.WalletAggregate, err error) {
	defer func(start time.Time) { observe("wallet_list_active", start, err) }(time.Now())

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, selectWallet+` WHERE NOT disqualified ORDER BY address ASC`)
	if err != nil {
		return nil, fmt.Errorf("query active wallets: %w", err)
	}

	var result []*domain.WalletAggregate
	byAddress := make(map[string]*domain.WalletAggregate)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		result = append(result, w)
		byAddress[w.Address] = w
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	if len(result) == 0 {
		return result, nil
	}

	buyRows, err := tx.Query(ctx, `
		SELECT b.address, b.tx_hash, b.token_amount::text, b.usd_value::text, b.timestamp
		FROM wallet_buys b
		JOIN wallets w ON w.address = b.address
		WHERE NOT w.disqualified
		ORDER BY b.address, b.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query wallet buys: %w", err)
	}
	defer buyRows.Close()

	for buyRows.Next() {
		var address string
		b, err := scanBuy(buyRows, &address)
		if err != nil {
			return nil, err
		}
		if w, ok := byAddress[address]; ok {
			w.Buys = append(w.Buys, b)
		}
	}
	if err := buyRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet buys: %w", err)
	}
	return result, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadBuys(ctx context.Context, q querier, address string) ([]domain.BuyRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT address, tx_hash, token_amount::text, usd_value::text, timestamp
		FROM wallet_buys
		WHERE address = $1
		ORDER BY seq ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("query wallet buys: %w", err)
	}
	defer rows.Close()

	var buys []domain.BuyRecord
	for rows.Next() {
		var owner string
		b, err := scanBuy(rows, &owner)
		if err != nil {
			return nil, err
		}
		buys = append(buys, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet buys: %w", err)
	}
	return buys, nil
}

func scanWallet(row pgx.Row) (*domain.WalletAggregate, error) {
	var (
		w            domain.WalletAggregate
		total        string
		disqualified bool
	)
	if err := row.Scan(&w.Address, &total, &w.BuyDays, &disqualified, &w.LastUpdated, &w.LastBuy); err != nil {
		return nil, err
	}

	d, err := parseNumeric(total)
	if err != nil {
		return nil, err
	}
	w.TotalBought = d
	w.Status = domain.WalletActive
	if disqualified {
		w.Status = domain.WalletDisqualified
	}
	if len(w.BuyDays) == 0 {
		w.BuyDays = nil
	}
	return &w, nil
}

func scanBuy(row pgx.Row, address *string) (domain.BuyRecord, error) {
	var (
		b           domain.BuyRecord
		amount, usd string
	)
	if err := row.Scan(address, &b.TxHash, &amount, &usd, &b.Timestamp); err != nil {
		return b, fmt.Errorf("scan wallet buy: %w", err)
	}

	var err error
	if b.TokenAmount, err = parseNumeric(amount); err != nil {
		return b, err
	}
	if b.USDValue, err = parseNumeric(usd); err != nil {
		return b, err
	}
	return b, nil
}
