// Package leaderboard projects wallet aggregates into the ranked contest view.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/buyday"
	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// Defaults for the contest rules.
const (
	DefaultWindowBuckets = 7
	DefaultMinActiveDays = 5
	DefaultLimit         = 100
)

// Entry is one leaderboard row.
type Entry struct {
	Address           string
	TotalBought       decimal.Decimal // lifetime, not windowed
	ActiveBuyDayCount int             // distinct buy days inside the window
	Qualified         bool
	LastBuy           int64 // Unix seconds, 0 if none
}

// Options configures a View.
type Options struct {
	Wallets       storage.WalletStore
	Bucketer      buyday.Bucketer
	WindowBuckets int
	MinActiveDays int
	Limit         int
	Now           func() time.Time
}

// View is a read-only projection over wallet aggregates.
type View struct {
	wallets       storage.WalletStore
	bucketer      buyday.Bucketer
	windowBuckets int
	minActiveDays int
	limit         int
	now           func() time.Time
}

// NewView creates a leaderboard view.
func NewView(opts Options) *View {
	v := &View{
		wallets:       opts.Wallets,
		bucketer:      opts.Bucketer,
		windowBuckets: opts.WindowBuckets,
		minActiveDays: opts.MinActiveDays,
		limit:         opts.Limit,
		now:           opts.Now,
	}
	if v.windowBuckets <= 0 {
		v.windowBuckets = DefaultWindowBuckets
	}
	if v.minActiveDays <= 0 {
		v.minActiveDays = DefaultMinActiveDays
	}
	if v.limit <= 0 {
		v.limit = DefaultLimit
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// Leaderboard returns active wallets with at least one buy day inside the
// sliding window, ranked by lifetime total and capped at the limit.
func (v *View) Leaderboard(ctx context.Context) ([]Entry, error) {
	wallets, err := v.wallets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active wallets: %w", err)
	}

	boundary := v.bucketer.WindowStart(v.now(), v.windowBuckets)

	ranked := make([]*domain.WalletAggregate, 0, len(wallets))
	counts := make(map[string]int, len(wallets))
	for _, w := range wallets {
		n := v.activeDays(w, boundary)
		if n == 0 {
			continue
		}
		ranked = append(ranked, w)
		counts[w.Address] = n
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return domain.RanksAbove(ranked[i], ranked[j])
	})
	if len(ranked) > v.limit {
		ranked = ranked[:v.limit]
	}

	entries := make([]Entry, 0, len(ranked))
	for _, w := range ranked {
		n := counts[w.Address]
		entries = append(entries, Entry{
			Address:           w.Address,
			TotalBought:       w.TotalBought,
			ActiveBuyDayCount: n,
			Qualified:         n >= v.minActiveDays,
			LastBuy:           w.LastBuy,
		})
	}
	return entries, nil
}

// activeDays counts buy days at or after boundary. Labels that do not parse
// under the current bucket width are not counted.
func (v *View) activeDays(w *domain.WalletAggregate, boundary int64) int {
	n := 0
	for _, day := range w.BuyDays {
		idx, err := v.bucketer.ParseIndex(day)
		if err != nil {
			continue
		}
		if idx >= boundary {
			n++
		}
	}
	return n
}

// Wallet returns the full aggregate for address, matched case-insensitively.
// Returns storage.ErrNotFound if the wallet does not exist.
func (v *View) Wallet(ctx context.Context, address string) (*domain.WalletAggregate, error) {
	w, err := v.wallets.Get(ctx, strings.ToLower(strings.TrimSpace(address)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}
