package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ticoworld/savercoin/internal/buyday"
	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
	"github.com/Ticoworld/savercoin/internal/storage/memory"
)

var now = time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

// seed credits one buy of amount on each of the given days before now.
func seed(t *testing.T, store *memory.WalletStore, addr string, amount int64, daysAgo ...int) {
	t.Helper()
	b := buyday.New(buyday.Day)
	for i, d := range daysAgo {
		ts := now.AddDate(0, 0, -d).Unix()
		err := store.Update(context.Background(), addr, func(w *domain.WalletAggregate) (bool, error) {
			return w.AddBuy(domain.BuyRecord{
				TxHash:      fmt.Sprintf("%s-%d", addr, i),
				TokenAmount: decimal.NewFromInt(amount),
				USDValue:    decimal.NewFromInt(amount),
				Timestamp:   ts,
			}, b.Label(ts)), nil
		})
		require.NoError(t, err)
	}
}

func newView(store storage.WalletStore) *View {
	return NewView(Options{
		Wallets:  store,
		Bucketer: buyday.New(buyday.Day),
		Now:      func() time.Time { return now },
	})
}

func TestLeaderboard_WindowAndQualification(t *testing.T) {
	store := memory.NewWalletStore()
	seed(t, store, "0xqualified", 10, 0, 1, 2, 3, 4)   // 5 days in window
	seed(t, store, "0xpartial", 20, 0, 10, 11, 12, 13) // 1 day in window
	seed(t, store, "0xstale", 1000, 8, 9, 10)          // all older than the window

	entries, err := newView(store).Leaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "0xpartial", entries[0].Address, "lifetime total ranks first")
	assert.Equal(t, 1, entries[0].ActiveBuyDayCount)
	assert.False(t, entries[0].Qualified)
	assert.True(t, entries[0].TotalBought.Equal(decimal.NewFromInt(100)))

	assert.Equal(t, "0xqualified", entries[1].Address)
	assert.Equal(t, 5, entries[1].ActiveBuyDayCount)
	assert.True(t, entries[1].Qualified)
}

func TestLeaderboard_WindowBoundaryInclusive(t *testing.T) {
	store := memory.NewWalletStore()
	seed(t, store, "0xedge", 10, 7)
	seed(t, store, "0xout", 10, 8)

	entries, err := newView(store).Leaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xedge", entries[0].Address)
}

func TestLeaderboard_ExcludesDisqualified(t *testing.T) {
	store := memory.NewWalletStore()
	seed(t, store, "0xseller", 500, 0, 1, 2, 3, 4)
	require.NoError(t, store.Update(context.Background(), "0xseller", func(w *domain.WalletAggregate) (bool, error) {
		return w.Disqualify(now.Unix()), nil
	}))

	entries, err := newView(store).Leaderboard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLeaderboard_TieBreak(t *testing.T) {
	store := memory.NewWalletStore()
	seed(t, store, "0xlate", 10, 0)
	seed(t, store, "0xearly", 10, 2)
	seed(t, store, "0xb-same", 10, 1)
	seed(t, store, "0xa-same", 10, 1)

	entries, err := newView(store).Leaderboard(context.Background())
	require.NoError(t, err)

	var got []string
	for _, e := range entries {
		got = append(got, e.Address)
	}
	assert.Equal(t, []string{"0xearly", "0xa-same", "0xb-same", "0xlate"}, got)
}

func TestLeaderboard_Limit(t *testing.T) {
	store := memory.NewWalletStore()
	for i := 0; i < 120; i++ {
		seed(t, store, fmt.Sprintf("0x%03d", i), int64(i+1), 0)
	}

	entries, err := newView(store).Leaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, DefaultLimit)
	assert.Equal(t, "0x119", entries[0].Address)
}

func TestLeaderboard_AcceleratedBuckets(t *testing.T) {
	store := memory.NewWalletStore()
	b := buyday.New(2 * time.Minute)
	for i, minsAgo := range []int{0, 20} {
		ts := now.Add(-time.Duration(minsAgo) * time.Minute).Unix()
		require.NoError(t, store.Update(context.Background(), "0xa", func(w *domain.WalletAggregate) (bool, error) {
			return w.AddBuy(domain.BuyRecord{TxHash: fmt.Sprint(i), TokenAmount: decimal.NewFromInt(1), Timestamp: ts}, b.Label(ts)), nil
		}))
	}

	v := NewView(Options{Wallets: store, Bucketer: b, Now: func() time.Time { return now }})
	entries, err := v.Leaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].ActiveBuyDayCount, "20 minutes is 10 buckets back")
}

func TestWallet_Lookup(t *testing.T) {
	store := memory.NewWalletStore()
	seed(t, store, "0xabc", 10, 0)
	v := newView(store)

	w, err := v.Wallet(context.Background(), "0xABC")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", w.Address)

	_, err = v.Wallet(context.Background(), "0xmissing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
