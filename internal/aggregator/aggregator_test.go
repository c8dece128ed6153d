package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/buyday"
	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
	"github.com/Ticoworld/savercoin/internal/storage/memory"
)

type fixedPrice decimal.Decimal

func (p fixedPrice) CurrentPriceUSD(context.Context) decimal.Decimal {
	return decimal.Decimal(p)
}

var (
	day1 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).Unix()
	day2 = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC).Unix()
)

func newTestAggregator(t *testing.T, price string) (*Aggregator, *memory.WalletStore) {
	t.Helper()
	wallets := memory.NewWalletStore()
	nop := zerolog.Nop()
	agg, err := New(Options{
		Wallets:   wallets,
		Prices:    fixedPrice(decimal.RequireFromString(price)),
		Bucketer:  buyday.New(buyday.Day),
		MinBuyUSD: decimal.NewFromInt(10),
		Window: domain.ContestWindow{
			Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Unix(),
			End:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC).Unix(),
		},
		Logger: &nop,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return agg, wallets
}

func buyTx(hash, wallet string, amount int64, ts int64) *domain.LedgeredTransaction {
	return &domain.LedgeredTransaction{
		Hash:        hash,
		Timestamp:   ts,
		From:        "0xrouter",
		To:          wallet,
		TokenAmount: decimal.NewFromInt(amount),
		Kind:        domain.TxKindBuy,
	}
}

func sellTx(hash, wallet string, ts int64) *domain.LedgeredTransaction {
	return &domain.LedgeredTransaction{
		Hash:        hash,
		Timestamp:   ts,
		From:        wallet,
		To:          "0xrouter",
		TokenAmount: decimal.NewFromInt(1),
		Kind:        domain.TxKindSell,
	}
}

func TestApplyBuy_SameBucketCountsOnce(t *testing.T) {
	agg, wallets := newTestAggregator(t, "1")
	ctx := context.Background()

	for _, tx := range []*domain.LedgeredTransaction{
		buyTx("0x1", "0xa", 100, day1),
		buyTx("0x2", "0xa", 100, day1+3600),
	} {
		if out, err := agg.ApplyBuy(ctx, tx); err != nil || out != OutcomeApplied {
			t.Fatalf("ApplyBuy(%s) = %s, %v", tx.Hash, out, err)
		}
	}

	w, _ := wallets.Get(ctx, "0xa")
	if len(w.BuyDays) != 1 {
		t.Errorf("BuyDays = %v, want 1 entry", w.BuyDays)
	}

	_, _ = agg.ApplyBuy(ctx, buyTx("0x3", "0xa", 100, day2))
	w, _ = wallets.Get(ctx, "0xa")
	if len(w.BuyDays) != 2 {
		t.Errorf("BuyDays = %v, want 2 entries", w.BuyDays)
	}
	if !w.TotalBought.Equal(decimal.NewFromInt(300)) {
		t.Errorf("TotalBought = %s, want 300", w.TotalBought)
	}
}

func TestApplyBuy_ReplayIsNoop(t *testing.T) {
	agg, wallets := newTestAggregator(t, "1")
	ctx := context.Background()
	tx := buyTx("0x1", "0xa", 100, day1)

	if out, _ := agg.ApplyBuy(ctx, tx); out != OutcomeApplied {
		t.Fatalf("first apply = %s", out)
	}
	if out, _ := agg.ApplyBuy(ctx, tx); out != OutcomeDuplicate {
		t.Fatalf("replay = %s, want duplicate", out)
	}

	w, _ := wallets.Get(ctx, "0xa")
	if len(w.Buys) != 1 || !w.TotalBought.Equal(decimal.NewFromInt(100)) {
		t.Errorf("replay double counted: buys=%d total=%s", len(w.Buys), w.TotalBought)
	}
}

func TestApplyBuy_BelowMinimum(t *testing.T) {
	agg, wallets := newTestAggregator(t, "0.05")
	ctx := context.Background()

	// 100 tokens * 0.05 = 5 USD < 10 USD
	out, err := agg.ApplyBuy(ctx, buyTx("0x1", "0xa", 100, day1))
	if err != nil || out != OutcomeBelowMinimum {
		t.Fatalf("ApplyBuy = %s, %v; want below_minimum", out, err)
	}
	if _, err := wallets.Get(ctx, "0xa"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("below-minimum buy created a wallet")
	}

	// Existing wallet stays untouched too.
	_, _ = agg.ApplyBuy(ctx, buyTx("0x2", "0xa", 1000, day1))
	_, _ = agg.ApplyBuy(ctx, buyTx("0x3", "0xa", 1, day2))
	w, _ := wallets.Get(ctx, "0xa")
	if len(w.Buys) != 1 || len(w.BuyDays) != 1 || !w.TotalBought.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("below-minimum buy mutated wallet: %+v", w)
	}
}

func TestApplyBuy_ExactMinimumAccepted(t *testing.T) {
	agg, _ := newTestAggregator(t, "0.1")
	out, _ := agg.ApplyBuy(context.Background(), buyTx("0x1", "0xa", 100, day1))
	if out != OutcomeApplied {
		t.Errorf("ApplyBuy = %s, want applied at exactly the minimum", out)
	}
}

func TestApplyBuy_OutsideWindow(t *testing.T) {
	agg, wallets := newTestAggregator(t, "1")
	ctx := context.Background()

	out, err := agg.ApplyBuy(ctx, buyTx("0x1", "0xa", 100, day1-86400))
	if err != nil || out != OutcomeOutsideWindow {
		t.Fatalf("ApplyBuy = %s, %v", out, err)
	}
	if _, err := wallets.Get(ctx, "0xa"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("out-of-window buy created a wallet")
	}
}

func TestApplySell_DisqualificationLatch(t *testing.T) {
	agg, wallets := newTestAggregator(t, "1")
	ctx := context.Background()

	_, _ = agg.ApplyBuy(ctx, buyTx("0x1", "0xa", 100, day1))

	if out, _ := agg.ApplySell(ctx, sellTx("0x2", "0xa", day1+10)); out != OutcomeDisqualified {
		t.Fatalf("ApplySell = %s, want disqualified", out)
	}
	if out, _ := agg.ApplySell(ctx, sellTx("0x3", "0xa", day1+20)); out != OutcomeAlreadyDisqualified {
		t.Fatalf("second ApplySell = %s, want already_disqualified", out)
	}

	if out, _ := agg.ApplyBuy(ctx, buyTx("0x4", "0xa", 100, day2)); out != OutcomeApplied {
		t.Fatalf("buy after sell = %s", out)
	}

	w, _ := wallets.Get(ctx, "0xa")
	if !w.Disqualified() {
		t.Error("buy cleared disqualification")
	}
	active, _ := wallets.ListActive(ctx)
	if len(active) != 0 {
		t.Errorf("disqualified wallet listed as active: %v", active)
	}
}

func TestApplySell_UnknownWalletCreatedDisqualified(t *testing.T) {
	agg, wallets := newTestAggregator(t, "1")
	ctx := context.Background()

	if out, _ := agg.ApplySell(ctx, sellTx("0x1", "0xnew", day1)); out != OutcomeDisqualified {
		t.Fatalf("ApplySell = %s", out)
	}
	w, err := wallets.Get(ctx, "0xnew")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !w.Disqualified() || len(w.Buys) != 0 {
		t.Errorf("unexpected wallet: %+v", w)
	}
}

func TestApply_WrongKind(t *testing.T) {
	agg, _ := newTestAggregator(t, "1")
	ctx := context.Background()

	if _, err := agg.ApplyBuy(ctx, sellTx("0x1", "0xa", day1)); !errors.Is(err, ErrWrongKind) {
		t.Errorf("ApplyBuy(sell) err = %v", err)
	}
	if _, err := agg.ApplySell(ctx, buyTx("0x1", "0xa", 1, day1)); !errors.Is(err, ErrWrongKind) {
		t.Errorf("ApplySell(buy) err = %v", err)
	}
	if _, err := agg.Apply(ctx, &domain.LedgeredTransaction{Hash: "0x1"}); !errors.Is(err, ErrWrongKind) {
		t.Errorf("Apply(empty kind) err = %v", err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{Prices: fixedPrice(decimal.NewFromInt(1))}); err == nil {
		t.Error("expected error without wallet store")
	}
	if _, err := New(Options{Wallets: memory.NewWalletStore()}); err == nil {
		t.Error("expected error without price oracle")
	}
}
