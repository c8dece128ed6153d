package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// WalletStatus is the qualification state of a wallet.
// The only permitted transition is Active -> Disqualified.
type WalletStatus string

const (
	WalletActive       WalletStatus = "active"
	WalletDisqualified WalletStatus = "disqualified"
)

// BuyRecord is one qualifying purchase credited to a wallet.
type BuyRecord struct {
	TxHash      string          // ledger hash of the buy
	TokenAmount decimal.Decimal // tokens received
	USDValue    decimal.Decimal // TokenAmount at the price observed when aggregated
	Timestamp   int64           // block time, Unix timestamp in seconds
}

// WalletAggregate is the per-address contest state.
// Corresponds to the wallets and wallet_buys tables in PostgreSQL.
//
// Mutate it only through AddBuy and Disqualify so that TotalBought,
// BuyDays and Status stay consistent.
type WalletAggregate struct {
	Address     string
	Buys        []BuyRecord     // append-only, in aggregation order
	TotalBought decimal.Decimal // sum of Buys[i].TokenAmount
	BuyDays     []string        // distinct buy-day labels, first-seen order
	Status      WalletStatus
	LastUpdated int64 // Unix seconds of the latest applied event
	LastBuy     int64 // Unix seconds of the latest buy, 0 if none
}

// NewWallet returns an empty active wallet.
func NewWallet(address string) *WalletAggregate {
	return &WalletAggregate{
		Address:     address,
		TotalBought: decimal.Zero,
		Status:      WalletActive,
	}
}

// Disqualified reports whether the wallet has ever sold.
func (w *WalletAggregate) Disqualified() bool {
	return w.Status == WalletDisqualified
}

// Disqualify latches the wallet into the disqualified state.
// It returns true only on the Active -> Disqualified transition.
func (w *WalletAggregate) Disqualify(at int64) bool {
	if w.Status == WalletDisqualified {
		return false
	}
	w.Status = WalletDisqualified
	if at > w.LastUpdated {
		w.LastUpdated = at
	}
	return true
}

// HasBuy reports whether a buy with the given hash was already credited.
func (w *WalletAggregate) HasBuy(txHash string) bool {
	return slices.ContainsFunc(w.Buys, func(b BuyRecord) bool {
		return b.TxHash == txHash
	})
}

// HasBuyDay reports whether day is already among the wallet's buy days.
func (w *WalletAggregate) HasBuyDay(day string) bool {
	return slices.Contains(w.BuyDays, day)
}

// AddBuy credits a buy made on the given buy day. It is a no-op returning
// false if a buy with the same hash is already recorded.
func (w *WalletAggregate) AddBuy(rec BuyRecord, day string) bool {
	if w.HasBuy(rec.TxHash) {
		return false
	}
	w.Buys = append(w.Buys, rec)
	w.TotalBought = w.TotalBought.Add(rec.TokenAmount)
	if !w.HasBuyDay(day) {
		w.BuyDays = append(w.BuyDays, day)
	}
	w.LastBuy = rec.Timestamp
	w.LastUpdated = rec.Timestamp
	return true
}

// Clone returns a deep copy.
func (w *WalletAggregate) Clone() *WalletAggregate {
	c := *w
	c.Buys = slices.Clone(w.Buys)
	c.BuyDays = slices.Clone(w.BuyDays)
	return &c
}

// RanksAbove orders wallets for the leaderboard and the winner pick:
// larger TotalBought first, then the earlier LastBuy, then address.
// A wallet that never bought sorts after one that did on equal totals.
func RanksAbove(a, b *WalletAggregate) bool {
	if c := a.TotalBought.Cmp(b.TotalBought); c != 0 {
		return c > 0
	}
	if a.LastBuy != b.LastBuy {
		switch {
		case a.LastBuy == 0:
			return false
		case b.LastBuy == 0:
			return true
		}
		return a.LastBuy < b.LastBuy
	}
	return a.Address < b.Address
}
