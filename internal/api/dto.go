package api

import (
	"time"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/leaderboard"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// Amounts are served as JSON numbers. Each buy also carries its exact
// token amount as a decimal string.

// LeaderboardEntry is one row of GET /api/leaderboard.
type LeaderboardEntry struct {
	Address            string     `json:"address"`
	TotalBought        float64    `json:"totalBought"`
	ActiveBuyDaysCount int        `json:"activeBuyDaysCount"`
	Qualified          bool       `json:"qualified"`
	LastBuy            *time.Time `json:"lastBuy"`
}

// BuyResponse is one credited buy.
type BuyResponse struct {
	TxHash      string    `json:"txHash"`
	TokenAmount float64   `json:"tokenAmount"`
	USDValue    float64   `json:"usdValue"`
	Exact       string    `json:"tokenAmountExact"`
	Timestamp   time.Time `json:"timestamp"`
}

// WalletResponse is GET /api/wallet/{address}.
type WalletResponse struct {
	Address      string        `json:"address"`
	Buys         []BuyResponse `json:"buys"`
	TotalBought  float64       `json:"totalBought"`
	BuyDays      []string      `json:"buyDays"`
	Disqualified bool          `json:"disqualified"`
	LastUpdated  time.Time     `json:"lastUpdated"`
	LastBuy      *time.Time    `json:"lastBuy"`
}

// WinnerResponse is GET /api/winner.
type WinnerResponse struct {
	Address     string    `json:"address"`
	TotalBought float64   `json:"totalBought"`
	BuyDays     []string  `json:"buyDays"`
	CreatedAt   time.Time `json:"createdAt"`
}

// VolumeResponse is one bucket of GET /api/stats/daily-volume.
type VolumeResponse struct {
	Day       string  `json:"day"`
	BuyVolume float64 `json:"buyVolume"`
	Buys      int64   `json:"buys"`
	Sells     int64   `json:"sells"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// optionalTime maps the zero Unix timestamp to null.
func optionalTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := unixTime(ts)
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toLeaderboardEntries(entries []leaderboard.Entry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, LeaderboardEntry{
			Address:            e.Address,
			TotalBought:        e.TotalBought.InexactFloat64(),
			ActiveBuyDaysCount: e.ActiveBuyDayCount,
			Qualified:          e.Qualified,
			LastBuy:            optionalTime(e.LastBuy),
		})
	}
	return out
}

func toWalletResponse(w *domain.WalletAggregate) WalletResponse {
	buys := make([]BuyResponse, 0, len(w.Buys))
	for _, b := range w.Buys {
		buys = append(buys, BuyResponse{
			TxHash:      b.TxHash,
			TokenAmount: b.TokenAmount.InexactFloat64(),
			USDValue:    b.USDValue.InexactFloat64(),
			Exact:       b.TokenAmount.String(),
			Timestamp:   unixTime(b.Timestamp),
		})
	}
	return WalletResponse{
		Address:      w.Address,
		Buys:         buys,
		TotalBought:  w.TotalBought.InexactFloat64(),
		BuyDays:      nonNil(w.BuyDays),
		Disqualified: w.Disqualified(),
		LastUpdated:  unixTime(w.LastUpdated),
		LastBuy:      optionalTime(w.LastBuy),
	}
}

func toWinnerResponse(w *domain.ContestWinner) WinnerResponse {
	return WinnerResponse{
		Address:     w.Address,
		TotalBought: w.TotalBought.InexactFloat64(),
		BuyDays:     nonNil(w.BuyDays),
		CreatedAt:   unixTime(w.CreatedAt),
	}
}

func toVolumeResponses(buckets []storage.VolumeBucket, label func(int64) string) []VolumeResponse {
	out := make([]VolumeResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, VolumeResponse{
			Day:       label(b.Bucket),
			BuyVolume: b.BuyVolume.InexactFloat64(),
			Buys:      b.Buys,
			Sells:     b.Sells,
		})
	}
	return out
}
