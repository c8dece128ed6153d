package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ticoworld/savercoin/internal/buyday"
	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/leaderboard"
	"github.com/Ticoworld/savercoin/internal/storage/memory"
)

const walletAddr = "0x1111111111111111111111111111111111111111"

// 2025-06-10T12:00:00Z
var testNow = time.Unix(1749556800, 0).UTC()

type fixture struct {
	wallets *memory.WalletStore
	winners *memory.WinnerStore
	archive *memory.TransactionArchive
	server  *Server
	router  http.Handler
}

func newFixture(t *testing.T, cache LeaderboardCache, hub *Hub) *fixture {
	t.Helper()

	bucketer := buyday.New(buyday.Day)
	f := &fixture{
		wallets: memory.NewWalletStore(),
		winners: memory.NewWinnerStore(),
		archive: memory.NewTransactionArchive(),
	}
	view := leaderboard.NewView(leaderboard.Options{
		Wallets:  f.wallets,
		Bucketer: bucketer,
		Now:      func() time.Time { return testNow },
	})
	f.server = NewServer(Options{
		Leaderboard: view,
		Winners:     f.winners,
		Archive:     f.archive,
		Cache:       cache,
		Hub:         hub,
		Bucketer:    bucketer,
		Window:      domain.ContestWindow{Start: testNow.Unix() - 10*86400, End: testNow.Unix() + 86400},
	})
	f.router = f.server.Router()
	return f
}

func (f *fixture) buy(t *testing.T, address, hash string, amount int64, ts int64) {
	t.Helper()
	day := buyday.New(buyday.Day).Label(ts)
	err := f.wallets.Update(context.Background(), address, func(w *domain.WalletAggregate) (bool, error) {
		return w.AddBuy(domain.BuyRecord{
			TxHash:      hash,
			TokenAmount: decimal.NewFromInt(amount),
			USDValue:    decimal.NewFromInt(amount),
			Timestamp:   ts,
		}, day), nil
	})
	require.NoError(t, err)
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestLeaderboardEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.buy(t, walletAddr, "0x01", 100, testNow.Unix()-3600)
	f.buy(t, "0x2222222222222222222222222222222222222222", "0x02", 300, testNow.Unix()-7200)

	rec := f.get("/api/leaderboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var entries []LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", entries[0].Address)
	assert.Equal(t, 300.0, entries[0].TotalBought)
	assert.Equal(t, 1, entries[0].ActiveBuyDaysCount)
	assert.False(t, entries[0].Qualified)
	require.NotNil(t, entries[0].LastBuy)
}

func TestWalletEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.buy(t, walletAddr, "0x01", 42, testNow.Unix())

	rec := f.get("/api/wallet/0x" + strings.ToUpper(walletAddr[2:]))
	require.Equal(t, http.StatusOK, rec.Code, "lookup must ignore case")

	var resp WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, walletAddr, resp.Address)
	assert.Equal(t, 42.0, resp.TotalBought)
	assert.Equal(t, []string{"2025-06-10"}, resp.BuyDays)
	require.Len(t, resp.Buys, 1)
	assert.Equal(t, "42", resp.Buys[0].Exact)
	assert.False(t, resp.Disqualified)
}

func TestWalletEndpointNotFound(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.get("/api/wallet/0x9999999999999999999999999999999999999999")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Wallet not found"}`, rec.Body.String())
}

func TestWinnerEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.get("/api/winner")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.winners.Insert(context.Background(), &domain.ContestWinner{
		Address:     walletAddr,
		TotalBought: decimal.NewFromInt(500),
		BuyDays:     []string{"2025-06-01"},
		CreatedAt:   testNow.Unix(),
	}))

	rec = f.get("/api/winner")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp WinnerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, walletAddr, resp.Address)
	assert.Equal(t, 500.0, resp.TotalBought)
	assert.True(t, resp.CreatedAt.Equal(testNow))
}

func TestDailyVolumeEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)
	day := int64(86400)
	base := (testNow.Unix() / day) * day
	require.NoError(t, f.archive.Append(context.Background(), []*domain.LedgeredTransaction{
		{Hash: "0x01", Timestamp: base + 10, TokenAmount: decimal.NewFromInt(5), Kind: domain.TxKindBuy},
		{Hash: "0x02", Timestamp: base + 20, TokenAmount: decimal.NewFromInt(7), Kind: domain.TxKindBuy},
		{Hash: "0x03", Timestamp: base + 30, TokenAmount: decimal.NewFromInt(1), Kind: domain.TxKindSell},
	}))

	rec := f.get("/api/stats/daily-volume")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []VolumeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "2025-06-10", resp[0].Day)
	assert.Equal(t, 12.0, resp[0].BuyVolume)
	assert.Equal(t, int64(2), resp[0].Buys)
	assert.Equal(t, int64(1), resp[0].Sells)

	rec = f.get("/api/stats/daily-volume?from=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDailyVolumeWithoutArchive(t *testing.T) {
	s := NewServer(Options{Bucketer: buyday.New(buyday.Day)})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/daily-volume", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeCache struct {
	mu          sync.Mutex
	body        []byte
	sets        int
	invalidated int
	failGet     bool
}

func (c *fakeCache) GetLeaderboard(context.Context) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("redis down")
	}
	return c.body, c.body != nil, nil
}

func (c *fakeCache) SetLeaderboard(_ context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = body
	c.sets++
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = nil
	c.invalidated++
	return nil
}

func TestLeaderboardCache(t *testing.T) {
	cache := &fakeCache{}
	f := newFixture(t, cache, nil)
	f.buy(t, walletAddr, "0x01", 10, testNow.Unix())

	first := f.get("/api/leaderboard").Body.String()
	assert.Equal(t, 1, cache.sets)

	// A new buy is invisible until the cache is invalidated.
	f.buy(t, walletAddr, "0x02", 10, testNow.Unix())
	assert.Equal(t, first, f.get("/api/leaderboard").Body.String())

	require.NoError(t, f.server.Refresh(context.Background()))
	assert.Equal(t, 1, cache.invalidated)
	assert.NotEqual(t, first, f.get("/api/leaderboard").Body.String())
}

func TestLeaderboardCacheFailureFallsThrough(t *testing.T) {
	f := newFixture(t, &fakeCache{failGet: true}, nil)
	rec := f.get("/api/leaderboard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestLeaderboardWebsocket(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()
	f := newFixture(t, nil, hub)
	f.buy(t, walletAddr, "0x01", 10, testNow.Unix())
	require.NoError(t, f.server.Refresh(context.Background()))

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Late joiner gets the latest snapshot first.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var entries []LeaderboardEntry
	require.NoError(t, json.Unmarshal(msg, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 10.0, entries[0].TotalBought)

	f.buy(t, walletAddr, "0x02", 5, testNow.Unix())
	require.NoError(t, f.server.Refresh(context.Background()))

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &entries))
	assert.Equal(t, 15.0, entries[0].TotalBought)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
