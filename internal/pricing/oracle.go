// Package pricing provides the token's current USD price behind a TTL cache
// that never fails its caller.
package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/observability"
)

// Default oracle settings.
const (
	DefaultTTL = 5 * time.Minute
)

// DefaultFallbackPrice is served when no valid upstream price is available.
var DefaultFallbackPrice = decimal.RequireFromString("0.0001")

// Fetcher retrieves a fresh price from an upstream.
type Fetcher interface {
	FetchPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// Options configures a CachedOracle.
type Options struct {
	Source   Fetcher // nil serves Fallback only
	TTL      time.Duration
	Fallback decimal.Decimal
	Now      func() time.Time
	Logger   *zerolog.Logger
}

// CachedOracle caches the last valid upstream price for TTL. Fallback
// prices are never cached, so the next call retries the upstream.
type CachedOracle struct {
	source   Fetcher
	ttl      time.Duration
	fallback decimal.Decimal
	now      func() time.Time
	logger   zerolog.Logger

	mu        sync.Mutex
	price     decimal.Decimal
	fetchedAt time.Time
	valid     bool
}

// NewCachedOracle creates an oracle.
func NewCachedOracle(opts Options) *CachedOracle {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	fallback := opts.Fallback
	if !fallback.IsPositive() {
		fallback = DefaultFallbackPrice
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := log.Logger.With().Str("component", "pricing").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &CachedOracle{
		source:   opts.Source,
		ttl:      ttl,
		fallback: fallback,
		now:      now,
		logger:   logger,
	}
}

// CurrentPriceUSD returns a positive price.
func (o *CachedOracle) CurrentPriceUSD(ctx context.Context) decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if o.valid && now.Sub(o.fetchedAt) < o.ttl {
		observability.RecordPriceLookup("cached", o.price.InexactFloat64())
		return o.price
	}

	if o.source == nil {
		observability.RecordPriceLookup("fallback", o.fallback.InexactFloat64())
		return o.fallback
	}

	price, err := o.source.FetchPriceUSD(ctx)
	if err != nil || !price.IsPositive() {
		o.logger.Warn().Err(err).Str("fallback", o.fallback.String()).Msg("price unavailable, using fallback")
		observability.RecordPriceLookup("fallback", o.fallback.InexactFloat64())
		return o.fallback
	}

	o.price = price
	o.fetchedAt = now
	o.valid = true
	o.logger.Debug().Str("price", price.String()).Msg("price refreshed")
	observability.RecordPriceLookup("fetched", price.InexactFloat64())
	return price
}
