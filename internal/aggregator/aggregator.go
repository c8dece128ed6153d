// Package aggregator applies ledgered buys and sells to per-wallet state.
//
// Both operations are idempotent per transaction hash: replaying a buy whose
// hash is already recorded on the wallet changes nothing, and a sell only
// ever moves a wallet from active to disqualified.
package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/buyday"
	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// PriceOracle yields the current USD price of the token. Implementations
// fall back to a configured price instead of failing.
type PriceOracle interface {
	CurrentPriceUSD(ctx context.Context) decimal.Decimal
}

// Outcome describes what applying a transaction did.
type Outcome string

const (
	OutcomeApplied             Outcome = "applied"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeBelowMinimum        Outcome = "below_minimum"
	OutcomeOutsideWindow       Outcome = "outside_window"
	OutcomeDisqualified        Outcome = "disqualified"
	OutcomeAlreadyDisqualified Outcome = "already_disqualified"
)

// ErrWrongKind is returned when a transaction is passed to the wrong operation.
var ErrWrongKind = errors.New("transaction kind does not match operation")

// Options configures an Aggregator.
type Options struct {
	Wallets   storage.WalletStore
	Prices    PriceOracle
	Bucketer  buyday.Bucketer
	MinBuyUSD decimal.Decimal
	Window    domain.ContestWindow
	Logger    *zerolog.Logger
}

// Aggregator mutates wallet aggregates.
type Aggregator struct {
	wallets   storage.WalletStore
	prices    PriceOracle
	bucketer  buyday.Bucketer
	minBuyUSD decimal.Decimal
	window    domain.ContestWindow
	logger    zerolog.Logger
}

// New creates an Aggregator.
func New(opts Options) (*Aggregator, error) {
	if opts.Wallets == nil {
		return nil, fmt.Errorf("aggregator: wallet store is required")
	}
	if opts.Prices == nil {
		return nil, fmt.Errorf("aggregator: price oracle is required")
	}

	logger := log.Logger.With().Str("component", "aggregator").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Aggregator{
		wallets:   opts.Wallets,
		prices:    opts.Prices,
		bucketer:  opts.Bucketer,
		minBuyUSD: opts.MinBuyUSD,
		window:    opts.Window,
		logger:    logger,
	}, nil
}

// ApplyBuy credits a buy to its recipient wallet.
// Buys worth less than the minimum USD threshold are discarded silently.
func (a *Aggregator) ApplyBuy(ctx context.Context, tx *domain.LedgeredTransaction) (Outcome, error) {
	if tx == nil || tx.Kind != domain.TxKindBuy {
		return "", ErrWrongKind
	}
	if !a.window.Contains(tx.Timestamp) {
		return OutcomeOutsideWindow, nil
	}

	price := a.prices.CurrentPriceUSD(ctx)
	usdValue := tx.TokenAmount.Mul(price)
	if usdValue.LessThan(a.minBuyUSD) {
		a.logger.Debug().
			Str("tx_hash", tx.Hash).
			Str("usd_value", usdValue.StringFixed(4)).
			Msg("buy below minimum, discarded")
		return OutcomeBelowMinimum, nil
	}

	rec := domain.BuyRecord{
		TxHash:      tx.Hash,
		TokenAmount: tx.TokenAmount,
		USDValue:    usdValue,
		Timestamp:   tx.Timestamp,
	}
	day := a.bucketer.Label(tx.Timestamp)

	outcome := OutcomeDuplicate
	err := a.wallets.Update(ctx, tx.To, func(w *domain.WalletAggregate) (bool, error) {
		if !w.AddBuy(rec, day) {
			return false, nil
		}
		outcome = OutcomeApplied
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("apply buy %s: %w", tx.Hash, err)
	}

	if outcome == OutcomeApplied {
		a.logger.Debug().
			Str("tx_hash", tx.Hash).
			Str("wallet", tx.To).
			Str("amount", tx.TokenAmount.String()).
			Str("buy_day", day).
			Msg("buy applied")
	}
	return outcome, nil
}

// ApplySell disqualifies the sending wallet, creating it if unknown.
func (a *Aggregator) ApplySell(ctx context.Context, tx *domain.LedgeredTransaction) (Outcome, error) {
	if tx == nil || tx.Kind != domain.TxKindSell {
		return "", ErrWrongKind
	}
	if !a.window.Contains(tx.Timestamp) {
		return OutcomeOutsideWindow, nil
	}

	outcome := OutcomeAlreadyDisqualified
	err := a.wallets.Update(ctx, tx.From, func(w *domain.WalletAggregate) (bool, error) {
		if !w.Disqualify(tx.Timestamp) {
			return false, nil
		}
		outcome = OutcomeDisqualified
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("apply sell %s: %w", tx.Hash, err)
	}

	if outcome == OutcomeDisqualified {
		a.logger.Info().
			Str("tx_hash", tx.Hash).
			Str("wallet", tx.From).
			Msg("wallet disqualified")
	}
	return outcome, nil
}

// Apply dispatches on tx.Kind.
func (a *Aggregator) Apply(ctx context.Context, tx *domain.LedgeredTransaction) (Outcome, error) {
	if tx == nil {
		return "", ErrWrongKind
	}
	switch tx.Kind {
	case domain.TxKindBuy:
		return a.ApplyBuy(ctx, tx)
	case domain.TxKindSell:
		return a.ApplySell(ctx, tx)
	default:
		return "", ErrWrongKind
	}
}
