// Package snapshot selects and persists the contest winner once the contest
// has ended.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/observability"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// DefaultMinBuyDays is the lifetime number of distinct buy days a wallet
// needs to win.
const DefaultMinBuyDays = 5

// Outcome is the result of one Finalize call.
type Outcome string

const (
	OutcomeContestActive    Outcome = "contest_active"
	OutcomeAlreadyFinalized Outcome = "already_finalized"
	OutcomeNoEligibleWallet Outcome = "no_eligible_wallet"
	OutcomeWinnerSelected   Outcome = "winner_selected"
)

// Result reports what Finalize did. Winner is set for AlreadyFinalized and
// WinnerSelected.
type Result struct {
	Outcome Outcome
	Winner  *domain.ContestWinner
}

// Options configures a Finalizer.
type Options struct {
	Wallets    storage.WalletStore
	Winners    storage.WinnerStore
	ContestEnd int64 // Unix seconds
	MinBuyDays int
	Now        func() time.Time
	Logger     *zerolog.Logger
}

// Finalizer is safe to invoke repeatedly and concurrently: the winner
// store accepts exactly one insert and later callers observe that record.
type Finalizer struct {
	wallets    storage.WalletStore
	winners    storage.WinnerStore
	contestEnd int64
	minBuyDays int
	now        func() time.Time
	logger     zerolog.Logger
}

// NewFinalizer creates a Finalizer.
func NewFinalizer(opts Options) *Finalizer {
	minDays := opts.MinBuyDays
	if minDays <= 0 {
		minDays = DefaultMinBuyDays
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := log.Logger.With().Str("component", "snapshot").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Finalizer{
		wallets:    opts.Wallets,
		winners:    opts.Winners,
		contestEnd: opts.ContestEnd,
		minBuyDays: minDays,
		now:        now,
		logger:     logger,
	}
}

// Finalize picks the winner if the contest is over and none exists yet.
func (f *Finalizer) Finalize(ctx context.Context) (*Result, error) {
	res, err := f.finalize(ctx)
	if err != nil {
		observability.RecordFinalize("error")
		return nil, err
	}
	observability.RecordFinalize(string(res.Outcome))
	return res, nil
}

func (f *Finalizer) finalize(ctx context.Context) (*Result, error) {
	now := f.now()
	if now.Unix() < f.contestEnd {
		f.logger.Debug().Time("contest_end", time.Unix(f.contestEnd, 0)).Msg("contest not over yet")
		return &Result{Outcome: OutcomeContestActive}, nil
	}

	existing, err := f.winners.Get(ctx)
	switch {
	case err == nil:
		return &Result{Outcome: OutcomeAlreadyFinalized, Winner: existing}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("load winner: %w", err)
	}

	wallets, err := f.wallets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active wallets: %w", err)
	}

	eligible := wallets[:0]
	for _, w := range wallets {
		if w.TotalBought.IsPositive() && len(w.BuyDays) >= f.minBuyDays {
			eligible = append(eligible, w)
		}
	}
	if len(eligible) == 0 {
		f.logger.Warn().Int("active_wallets", len(wallets)).Msg("no eligible wallets")
		return &Result{Outcome: OutcomeNoEligibleWallet}, nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return domain.RanksAbove(eligible[i], eligible[j])
	})
	top := eligible[0]

	winner := &domain.ContestWinner{
		Address:     top.Address,
		TotalBought: top.TotalBought,
		BuyDays:     slices.Clone(top.BuyDays),
		CreatedAt:   now.Unix(),
	}
	if err := f.winners.Insert(ctx, winner); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("save winner: %w", err)
		}
		// Another finalize won the race; report its record.
		stored, err := f.winners.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("load winner after conflict: %w", err)
		}
		return &Result{Outcome: OutcomeAlreadyFinalized, Winner: stored}, nil
	}

	f.logger.Info().
		Str("wallet", winner.Address).
		Str("total_bought", winner.TotalBought.String()).
		Int("buy_days", len(winner.BuyDays)).
		Msg("winner saved")
	return &Result{Outcome: OutcomeWinnerSelected, Winner: winner}, nil
}
