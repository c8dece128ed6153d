package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ticoworld/savercoin/internal/aggregator"
	"github.com/Ticoworld/savercoin/internal/classifier"
	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/observability"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// Applier applies a ledgered transaction to wallet state.
type Applier interface {
	Apply(ctx context.Context, tx *domain.LedgeredTransaction) (aggregator.Outcome, error)
}

// Driver runs polling cycles: fetch, classify, ledger, aggregate, checkpoint.
// Cycles are intended to run one at a time; overlapping cycles re-fetch the
// same range and rely on ledger dedup.
type Driver struct {
	source        TransferSource
	classifier    *classifier.Classifier
	ledger        storage.LedgerStore
	checkpoints   storage.CheckpointStore
	aggregator    Applier
	archive       storage.TransactionArchive
	tokenContract string
	genesisBlock  uint64
	window        domain.ContestWindow
	now           func() time.Time
	logger        zerolog.Logger
}

// DriverOptions contains configuration for creating a Driver.
type DriverOptions struct {
	Source        TransferSource
	Classifier    *classifier.Classifier
	Ledger        storage.LedgerStore
	Checkpoints   storage.CheckpointStore
	Aggregator    Applier
	Archive       storage.TransactionArchive // optional analytics mirror
	TokenContract string
	GenesisBlock  uint64 // first block to request when no checkpoint exists
	Window        domain.ContestWindow
	Now           func() time.Time
	Logger        *zerolog.Logger
}

// NewDriver creates a sync driver.
func NewDriver(opts DriverOptions) (*Driver, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("driver: transfer source is required")
	case opts.Classifier == nil:
		return nil, errors.New("driver: classifier is required")
	case opts.Ledger == nil || opts.Checkpoints == nil:
		return nil, errors.New("driver: ledger and checkpoint stores are required")
	case opts.Aggregator == nil:
		return nil, errors.New("driver: aggregator is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := log.Logger.With().Str("component", "sync").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Driver{
		source:        opts.Source,
		classifier:    opts.Classifier,
		ledger:        opts.Ledger,
		checkpoints:   opts.Checkpoints,
		aggregator:    opts.Aggregator,
		archive:       opts.Archive,
		tokenContract: opts.TokenContract,
		genesisBlock:  opts.GenesisBlock,
		window:        opts.Window,
		now:           now,
		logger:        logger,
	}, nil
}

// CycleResult contains statistics from one sync cycle.
type CycleResult struct {
	CycleID       string
	StartBlock    uint64
	NextBlock     uint64 // checkpoint after the cycle
	Advanced      bool   // checkpoint was written
	Fetched       int
	Ignored       int
	OutsideWindow int
	Ledgered      int // newly inserted rows
	Duplicates    int // rows already present
	Reaggregated  int // duplicates whose wallet effect was still pending
	Outcomes      map[aggregator.Outcome]int
	FinishedAt    time.Time
	Duration      time.Duration
}

// RunCycle performs one polling cycle.
//
// Any fetch or storage failure aborts the cycle and leaves the checkpoint
// where it was, so the next cycle re-fetches the same range. Rows ledgered
// before the failure are deduplicated on the retry, and rows whose wallet
// effect was not yet applied are aggregated then.
func (d *Driver) RunCycle(ctx context.Context) (*CycleResult, error) {
	started := d.now()
	result := &CycleResult{
		CycleID:  uuid.NewString(),
		Outcomes: make(map[aggregator.Outcome]int),
	}
	logger := d.logger.With().Str("cycle_id", result.CycleID).Logger()

	err := d.runCycle(ctx, logger, result)

	result.FinishedAt = d.now()
	result.Duration = result.FinishedAt.Sub(started)
	status := "success"
	if err != nil {
		status = "error"
	} else {
		observability.SetLastSuccessfulSync(float64(result.FinishedAt.Unix()))
	}
	observability.RecordSyncCycle(status, result.Duration.Seconds())

	if err != nil {
		logger.Error().Err(err).Uint64("start_block", result.StartBlock).Msg("sync cycle aborted")
		return result, err
	}

	logger.Info().
		Uint64("start_block", result.StartBlock).
		Uint64("next_block", result.NextBlock).
		Int("fetched", result.Fetched).
		Int("ledgered", result.Ledgered).
		Int("duplicates", result.Duplicates).
		Int("ignored", result.Ignored).
		Int("outside_window", result.OutsideWindow).
		Dur("duration", result.Duration).
		Msg("sync cycle complete")
	return result, nil
}

func (d *Driver) runCycle(ctx context.Context, logger zerolog.Logger, result *CycleResult) error {
	start, err := d.startBlock(ctx)
	if err != nil {
		return err
	}
	result.StartBlock = start
	result.NextBlock = start

	transfers, err := d.source.FetchTransfers(ctx, d.tokenContract, start)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return err
	}
	result.Fetched = len(transfers)
	observability.RecordTransfersFetched(len(transfers))

	// Rows inserted or still pending are archived even if the cycle aborts
	// later; re-appending a hash is harmless.
	var (
		maxBlock uint64
		archived []*domain.LedgeredTransaction
	)
	defer func() { d.archiveRows(ctx, logger, archived) }()

	for _, raw := range transfers {
		if raw == nil {
			continue
		}
		if raw.BlockNumber > maxBlock {
			maxBlock = raw.BlockNumber
		}

		res := d.classifier.Classify(raw)
		if res.Ignored() {
			result.Ignored++
			observability.RecordClassification(string(res.Reason))
			logger.Debug().Str("tx_hash", raw.Hash).Str("reason", string(res.Reason)).Msg("transfer ignored")
			continue
		}
		observability.RecordClassification(string(res.Kind))

		if !d.window.Contains(raw.Timestamp) {
			result.OutsideWindow++
			continue
		}

		tx := classifier.Ledger(raw, res)
		tx.CreatedAt = d.now().UnixMilli()

		pending, inserted, err := d.record(ctx, tx)
		if err != nil {
			return err
		}
		if inserted {
			result.Ledgered++
			observability.RecordLedgered(string(tx.Kind))
		} else {
			result.Duplicates++
			observability.RecordLedgerDuplicate()
			if pending == nil {
				continue
			}
			result.Reaggregated++
		}
		archived = append(archived, pending)

		outcome, err := d.aggregator.Apply(ctx, pending)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", pending.Hash, err)
		}
		if err := d.ledger.MarkAggregated(ctx, pending.Hash); err != nil {
			return fmt.Errorf("mark aggregated %s: %w", pending.Hash, err)
		}
		result.Outcomes[outcome]++
		observability.RecordAggregation(string(outcome))
	}

	if len(transfers) > 0 {
		next := maxBlock + 1
		if err := d.checkpoints.SetCheckpoint(ctx, next); err != nil {
			return fmt.Errorf("save checkpoint %d: %w", next, err)
		}
		result.NextBlock = next
		result.Advanced = true
		observability.SetCheckpoint(next)
	}
	return nil
}

// startBlock returns the persisted checkpoint, or the genesis block on first run.
func (d *Driver) startBlock(ctx context.Context) (uint64, error) {
	block, err := d.checkpoints.GetCheckpoint(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return d.genesisBlock, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	return block, nil
}

// record ledgers tx. It returns the row that still needs aggregation (nil if
// none) and whether the row was newly inserted.
func (d *Driver) record(ctx context.Context, tx *domain.LedgeredTransaction) (*domain.LedgeredTransaction, bool, error) {
	err := d.ledger.Insert(ctx, tx)
	if err == nil {
		return tx, true, nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, false, fmt.Errorf("ledger %s: %w", tx.Hash, err)
	}

	existing, err := d.ledger.GetByHash(ctx, tx.Hash)
	if err != nil {
		return nil, false, fmt.Errorf("load ledgered %s: %w", tx.Hash, err)
	}
	if existing.Aggregated {
		return nil, false, nil
	}
	return existing, false, nil
}

func (d *Driver) archiveRows(ctx context.Context, logger zerolog.Logger, txs []*domain.LedgeredTransaction) {
	if d.archive == nil || len(txs) == 0 {
		return
	}
	if err := d.archive.Append(ctx, txs); err != nil {
		observability.RecordArchiveError()
		logger.Warn().Err(err).Int("count", len(txs)).Msg("archive append failed")
	}
}
