package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ticoworld/savercoin/internal/aggregator"
	"github.com/Ticoworld/savercoin/internal/buyday"
	"github.com/Ticoworld/savercoin/internal/classifier"
	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/ingestion/stub"
	"github.com/Ticoworld/savercoin/internal/storage"
	"github.com/Ticoworld/savercoin/internal/storage/memory"
)

const (
	testToken  = "0x1111111111111111111111111111111111111111"
	testRouter = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB    = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	walletC    = "0xcccccccccccccccccccccccccccccccccccccccc"
)

var (
	contestStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	contestEnd   = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC).Unix()
	inWindow     = contestStart + 3600
)

type oneDollar struct{}

func (oneDollar) CurrentPriceUSD(context.Context) decimal.Decimal { return decimal.NewFromInt(1) }

// flakyApplier passes the first skip calls, fails the next fails calls,
// then delegates.
type flakyApplier struct {
	next  Applier
	skip  int
	fails int
}

func (f *flakyApplier) Apply(ctx context.Context, tx *domain.LedgeredTransaction) (aggregator.Outcome, error) {
	if f.skip > 0 {
		f.skip--
		return f.next.Apply(ctx, tx)
	}
	if f.fails > 0 {
		f.fails--
		return "", errors.New("wallet store unavailable")
	}
	return f.next.Apply(ctx, tx)
}

type fixture struct {
	ledger      *memory.LedgerStore
	wallets     *memory.WalletStore
	checkpoints *memory.CheckpointStore
	archive     *memory.TransactionArchive
	agg         *aggregator.Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	nop := zerolog.Nop()
	f := &fixture{
		ledger:      memory.NewLedgerStore(),
		wallets:     memory.NewWalletStore(),
		checkpoints: memory.NewCheckpointStore(),
		archive:     memory.NewTransactionArchive(),
	}
	agg, err := aggregator.New(aggregator.Options{
		Wallets:   f.wallets,
		Prices:    oneDollar{},
		Bucketer:  buyday.New(buyday.Day),
		MinBuyUSD: decimal.NewFromInt(10),
		Window:    domain.ContestWindow{Start: contestStart, End: contestEnd},
		Logger:    &nop,
	})
	require.NoError(t, err)
	f.agg = agg
	return f
}

func (f *fixture) driver(t *testing.T, source TransferSource, applier Applier) *Driver {
	t.Helper()
	routers, err := classifier.NewRouterSet([]string{testRouter})
	require.NoError(t, err)
	c, err := classifier.New(testToken, routers)
	require.NoError(t, err)

	if applier == nil {
		applier = f.agg
	}
	nop := zerolog.Nop()
	d, err := NewDriver(DriverOptions{
		Source:        source,
		Classifier:    c,
		Ledger:        f.ledger,
		Checkpoints:   f.checkpoints,
		Aggregator:    applier,
		Archive:       f.archive,
		TokenContract: testToken,
		GenesisBlock:  42,
		Window:        domain.ContestWindow{Start: contestStart, End: contestEnd},
		Logger:        &nop,
	})
	require.NoError(t, err)
	return d
}

func rawTransfer(hash string, block uint64, from, to string) *domain.RawTransfer {
	return &domain.RawTransfer{
		Hash:            hash,
		BlockNumber:     block,
		Timestamp:       inWindow,
		From:            from,
		To:              to,
		ContractAddress: testToken,
		Value:           "100000000000000000000", // 100 tokens
		TokenDecimal:    "18",
	}
}

func TestDriver_CheckpointAdvancesToMaxPlusOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := stub.NewStubTransferSource(stub.Step{Transfers: []*domain.RawTransfer{
		rawTransfer("0x1", 100, testRouter, walletB),
		rawTransfer("0x2", 105, walletB, walletC), // ignored, still counts toward max
		rawTransfer("0x3", 103, testRouter, walletC),
	}})
	d := f.driver(t, src, nil)

	res, err := d.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res.StartBlock)
	assert.Equal(t, uint64(106), res.NextBlock)
	assert.True(t, res.Advanced)
	assert.Equal(t, 1, res.Ignored)
	assert.Equal(t, 2, res.Ledgered)

	cp, err := f.checkpoints.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(106), cp)

	// Next cycle starts from the stored checkpoint.
	_, err = d.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{42, 106}, src.StartBlocks())
}

func TestDriver_EmptyBatchLeavesCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.checkpoints.SetCheckpoint(ctx, 500))

	d := f.driver(t, stub.NewStubTransferSource(stub.Step{}), nil)
	res, err := d.RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Equal(t, uint64(500), res.NextBlock)

	cp, _ := f.checkpoints.GetCheckpoint(ctx)
	assert.Equal(t, uint64(500), cp)
}

func TestDriver_EmptyFirstRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.driver(t, stub.NewStubTransferSource(), nil).RunCycle(ctx)
	require.NoError(t, err)

	_, err = f.checkpoints.GetCheckpoint(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDriver_SourceErrorAbortsCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.checkpoints.SetCheckpoint(ctx, 200))

	src := stub.NewStubTransferSource(stub.Step{Err: errors.New("rate limited")})
	_, err := f.driver(t, src, nil).RunCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	cp, _ := f.checkpoints.GetCheckpoint(ctx)
	assert.Equal(t, uint64(200), cp)
}

func TestDriver_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := []*domain.RawTransfer{
		rawTransfer("0x1", 100, testRouter, walletB),
		rawTransfer("0x2", 101, testRouter, walletB),
	}
	src := stub.NewStubTransferSource(stub.Step{Transfers: batch}, stub.Step{Transfers: batch})
	d := f.driver(t, src, nil)

	_, err := d.RunCycle(ctx)
	require.NoError(t, err)
	res, err := d.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Ledgered)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 0, res.Reaggregated)

	n, _ := f.ledger.Count(ctx)
	assert.Equal(t, int64(2), n)

	w, err := f.wallets.Get(ctx, walletB)
	require.NoError(t, err)
	assert.Len(t, w.Buys, 2)
	assert.True(t, w.TotalBought.Equal(decimal.NewFromInt(200)), "total = %s", w.TotalBought)
}

func TestDriver_SellDisqualifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := stub.NewStubTransferSource(stub.Step{Transfers: []*domain.RawTransfer{
		rawTransfer("0x1", 100, testRouter, walletB),
		rawTransfer("0x2", 101, walletB, testRouter),
	}})

	res, err := f.driver(t, src, nil).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Outcomes[aggregator.OutcomeApplied])
	assert.Equal(t, 1, res.Outcomes[aggregator.OutcomeDisqualified])

	w, err := f.wallets.Get(ctx, walletB)
	require.NoError(t, err)
	assert.True(t, w.Disqualified())
}

func TestDriver_OutsideWindowSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := rawTransfer("0x1", 100, testRouter, walletB)
	early.Timestamp = contestStart - 1
	late := rawTransfer("0x2", 101, testRouter, walletB)
	late.Timestamp = contestEnd + 1

	res, err := f.driver(t, stub.NewStubTransferSource(stub.Step{Transfers: []*domain.RawTransfer{early, late}}), nil).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.OutsideWindow)
	assert.Equal(t, uint64(102), res.NextBlock)

	_, err = f.ledger.GetByHash(ctx, "0x1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.wallets.Get(ctx, walletB)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDriver_AggregationFailureRetriedNextCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := []*domain.RawTransfer{rawTransfer("0x1", 100, testRouter, walletB)}
	src := stub.NewStubTransferSource(stub.Step{Transfers: batch}, stub.Step{Transfers: batch})
	d := f.driver(t, src, &flakyApplier{next: f.agg, fails: 1})

	_, err := d.RunCycle(ctx)
	require.Error(t, err)
	_, err = f.checkpoints.GetCheckpoint(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound, "checkpoint must not advance on failure")

	row, err := f.ledger.GetByHash(ctx, "0x1")
	require.NoError(t, err)
	assert.False(t, row.Aggregated)

	res, err := d.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Reaggregated)
	assert.Equal(t, uint64(101), res.NextBlock)

	w, err := f.wallets.Get(ctx, walletB)
	require.NoError(t, err)
	assert.Len(t, w.Buys, 1)

	row, _ = f.ledger.GetByHash(ctx, "0x1")
	assert.True(t, row.Aggregated)
}

func TestDriver_ArchivesFreshRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := []*domain.RawTransfer{rawTransfer("0x1", 100, testRouter, walletB)}
	d := f.driver(t, stub.NewStubTransferSource(stub.Step{Transfers: batch}), nil)

	_, err := d.RunCycle(ctx)
	require.NoError(t, err)

	vol, err := f.archive.VolumeByBucket(ctx, 86400, contestStart, contestEnd)
	require.NoError(t, err)
	require.Len(t, vol, 1)
	assert.Equal(t, int64(1), vol[0].Buys)
}

func TestDriver_ArchivesRowsOfAbortedCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := []*domain.RawTransfer{
		rawTransfer("0x1", 100, testRouter, walletB),
		rawTransfer("0x2", 101, testRouter, walletC),
	}
	src := stub.NewStubTransferSource(stub.Step{Transfers: batch}, stub.Step{Transfers: batch})
	d := f.driver(t, src, &flakyApplier{next: f.agg, skip: 1, fails: 1})

	_, err := d.RunCycle(ctx)
	require.Error(t, err)

	vol, err := f.archive.VolumeByBucket(ctx, 86400, contestStart, contestEnd)
	require.NoError(t, err)
	require.Len(t, vol, 1)
	assert.Equal(t, int64(2), vol[0].Buys, "rows ledgered before the abort are archived")

	res, err := d.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 1, res.Reaggregated)

	n, _ := f.ledger.Count(ctx)
	assert.Equal(t, int64(2), n)

	vol, err = f.archive.VolumeByBucket(ctx, 86400, contestStart, contestEnd)
	require.NoError(t, err)
	require.Len(t, vol, 1)
	assert.Equal(t, int64(2), vol[0].Buys)
}

func TestNewDriver_RequiresDependencies(t *testing.T) {
	_, err := NewDriver(DriverOptions{})
	assert.Error(t, err)
}
