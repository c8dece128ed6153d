package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/observability"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// archiveScale is the fractional precision of token_amount in the archive.
const archiveScale = 18

// TransactionArchive implements storage.TransactionArchive using ClickHouse.
// The table is a ReplacingMergeTree keyed by tx_hash, so re-appended rows
// are tolerated and reads use FINAL to see each hash once.
type TransactionArchive struct {
	conn *Conn
}

// NewTransactionArchive creates a new TransactionArchive.
func NewTransactionArchive(conn *Conn) *TransactionArchive {
	return &TransactionArchive{conn: conn}
}

var _ storage.TransactionArchive = (*TransactionArchive)(nil)

// Append sends txs as one batch.
func (a *TransactionArchive) Append(ctx context.Context, txs []*domain.LedgeredTransaction) (err error) {
	if len(txs) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("archive_append", start, err) }(time.Now())

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO transactions_archive (
			tx_hash, block_number, timestamp, from_address, to_address, token_amount, kind
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tx := range txs {
		err = batch.Append(
			tx.Hash, tx.BlockNumber, tx.Timestamp, tx.From, tx.To,
			tx.TokenAmount.Truncate(archiveScale), string(tx.Kind),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// VolumeByBucket sums buys and counts trades per bucket of widthSeconds
// for timestamps in [from, to]. Buckets with no trades are omitted.
func (a *TransactionArchive) VolumeByBucket(ctx context.Context, widthSeconds, from, to int64) (_ []storage.VolumeBucket, err error) {
	if widthSeconds <= 0 || to < from {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("archive_volume", start, err) }(time.Now())

	query := `
		SELECT
			intDiv(timestamp, ?) AS bucket,
			sumIf(token_amount, kind = 'buy') AS buy_volume,
			countIf(kind = 'buy') AS buys,
			countIf(kind = 'sell') AS sells
		FROM transactions_archive FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`

	rows, err := a.conn.Query(ctx, query, widthSeconds, from, to)
	if err != nil {
		return nil, fmt.Errorf("query volume by bucket: %w", err)
	}
	defer rows.Close()

	var result []storage.VolumeBucket
	for rows.Next() {
		var (
			bucket      int64
			volume      decimal.Decimal
			buys, sells uint64
		)
		if err = rows.Scan(&bucket, &volume, &buys, &sells); err != nil {
			return nil, fmt.Errorf("scan volume bucket: %w", err)
		}
		result = append(result, storage.VolumeBucket{
			Bucket:    bucket,
			BuyVolume: volume,
			Buys:      int64(buys),
			Sells:     int64(sells),
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume buckets: %w", err)
	}
	return result, nil
}

func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds())
	if err != nil {
		observability.RecordDBError("clickhouse", operation)
	}
}
