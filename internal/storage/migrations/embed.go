package migrations

import "embed"

// PostgresFS holds the contest schema: ledger, wallets, sync state, winner.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the transaction archive schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
