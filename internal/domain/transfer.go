package domain

import "github.com/shopspring/decimal"

// RawTransfer is a token transfer as reported by an upstream source,
// before any validation. Numeric fields are kept as the source sent them.
type RawTransfer struct {
	Hash            string // transaction hash
	BlockNumber     uint64 // block the transfer was mined in
	Timestamp       int64  // block time, Unix timestamp in seconds
	From            string // sender address
	To              string // recipient address
	ContractAddress string // token contract that emitted the transfer
	Value           string // integer amount in base units
	TokenDecimal    string // token decimals as reported by the source
}

// TxKind classifies a ledgered transfer relative to the market.
type TxKind string

const (
	TxKindBuy  TxKind = "buy"
	TxKindSell TxKind = "sell"
)

// Valid reports whether k is one of the known kinds.
func (k TxKind) Valid() bool {
	return k == TxKindBuy || k == TxKindSell
}

// LedgeredTransaction is an accepted buy or sell, keyed by Hash.
// Corresponds to the transactions table in PostgreSQL.
type LedgeredTransaction struct {
	Hash        string          // PRIMARY KEY
	BlockNumber uint64          // block number
	Timestamp   int64           // block time, Unix timestamp in seconds
	From        string          // lower-case sender address
	To          string          // lower-case recipient address
	RawValue    string          // integer amount in base units
	TokenAmount decimal.Decimal // RawValue scaled by token decimals
	Kind        TxKind          // buy | sell
	Aggregated  bool            // wallet effect has been applied
	CreatedAt   int64           // record creation timestamp (ms)
}

// Wallet returns the address whose aggregate this transaction affects:
// the recipient of a buy, the sender of a sell.
func (t *LedgeredTransaction) Wallet() string {
	if t.Kind == TxKindSell {
		return t.From
	}
	return t.To
}
