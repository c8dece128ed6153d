// Package classifier decides whether a raw token transfer is a buy, a sell
// or noise, relative to a configured set of router addresses.
package classifier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/domain"
)

// maxDecimals bounds the token decimals accepted from a source.
// uint256 has at most 78 decimal digits.
const maxDecimals = 77

// Reason explains why a transfer was ignored.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonMissingField   Reason = "missing_field"
	ReasonWrongContract  Reason = "wrong_contract"
	ReasonInvalidValue   Reason = "invalid_value"
	ReasonNonPositive    Reason = "non_positive"
	ReasonNotMarket      Reason = "not_market" // neither side is a router
	ReasonRouterToRouter Reason = "router_to_router"
)

// Result is the outcome of classifying one transfer.
type Result struct {
	Kind   domain.TxKind   // empty when ignored
	Amount decimal.Decimal // decimal-adjusted token amount
	Reason Reason          // set when ignored
}

// Ignored reports whether the transfer produced no buy or sell.
func (r Result) Ignored() bool {
	return r.Kind == ""
}

func ignore(reason Reason) Result {
	return Result{Reason: reason}
}

// Classifier is a pure function over a token contract and router set.
type Classifier struct {
	token   common.Address
	routers RouterSet
}

// New creates a classifier for the given token contract.
func New(tokenContract string, routers RouterSet) (*Classifier, error) {
	if !common.IsHexAddress(tokenContract) {
		return nil, fmt.Errorf("invalid token contract %q", tokenContract)
	}
	if routers.Len() == 0 {
		return nil, fmt.Errorf("router set is empty")
	}
	return &Classifier{
		token:   common.HexToAddress(tokenContract),
		routers: routers,
	}, nil
}

// Classify maps a raw transfer to buy, sell or ignore.
//
// A transfer whose sender is a router and whose recipient is not is a buy.
// The mirror case is a sell. Transfers between two routers or between two
// ordinary wallets are ignored.
func (c *Classifier) Classify(tx *domain.RawTransfer) Result {
	if tx == nil || tx.Hash == "" || tx.From == "" || tx.To == "" {
		return ignore(ReasonMissingField)
	}
	if !common.IsHexAddress(tx.ContractAddress) || common.HexToAddress(tx.ContractAddress) != c.token {
		return ignore(ReasonWrongContract)
	}

	amount, reason := scaleValue(tx.Value, tx.TokenDecimal)
	if reason != ReasonNone {
		return ignore(reason)
	}

	fromRouter := c.routers.Contains(tx.From)
	toRouter := c.routers.Contains(tx.To)
	switch {
	case fromRouter && !toRouter:
		return Result{Kind: domain.TxKindBuy, Amount: amount}
	case toRouter && !fromRouter:
		return Result{Kind: domain.TxKindSell, Amount: amount}
	case fromRouter && toRouter:
		return ignore(ReasonRouterToRouter)
	default:
		return ignore(ReasonNotMarket)
	}
}

// scaleValue parses an integer base-unit value and divides it by 10^decimals.
func scaleValue(value, decimals string) (decimal.Decimal, Reason) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, ReasonMissingField
	}
	raw, err := decimal.NewFromString(value)
	if err != nil || !raw.IsInteger() {
		return decimal.Zero, ReasonInvalidValue
	}

	decimals = strings.TrimSpace(decimals)
	if decimals == "" {
		return decimal.Zero, ReasonMissingField
	}
	dec, err := strconv.Atoi(decimals)
	if err != nil || dec < 0 || dec > maxDecimals {
		return decimal.Zero, ReasonInvalidValue
	}

	amount := raw.Shift(int32(-dec))
	if !amount.IsPositive() {
		return decimal.Zero, ReasonNonPositive
	}
	return amount, ReasonNone
}

// Ledger converts a classified transfer into its ledger form.
func Ledger(tx *domain.RawTransfer, res Result) *domain.LedgeredTransaction {
	return &domain.LedgeredTransaction{
		Hash:        strings.ToLower(tx.Hash),
		BlockNumber: tx.BlockNumber,
		Timestamp:   tx.Timestamp,
		From:        strings.ToLower(tx.From),
		To:          strings.ToLower(tx.To),
		RawValue:    strings.TrimSpace(tx.Value),
		TokenAmount: res.Amount,
		Kind:        res.Kind,
	}
}
