package domain

import "github.com/shopspring/decimal"

// ContestWinner is the single finalized result of the contest.
// At most one exists per deployment.
type ContestWinner struct {
	Address     string
	TotalBought decimal.Decimal
	BuyDays     []string
	CreatedAt   int64 // finalization time, Unix timestamp in seconds
}
