package ingestion

import (
	"context"
	"errors"

	"github.com/Ticoworld/savercoin/internal/domain"
)

// ErrSourceUnavailable wraps every failure to fetch transfers. A cycle that
// sees it aborts without touching the checkpoint.
var ErrSourceUnavailable = errors.New("transfer source unavailable")

// TransferSource provides raw token transfers from external sources.
type TransferSource interface {
	// FetchTransfers returns transfers of contract from startBlock through
	// the latest block, in ascending block order. Zero results is not an error.
	FetchTransfers(ctx context.Context, contract string, startBlock uint64) ([]*domain.RawTransfer, error)
}
