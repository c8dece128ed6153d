package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ticoworld/savercoin/internal/domain"
)

// NamedSource pairs a TransferSource with a name for logs and metrics.
type NamedSource struct {
	Name   string
	Source TransferSource
}

// FallbackSource tries each source in order and returns the first success.
type FallbackSource struct {
	sources []NamedSource
	logger  zerolog.Logger
}

// NewFallbackSource creates a fallback chain. Nil sources are skipped.
func NewFallbackSource(logger *zerolog.Logger, sources ...NamedSource) *FallbackSource {
	l := log.Logger.With().Str("component", "fallback_source").Logger()
	if logger != nil {
		l = *logger
	}

	fs := &FallbackSource{logger: l}
	for _, s := range sources {
		if s.Source != nil {
			fs.sources = append(fs.sources, s)
		}
	}
	return fs
}

// FetchTransfers implements TransferSource.
func (f *FallbackSource) FetchTransfers(ctx context.Context, contract string, startBlock uint64) ([]*domain.RawTransfer, error) {
	if len(f.sources) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrSourceUnavailable)
	}

	var errs []error
	for i, s := range f.sources {
		transfers, err := s.Source.FetchTransfers(ctx, contract, startBlock)
		if err == nil {
			if i > 0 {
				f.logger.Warn().Str("source", s.Name).Msg("served by fallback source")
			}
			return transfers, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, ctx.Err())
		}
		f.logger.Warn().Err(err).Str("source", s.Name).Msg("transfer source failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, errors.Join(errs...))
}

var _ TransferSource = (*FallbackSource)(nil)
