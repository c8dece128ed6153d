package stub

import (
	"context"
	"sync"

	"github.com/Ticoworld/savercoin/internal/domain"
)

// Step is one scripted response of a StubTransferSource.
type Step struct {
	Transfers []*domain.RawTransfer
	Err       error
}

// StubTransferSource replays scripted responses for testing.
// Once the script is exhausted it returns no transfers.
// Implements ingestion.TransferSource interface.
type StubTransferSource struct {
	mu     sync.Mutex
	steps  []Step
	starts []uint64
}

// NewStubTransferSource creates a stub that answers each call with the next step.
func NewStubTransferSource(steps ...Step) *StubTransferSource {
	return &StubTransferSource{steps: steps}
}

// FetchTransfers returns copies of the next scripted transfers.
func (s *StubTransferSource) FetchTransfers(_ context.Context, _ string, startBlock uint64) ([]*domain.RawTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.starts = append(s.starts, startBlock)
	if len(s.steps) == 0 {
		return nil, nil
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}

	result := make([]*domain.RawTransfer, 0, len(step.Transfers))
	for _, t := range step.Transfers {
		copy := *t
		result = append(result, &copy)
	}
	return result, nil
}

// StartBlocks returns the start block of every call so far.
func (s *StubTransferSource) StartBlocks() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.starts...)
}
