package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Simulator is the crypto-path provider: no real blockchain, just a minted
// payment address whose capture always completes for the ordered amount.
type Simulator struct {
	mu     sync.Mutex
	orders map[string]int64
}

var _ Provider = (*Simulator)(nil)

func NewSimulator() *Simulator {
	return &Simulator{orders: make(map[string]int64)}
}

func (s *Simulator) CreateOrder(_ context.Context, amountCents int64, _ string) (*Order, error) {
	ref := "CRYPTO_" + strings.ToUpper(uuid.NewString()[:10])

	s.mu.Lock()
	s.orders[ref] = amountCents
	s.mu.Unlock()

	return &Order{Ref: ref, ApproveURL: ""}, nil
}

func (s *Simulator) CaptureOrder(_ context.Context, ref string) (*Capture, error) {
	s.mu.Lock()
	amount, ok := s.orders[ref]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown order %q", ErrProvider, ref)
	}

	return &Capture{Status: StatusCompleted, AmountCents: amount}, nil
}
