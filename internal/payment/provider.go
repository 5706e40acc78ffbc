// Package payment abstracts the external payment provider used to settle
// marketplace purchases. The ledger only ever trusts a capture whose
// status is "completed"; provider failures surface as errors wrapping
// ErrProvider and never touch account balances.
package payment

import (
	"context"
	"errors"
)

var ErrProvider = errors.New("payment provider error")

// StatusCompleted is the only capture status the settlement layer acts on.
const StatusCompleted = "completed"

type Order struct {
	Ref        string
	ApproveURL string
}

type Capture struct {
	Status      string
	AmountCents int64
}

type Provider interface {
	CreateOrder(ctx context.Context, amountCents int64, description string) (*Order, error)
	CaptureOrder(ctx context.Context, ref string) (*Capture, error)
}
