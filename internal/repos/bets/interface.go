package bets

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrBetNotFound        = errors.New("bet not found")
	ErrBetAlreadyResolved = errors.New("bet already resolved")
)

// Bet references its round by seed/target captured at placement time, not
// by a live round pointer, so later phase changes cannot alter its terms.
type Bet struct {
	ID                int64
	AccountID         int64
	Seed              string
	TargetMultiplier  float64
	Stake             int64 // cents
	CashoutMultiplier *float64
	Payout            *int64 // cents
	Profit            *int64 // cents, signed
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// Forfeited is the slice element returned by ForfeitBySeed, one per stake
// swallowed by a crash.
type Forfeited struct {
	BetID     int64
	AccountID int64
	Stake     int64
}

type Bets interface {
	Insert(tx *sql.Tx, accountID int64, seed string, target float64, stake int64) (int64, error)

	// LockUnresolved loads a bet FOR UPDATE. ErrBetAlreadyResolved if it
	// has a resolution timestamp.
	LockUnresolved(tx *sql.Tx, betID int64) (*Bet, error)
	ResolveCashout(tx *sql.Tx, betID int64, multiplier float64, payout, profit int64) error

	// ForfeitBySeed marks every still-unresolved bet of the round as lost
	// (profit = -stake) and reports them. Bets with a cashout recorded are
	// untouched, which makes repeated calls no-ops.
	ForfeitBySeed(tx *sql.Tx, seed string) ([]Forfeited, error)

	// UnresolvedForUpdate locks all unresolved bets; used by the startup
	// recovery pass for rounds abandoned in flight.
	UnresolvedForUpdate(tx *sql.Tx) ([]Bet, error)
	Refund(tx *sql.Tx, betID int64) error

	ListByAccount(ctx context.Context, accountID int64, limit int) ([]Bet, error)
}
