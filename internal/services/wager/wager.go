// Package wager mediates player bet and cash-out requests between the
// round state machine and the settlement engine, and books house revenue
// when stakes are forfeited at a crash.
package wager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/infra/pgutils"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/money"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/bets"
	pgbets "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/bets/postgres"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/revenue"
	pgrevenue "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/revenue/postgres"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/round"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/settlement"
)

var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrRoundNotAcceptingBets   = errors.New("round not accepting bets")
	ErrRoundNotLaunched        = errors.New("round not launched")
	ErrRoundAlreadyCrashed     = errors.New("round already crashed")
	ErrMultiplierExceedsTarget = errors.New("multiplier exceeds round target")
	ErrBetRoundMismatch        = errors.New("bet belongs to another round")
)

// targetEpsilon absorbs float round-tripping through JSON when comparing a
// requested multiplier against the round target.
const targetEpsilon = 1e-6

// RoundSource is the read side of the round engine.
type RoundSource interface {
	Snapshot() round.Snapshot
}

type Coordinator struct {
	db      *sql.DB
	rounds  RoundSource
	settle  *settlement.Engine
	bets    bets.Bets
	revenue revenue.Revenue
	now     func() time.Time
}

func New(db *sql.DB, rounds RoundSource, settle *settlement.Engine) *Coordinator {
	return &Coordinator{
		db:      db,
		rounds:  rounds,
		settle:  settle,
		bets:    pgbets.New(db),
		revenue: pgrevenue.New(db),
		now:     time.Now,
	}
}

// SetRounds wires in the round engine after construction. The engine is
// built with the coordinator as its crash handler, so one of the two has
// to be attached late; call this before serving traffic.
func (c *Coordinator) SetRounds(r RoundSource) {
	c.rounds = r
}

type PlacedBet struct {
	BetID            int64
	NewBalance       int64
	RoundID          int64
	Seed             string
	TargetMultiplier float64
}

// PlaceBet debits the stake and records the bet against the round's
// seed/target captured now, in one DB transaction. Bets are only accepted
// during the countdown phase.
func (c *Coordinator) PlaceBet(ctx context.Context, accountID, stake int64) (*PlacedBet, error) {
	if stake <= 0 {
		return nil, ErrInvalidAmount
	}

	snap := c.rounds.Snapshot()
	if snap.Phase != round.PhaseCountdown {
		return nil, ErrRoundNotAcceptingBets
	}

	out := &PlacedBet{
		RoundID:          snap.ID,
		Seed:             snap.Seed,
		TargetMultiplier: snap.TargetMultiplier,
	}

	err := pgutils.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		newBalance, err := c.settle.ApplyDeltaTx(tx, accountID, -stake, settlement.KindGambleBet)
		if err != nil {
			return fmt.Errorf("debit stake: %w", err)
		}

		betID, err := c.bets.Insert(tx, accountID, snap.Seed, snap.TargetMultiplier, stake)
		if err != nil {
			return fmt.Errorf("record bet: %w", err)
		}

		out.BetID = betID
		out.NewBalance = newBalance

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("place bet: %w", err)
	}

	return out, nil
}

type CashoutResult struct {
	NewBalance int64
	Payout     int64
	Profit     int64
}

// CashOut resolves one explicit bet at the given multiplier. The payout is
// computed from the stored stake, never from the request, and the bet must
// belong to the live round.
func (c *Coordinator) CashOut(ctx context.Context, accountID, betID int64, multiplier float64) (*CashoutResult, error) {
	if multiplier < 1 {
		return nil, ErrInvalidAmount
	}

	snap := c.rounds.Snapshot()

	if snap.Phase != round.PhaseLaunch {
		return nil, ErrRoundNotLaunched
	}

	if multiplier > snap.TargetMultiplier+targetEpsilon {
		return nil, ErrMultiplierExceedsTarget
	}

	if !c.now().Before(snap.CrashAt) {
		return nil, ErrRoundAlreadyCrashed
	}

	out := new(CashoutResult)

	err := pgutils.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		b, err := c.bets.LockUnresolved(tx, betID)
		if err != nil {
			return fmt.Errorf("lock bet: %w", err)
		}

		if b.AccountID != accountID {
			return fmt.Errorf("owner check: %w", bets.ErrBetNotFound)
		}

		if b.Seed != snap.Seed {
			return ErrBetRoundMismatch
		}

		payout := money.MulRound(b.Stake, multiplier)
		profit := payout - b.Stake

		newBalance, err := c.settle.ApplyDeltaTx(tx, accountID, payout, settlement.KindGambleCashout)
		if err != nil {
			return fmt.Errorf("credit payout: %w", err)
		}

		err = c.bets.ResolveCashout(tx, betID, multiplier, payout, profit)
		if err != nil {
			return fmt.Errorf("resolve bet: %w", err)
		}

		out.NewBalance = newBalance
		out.Payout = payout
		out.Profit = profit

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cash out: %w", err)
	}

	return out, nil
}

// ForfeitRound settles every bet of the crashed round that has no cashout:
// profit = -stake and one casino revenue row each, all in one DB
// transaction. Bets already cashed out are untouched, so repeating the
// call for the same round is a no-op.
func (c *Coordinator) ForfeitRound(ctx context.Context, roundID int64, seed string, target float64) error {
	var count int
	var total int64

	err := pgutils.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		forfeited, err := c.bets.ForfeitBySeed(tx, seed)
		if err != nil {
			return fmt.Errorf("forfeit bets: %w", err)
		}

		for _, f := range forfeited {
			err = c.revenue.Insert(tx, f.AccountID, f.BetID, f.Stake, roundID, target)
			if err != nil {
				return fmt.Errorf("record revenue: %w", err)
			}

			total += f.Stake
		}

		count = len(forfeited)

		return nil
	})
	if err != nil {
		return fmt.Errorf("forfeit round: %w", err)
	}

	if count > 0 {
		slog.Info("round forfeited",
			"roundId", roundID, "bets", count, "revenue", money.FormatCents(total))
	}

	return nil
}

// RecoverAbandoned refunds every bet left unresolved by a previous process
// (the in-flight round does not survive restarts). Runs once at startup,
// before the round engine starts ticking.
func (c *Coordinator) RecoverAbandoned(ctx context.Context) (int, error) {
	var count int

	err := pgutils.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		abandoned, err := c.bets.UnresolvedForUpdate(tx)
		if err != nil {
			return fmt.Errorf("load unresolved: %w", err)
		}

		for _, b := range abandoned {
			_, err = c.settle.ApplyDeltaTx(tx, b.AccountID, b.Stake, settlement.KindGamblingWin)
			if err != nil {
				return fmt.Errorf("refund stake: %w", err)
			}

			err = c.bets.Refund(tx, b.ID)
			if err != nil {
				return fmt.Errorf("mark refunded: %w", err)
			}
		}

		count = len(abandoned)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recover abandoned bets: %w", err)
	}

	return count, nil
}

// History returns the account's most recent bets.
func (c *Coordinator) History(ctx context.Context, accountID int64, limit int) ([]bets.Bet, error) {
	rows, err := c.bets.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("bet history: %w", err)
	}

	return rows, nil
}
