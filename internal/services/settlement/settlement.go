// Package settlement is the only writer of account balances. Every
// mutation locks the account row, applies the delta and appends exactly
// one transaction row, all inside a single DB transaction, so no partial
// application is ever visible to another reader.
package settlement

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/infra/pgutils"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/money"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/accounts"
	pgaccounts "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/accounts/postgres"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/transactions"
	pgtransactions "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/transactions/postgres"
)

type Engine struct {
	db       *sql.DB
	accounts accounts.Accounts
	txns     transactions.Transactions

	// platformAccountID receives marketplace fees. Zero disables the fee
	// credit and the fee is implicitly retained.
	platformAccountID int64
}

func New(db *sql.DB, platformAccountID int64) *Engine {
	return &Engine{
		db:                db,
		accounts:          pgaccounts.New(db),
		txns:              pgtransactions.New(db),
		platformAccountID: platformAccountID,
	}
}

// ApplyDelta applies a signed balance change in its own DB transaction and
// returns the new balance. A negative result is rejected with
// accounts.ErrInsufficientFunds unless the kind is debt-tolerant.
func (e *Engine) ApplyDelta(ctx context.Context, accountID, delta int64, kind Kind) (int64, error) {
	var newBalance int64

	err := pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		nb, err := e.ApplyDeltaTx(tx, accountID, delta, kind)
		if err != nil {
			return err
		}

		newBalance = nb

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("apply delta: %w", err)
	}

	return newBalance, nil
}

// ApplyDeltaTx is ApplyDelta composed into a caller-owned transaction, for
// flows that must couple the balance change with other rows (bet
// placement, listing settlement).
func (e *Engine) ApplyDeltaTx(tx *sql.Tx, accountID, delta int64, kind Kind) (int64, error) {
	// Row lock: the second of two concurrent settlements against one
	// account blocks here and sees the first one's effect.
	balance, err := e.accounts.LockAndGetBalance(tx, accountID)
	if err != nil {
		return 0, fmt.Errorf("lock and get balance: %w", err)
	}

	newBalance := balance + delta
	if newBalance < 0 && !kind.DebtTolerant() {
		return 0, fmt.Errorf("pre-check delta: %w", accounts.ErrInsufficientFunds)
	}

	err = e.accounts.IncreaseBalance(tx, accountID, delta)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	amount := delta
	if amount < 0 {
		amount = -amount
	}

	err = e.txns.Insert(tx, accountID, string(kind), amount)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	return newBalance, nil
}

// TransferWithFeeTx splits a gross sale amount into platform fee and
// seller net, credits the seller and, when configured, credits the fee to
// the platform account.
func (e *Engine) TransferWithFeeTx(tx *sql.Tx, toAccountID, gross int64, feeRate float64) (fee, net int64, err error) {
	fee, net = money.SplitFee(gross, feeRate)

	_, err = e.ApplyDeltaTx(tx, toAccountID, net, KindAssetSaleCredit)
	if err != nil {
		return 0, 0, fmt.Errorf("credit seller: %w", err)
	}

	if e.platformAccountID != 0 && fee > 0 {
		_, err = e.ApplyDeltaTx(tx, e.platformAccountID, fee, KindAssetSaleCredit)
		if err != nil {
			return 0, 0, fmt.Errorf("credit platform fee: %w", err)
		}
	}

	return fee, net, nil
}

// TransferWithFee runs TransferWithFeeTx in its own DB transaction.
func (e *Engine) TransferWithFee(ctx context.Context, toAccountID, gross int64, feeRate float64) (fee, net int64, err error) {
	err = pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		f, n, terr := e.TransferWithFeeTx(tx, toAccountID, gross, feeRate)
		if terr != nil {
			return terr
		}

		fee, net = f, n

		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("transfer with fee: %w", err)
	}

	return fee, net, nil
}

// Convert exchanges euro cents into rouble cents at the given rate. Both
// legs commit together.
func (e *Engine) Convert(ctx context.Context, accountID, eurCents int64, rate float64) (rubCents int64, err error) {
	rubCents = money.MulRound(eurCents, rate)

	err = pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		_, derr := e.ApplyDeltaTx(tx, accountID, -eurCents, KindConvert)
		if derr != nil {
			return derr
		}

		derr = e.accounts.IncreaseRUB(tx, accountID, rubCents)
		if derr != nil {
			return fmt.Errorf("credit rub: %w", derr)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("convert: %w", err)
	}

	return rubCents, nil
}
