package bets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/bets"
)

var _ bets.Bets = (*betsRepo)(nil)

type betsRepo struct{ db *sql.DB }

func New(db *sql.DB) *betsRepo {
	return &betsRepo{db: db}
}

const betColumns = `
	id, account_id, seed, target_multiplier, stake,
	cashout_multiplier, payout, profit, created_at, resolved_at
`

func scanBet(s interface{ Scan(...any) error }) (*bets.Bet, error) {
	b := new(bets.Bet)

	err := s.Scan(
		&b.ID, &b.AccountID, &b.Seed, &b.TargetMultiplier, &b.Stake,
		&b.CashoutMultiplier, &b.Payout, &b.Profit, &b.CreatedAt, &b.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (r *betsRepo) Insert(tx *sql.Tx, accountID int64, seed string, target float64, stake int64) (int64, error) {
	var id int64

	err := tx.QueryRow(`
		INSERT INTO bets (account_id, seed, target_multiplier, stake)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, accountID, seed, target, stake).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert bet: %w", err)
	}

	return id, nil
}

func (r *betsRepo) LockUnresolved(tx *sql.Tx, betID int64) (*bets.Bet, error) {
	b, err := scanBet(tx.QueryRow(`
		SELECT `+betColumns+`
		FROM bets
		WHERE id = $1
		FOR UPDATE
	`, betID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bets.ErrBetNotFound
		}

		return nil, fmt.Errorf("lock bet: %w", err)
	}

	if b.ResolvedAt != nil {
		return nil, bets.ErrBetAlreadyResolved
	}

	return b, nil
}

func (r *betsRepo) ResolveCashout(tx *sql.Tx, betID int64, multiplier float64, payout, profit int64) error {
	res, err := tx.Exec(`
		UPDATE bets
		SET cashout_multiplier = $2,
		    payout = $3,
		    profit = $4,
		    resolved_at = now()
		WHERE id = $1
		  AND resolved_at IS NULL
	`, betID, multiplier, payout, profit)
	if err != nil {
		return fmt.Errorf("resolve cashout: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return bets.ErrBetAlreadyResolved
	}

	return nil
}

func (r *betsRepo) ForfeitBySeed(tx *sql.Tx, seed string) ([]bets.Forfeited, error) {
	rows, err := tx.Query(`
		UPDATE bets
		SET profit = -stake,
		    resolved_at = now()
		WHERE seed = $1
		  AND cashout_multiplier IS NULL
		  AND resolved_at IS NULL
		RETURNING id, account_id, stake
	`, seed)
	if err != nil {
		return nil, fmt.Errorf("forfeit by seed: %w", err)
	}
	defer rows.Close()

	var out []bets.Forfeited

	for rows.Next() {
		var f bets.Forfeited

		err = rows.Scan(&f.BetID, &f.AccountID, &f.Stake)
		if err != nil {
			return nil, fmt.Errorf("scan forfeited: %w", err)
		}

		out = append(out, f)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate forfeited: %w", err)
	}

	return out, nil
}

func (r *betsRepo) UnresolvedForUpdate(tx *sql.Tx) ([]bets.Bet, error) {
	rows, err := tx.Query(`
		SELECT ` + betColumns + `
		FROM bets
		WHERE resolved_at IS NULL
		FOR UPDATE
	`)
	if err != nil {
		return nil, fmt.Errorf("select unresolved: %w", err)
	}
	defer rows.Close()

	var out []bets.Bet

	for rows.Next() {
		b, serr := scanBet(rows)
		if serr != nil {
			return nil, fmt.Errorf("scan unresolved: %w", serr)
		}

		out = append(out, *b)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate unresolved: %w", err)
	}

	return out, nil
}

func (r *betsRepo) Refund(tx *sql.Tx, betID int64) error {
	res, err := tx.Exec(`
		UPDATE bets
		SET profit = 0,
		    resolved_at = now()
		WHERE id = $1
		  AND resolved_at IS NULL
	`, betID)
	if err != nil {
		return fmt.Errorf("refund bet: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return bets.ErrBetAlreadyResolved
	}

	return nil
}

func (r *betsRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]bets.Bet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+betColumns+`
		FROM bets
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	var out []bets.Bet

	for rows.Next() {
		b, serr := scanBet(rows)
		if serr != nil {
			return nil, fmt.Errorf("scan bet: %w", serr)
		}

		out = append(out, *b)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate bets: %w", err)
	}

	return out, nil
}
