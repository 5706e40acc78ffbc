package revenue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/revenue"
)

var _ revenue.Revenue = (*revenueRepo)(nil)

type revenueRepo struct{ db *sql.DB }

func New(db *sql.DB) *revenueRepo {
	return &revenueRepo{db: db}
}

func (r *revenueRepo) Insert(tx *sql.Tx, accountID, betID, amount, roundID int64, target float64) error {
	_, err := tx.Exec(`
		INSERT INTO casino_revenue (account_id, bet_id, amount, round_id, target_multiplier)
		VALUES ($1, $2, $3, $4, $5)
	`, accountID, betID, amount, roundID, target)
	if err != nil {
		return fmt.Errorf("insert revenue: %w", err)
	}

	return nil
}

func (r *revenueRepo) Total(ctx context.Context) (int64, error) {
	var total int64

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM casino_revenue
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}

	return total, nil
}
