package transactions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/transactions"
)

var _ transactions.Transactions = (*transactionsRepo)(nil)

type transactionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *transactionsRepo {
	return &transactionsRepo{db: db}
}

func (r *transactionsRepo) Insert(tx *sql.Tx, accountID int64, kind string, amount int64) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (account_id, kind, amount)
		VALUES ($1, $2, $3)
	`, accountID, kind, amount)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

func (r *transactionsRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]transactions.Row, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, kind, amount, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []transactions.Row

	for rows.Next() {
		var t transactions.Row

		err = rows.Scan(&t.ID, &t.AccountID, &t.Kind, &t.Amount, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		out = append(out, t)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return out, nil
}
