package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/accounts"
)

var _ accounts.Accounts = (*accountsRepo)(nil)

type accountsRepo struct{ db *sql.DB }

func New(db *sql.DB) *accountsRepo {
	return &accountsRepo{db: db}
}

func (r *accountsRepo) Create(ctx context.Context, phone, pin string) (int64, error) {
	var id int64

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (phone, pin)
		VALUES ($1, $2)
		RETURNING id
	`, phone, pin).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return 0, accounts.ErrDuplicatePhone
		}

		return 0, fmt.Errorf("insert account: %w", err)
	}

	return id, nil
}

func (r *accountsRepo) Authenticate(ctx context.Context, phone, pin string) (*accounts.Account, error) {
	a := new(accounts.Account)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, phone, balance, rub, is_admin, created_at
		FROM accounts
		WHERE phone = $1 AND pin = $2
	`, phone, pin).Scan(&a.ID, &a.Phone, &a.Balance, &a.RUB, &a.IsAdmin, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrInvalidCredentials
		}

		return nil, fmt.Errorf("authenticate: %w", err)
	}

	return a, nil
}

func (r *accountsRepo) GetByPhone(ctx context.Context, phone string) (*accounts.Account, error) {
	a := new(accounts.Account)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, phone, balance, rub, is_admin, created_at
		FROM accounts
		WHERE phone = $1
	`, phone).Scan(&a.ID, &a.Phone, &a.Balance, &a.RUB, &a.IsAdmin, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrAccountNotFound
		}

		return nil, fmt.Errorf("get account: %w", err)
	}

	return a, nil
}

func (r *accountsRepo) GetBalances(ctx context.Context, accountID int64) (int64, int64, error) {
	var balance, rub int64

	err := r.db.QueryRowContext(ctx, `
		SELECT balance, rub
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&balance, &rub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, accounts.ErrAccountNotFound
		}

		return 0, 0, fmt.Errorf("get balances: %w", err)
	}

	return balance, rub, nil
}

func (r *accountsRepo) LockAndGetBalance(tx *sql.Tx, accountID int64) (int64, error) {
	var balance int64

	err := tx.QueryRow(`
		SELECT balance
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrAccountNotFound
		}

		return 0, fmt.Errorf("lock/get balance: %w", err)
	}

	return balance, nil
}

func (r *accountsRepo) IncreaseBalance(tx *sql.Tx, accountID int64, amount int64) error {
	_, err := tx.Exec(`
		UPDATE accounts
		SET balance = balance + $2
		WHERE id = $1
	`, accountID, amount)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
	}

	return nil
}

func (r *accountsRepo) DecreaseBalance(tx *sql.Tx, accountID int64, amount int64) error {
	res, err := tx.Exec(`
		UPDATE accounts
		SET balance = balance - $2
		WHERE id = $1
		  AND balance >= $2
	`, accountID, amount)
	if err != nil {
		return fmt.Errorf("decrease balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return accounts.ErrInsufficientFunds
	}

	return nil
}

func (r *accountsRepo) IncreaseRUB(tx *sql.Tx, accountID int64, amount int64) error {
	_, err := tx.Exec(`
		UPDATE accounts
		SET rub = rub + $2
		WHERE id = $1
	`, accountID, amount)
	if err != nil {
		return fmt.Errorf("increase rub: %w", err)
	}

	return nil
}
