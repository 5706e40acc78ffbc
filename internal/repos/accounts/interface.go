package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicatePhone     = errors.New("phone already registered")
)

type Account struct {
	ID        int64
	Phone     string
	Balance   int64 // euro cents
	RUB       int64 // rouble cents, secondary currency
	IsAdmin   bool
	CreatedAt time.Time
}

type Accounts interface {
	Create(ctx context.Context, phone, pin string) (int64, error)
	Authenticate(ctx context.Context, phone, pin string) (*Account, error)
	GetByPhone(ctx context.Context, phone string) (*Account, error)
	GetBalances(ctx context.Context, accountID int64) (balance, rub int64, err error)

	// In-transaction primitives. LockAndGetBalance takes the row lock that
	// serializes concurrent settlements against one account.
	LockAndGetBalance(tx *sql.Tx, accountID int64) (int64, error)
	IncreaseBalance(tx *sql.Tx, accountID int64, amount int64) error
	DecreaseBalance(tx *sql.Tx, accountID int64, amount int64) error
	IncreaseRUB(tx *sql.Tx, accountID int64, amount int64) error
}
