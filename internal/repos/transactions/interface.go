package transactions

import (
	"context"
	"database/sql"
	"time"
)

type Row struct {
	ID        int64
	AccountID int64
	Kind      string
	Amount    int64 // cents; direction is implied by Kind
	CreatedAt time.Time
}

// Transactions is the append-only ledger log. Rows are never updated or
// deleted; every balance mutation pairs with exactly one Insert in the
// same DB transaction.
type Transactions interface {
	Insert(tx *sql.Tx, accountID int64, kind string, amount int64) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]Row, error)
}
