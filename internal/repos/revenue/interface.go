package revenue

import (
	"context"
	"database/sql"
)

// Revenue records house income: one row per stake forfeited at a crash.
type Revenue interface {
	Insert(tx *sql.Tx, accountID, betID, amount, roundID int64, target float64) error
	Total(ctx context.Context) (int64, error)
}
