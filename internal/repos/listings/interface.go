package listings

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrNotListed       = errors.New("listing no longer for sale")
)

const (
	StatusListed = "listed"
	StatusSold   = "sold"
)

// Listing is a debt claim offered for sale on the marketplace.
// Status only ever moves listed -> sold.
type Listing struct {
	ID          int64
	Amount      int64 // cents
	Description string
	OwnerID     int64
	BuyerID     *int64
	Status      string
	CreatedAt   time.Time
}

type Listings interface {
	Create(ctx context.Context, ownerID, amount int64, description string) (int64, error)
	ListOpen(ctx context.Context) ([]Listing, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Listing, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]Listing, error)
	GetMany(ctx context.Context, ids []int64) ([]Listing, error)

	// LockListed loads a listing FOR UPDATE and fails with ErrNotListed
	// when it is no longer for sale.
	LockListed(tx *sql.Tx, id int64) (*Listing, error)
	MarkSold(tx *sql.Tx, id, buyerID int64) error
}
