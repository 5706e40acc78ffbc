package listings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/listings"
)

var _ listings.Listings = (*listingsRepo)(nil)

type listingsRepo struct{ db *sql.DB }

func New(db *sql.DB) *listingsRepo {
	return &listingsRepo{db: db}
}

const listingColumns = `id, amount, description, owner_account_id, buyer_account_id, status, created_at`

func scanListing(s interface{ Scan(...any) error }) (*listings.Listing, error) {
	l := new(listings.Listing)

	err := s.Scan(&l.ID, &l.Amount, &l.Description, &l.OwnerID, &l.BuyerID, &l.Status, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (r *listingsRepo) Create(ctx context.Context, ownerID, amount int64, description string) (int64, error) {
	var id int64

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO listings (owner_account_id, amount, description)
		VALUES ($1, $2, $3)
		RETURNING id
	`, ownerID, amount, description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert listing: %w", err)
	}

	return id, nil
}

func (r *listingsRepo) ListOpen(ctx context.Context) ([]listings.Listing, error) {
	return r.query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE status = $1
		ORDER BY id DESC
	`, listings.StatusListed)
}

func (r *listingsRepo) ListByOwner(ctx context.Context, ownerID int64) ([]listings.Listing, error) {
	return r.query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE owner_account_id = $1
		ORDER BY id DESC
	`, ownerID)
}

func (r *listingsRepo) ListByBuyer(ctx context.Context, buyerID int64) ([]listings.Listing, error) {
	return r.query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE buyer_account_id = $1
		ORDER BY id DESC
	`, buyerID)
}

func (r *listingsRepo) GetMany(ctx context.Context, ids []int64) ([]listings.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))

	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	return r.query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY id
	`, args...)
}

func (r *listingsRepo) LockListed(tx *sql.Tx, id int64) (*listings.Listing, error) {
	l, err := scanListing(tx.QueryRow(`
		SELECT `+listingColumns+`
		FROM listings
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, listings.ErrListingNotFound
		}

		return nil, fmt.Errorf("lock listing: %w", err)
	}

	if l.Status != listings.StatusListed {
		return nil, listings.ErrNotListed
	}

	return l, nil
}

func (r *listingsRepo) MarkSold(tx *sql.Tx, id, buyerID int64) error {
	res, err := tx.Exec(`
		UPDATE listings
		SET status = $3,
		    buyer_account_id = $2
		WHERE id = $1
		  AND status = $4
	`, id, buyerID, listings.StatusSold, listings.StatusListed)
	if err != nil {
		return fmt.Errorf("mark sold: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return listings.ErrNotListed
	}

	return nil
}

func (r *listingsRepo) query(ctx context.Context, q string, args ...any) ([]listings.Listing, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []listings.Listing

	for rows.Next() {
		l, serr := scanListing(rows)
		if serr != nil {
			return nil, fmt.Errorf("scan listing: %w", serr)
		}

		out = append(out, *l)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	return out, nil
}
