// Package market reconciles debt-listing purchases confirmed by an
// external payment provider: capture is verified before any ledger
// mutation, then each listing settles in its own atomic unit so a crash
// mid-batch leaves every listing either fully resolved or untouched.
package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/infra/pgutils"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/payment"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/listings"
	pglistings "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/listings/postgres"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/settlement"
)

var (
	ErrNothingPurchasable = errors.New("no purchasable listing")
	ErrUnknownSession     = errors.New("unknown settlement session")
	ErrSessionExpired     = errors.New("settlement session expired")
	ErrBuyerMismatch      = errors.New("session belongs to another buyer")
	ErrAmountMismatch     = errors.New("captured amount does not match session total")
)

// amountToleranceCents absorbs provider-side rounding when cross-checking
// the captured gross against the session total.
const amountToleranceCents = 5

type Config struct {
	FeeRate    float64       `env:"PLATFORM_FEE_PCT" envDefault:"0.002"`
	SessionTTL time.Duration `env:"MARKET_SESSION_TTL" envDefault:"10m"`
}

type Service struct {
	db       *sql.DB
	settle   *settlement.Engine
	listings listings.Listings
	provider payment.Provider
	sessions *sessionStore
	feeRate  float64
}

func New(db *sql.DB, settle *settlement.Engine, provider payment.Provider, cfg Config) *Service {
	return &Service{
		db:       db,
		settle:   settle,
		listings: pglistings.New(db),
		provider: provider,
		sessions: newSessionStore(cfg.SessionTTL),
		feeRate:  cfg.FeeRate,
	}
}

type Prepared struct {
	Ref        string
	ApproveURL string
	Total      int64
	FeeRate    float64
	ExpiresIn  time.Duration
	Listings   []listings.Listing
}

// Prepare filters the requested listings down to what the buyer can
// actually purchase, opens a provider order for the total, and keeps an
// ephemeral session keyed by the provider reference.
func (s *Service) Prepare(ctx context.Context, buyerID int64, listingIDs []int64) (*Prepared, error) {
	rows, err := s.listings.GetMany(ctx, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}

	var valid []listings.Listing
	var total int64

	for _, l := range rows {
		if l.Status == listings.StatusListed && l.OwnerID != buyerID {
			valid = append(valid, l)
			total += l.Amount
		}
	}

	if len(valid) == 0 {
		return nil, ErrNothingPurchasable
	}

	order, err := s.provider.CreateOrder(ctx, total, basketDescription(valid))
	if err != nil {
		return nil, fmt.Errorf("create provider order: %w", err)
	}

	ids := make([]int64, len(valid))
	for i, l := range valid {
		ids[i] = l.ID
	}

	s.sessions.put(order.Ref, ids, total, buyerID)

	return &Prepared{
		Ref:        order.Ref,
		ApproveURL: order.ApproveURL,
		Total:      total,
		FeeRate:    s.feeRate,
		ExpiresIn:  s.sessions.ttl,
		Listings:   valid,
	}, nil
}

type SettledListing struct {
	ListingID int64
	Gross     int64
	Fee       int64
	Net       int64
	Skipped   bool
}

type Result struct {
	Debts      []SettledListing
	TotalGross int64
	TotalFee   int64
	TotalNet   int64
	FeeRate    float64
}

// Confirm verifies the provider capture against the session, then settles
// each listing that is still for sale; listings sold out from under the
// session are skipped individually. Replaying a confirmed session returns
// the cached result.
func (s *Service) Confirm(ctx context.Context, ref string, buyerID int64) (*Result, error) {
	sess, ok, expired := s.sessions.get(ref)
	if expired {
		return nil, ErrSessionExpired
	}

	if !ok {
		return nil, ErrUnknownSession
	}

	if sess.buyerID != buyerID {
		return nil, ErrBuyerMismatch
	}

	if sess.result != nil {
		return sess.result, nil
	}

	// External capture first; no ledger action happens unless it
	// completed for the expected amount.
	capture, err := s.provider.CaptureOrder(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("capture order: %w", err)
	}

	if capture.Status != payment.StatusCompleted {
		return nil, fmt.Errorf("%w: capture status %q", payment.ErrProvider, capture.Status)
	}

	if diff := capture.AmountCents - sess.total; diff > amountToleranceCents || diff < -amountToleranceCents {
		return nil, fmt.Errorf("%w: captured %d, expected %d", ErrAmountMismatch, capture.AmountCents, sess.total)
	}

	result := &Result{FeeRate: s.feeRate, TotalGross: capture.AmountCents}

	for _, listingID := range sess.listingIDs {
		settled, serr := s.settleListing(ctx, listingID, buyerID)
		if serr != nil {
			return nil, serr
		}

		result.Debts = append(result.Debts, settled)

		if !settled.Skipped {
			result.TotalFee += settled.Fee
			result.TotalNet += settled.Net
		}
	}

	s.sessions.resolve(ref, result)

	return result, nil
}

// settleListing runs one listing's settlement as its own atomic unit:
// re-check, credit the owner net of fee, flip to sold.
func (s *Service) settleListing(ctx context.Context, listingID, buyerID int64) (SettledListing, error) {
	out := SettledListing{ListingID: listingID}

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		l, err := s.listings.LockListed(tx, listingID)
		if err != nil {
			if errors.Is(err, listings.ErrNotListed) || errors.Is(err, listings.ErrListingNotFound) {
				out.Skipped = true

				return nil
			}

			return fmt.Errorf("lock listing: %w", err)
		}

		if l.OwnerID == buyerID {
			out.Skipped = true

			return nil
		}

		fee, net, err := s.settle.TransferWithFeeTx(tx, l.OwnerID, l.Amount, s.feeRate)
		if err != nil {
			return fmt.Errorf("credit owner: %w", err)
		}

		err = s.listings.MarkSold(tx, listingID, buyerID)
		if err != nil {
			return fmt.Errorf("mark sold: %w", err)
		}

		out.Gross = l.Amount
		out.Fee = fee
		out.Net = net

		return nil
	})
	if err != nil {
		return SettledListing{}, fmt.Errorf("settle listing %d: %w", listingID, err)
	}

	return out, nil
}

func basketDescription(rows []listings.Listing) string {
	ids := make([]string, len(rows))
	for i, l := range rows {
		ids[i] = strconv.FormatInt(l.ID, 10)
	}

	return "Debt basket (" + strings.Join(ids, ",") + ")"
}
