package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/money"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/payment"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/rates"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/accounts"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/bets"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/listings"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/revenue"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/transactions"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/market"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/settlement"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/wager"
)

// Deps collects everything the HTTP layer talks to.
type Deps struct {
	Accounts     accounts.Accounts
	Transactions transactions.Transactions
	Listings     listings.Listings
	Revenue      revenue.Revenue
	Settle       *settlement.Engine
	Wager        *wager.Coordinator
	Rounds       wager.RoundSource
	Markets      map[string]*market.Service // keyed by payment method
	Rates        rates.Source
}

// HandlerProvider exposes the HTTP handlers over Deps.
type HandlerProvider struct {
	deps Deps
}

func NewHandler(deps Deps) *HandlerProvider {
	return &HandlerProvider{deps: deps}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)

		http.Error(w, `{"code":"internal","message":"json encode failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "message": msg})
}

// writeDomainError maps sentinel errors from the service layer onto the
// structured {code,message} wire contract.
//
//nolint:cyclop
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, money.ErrInvalidAmount), errors.Is(err, wager.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount is invalid")
	case errors.Is(err, accounts.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "phone or PIN incorrect")
	case errors.Is(err, accounts.ErrDuplicatePhone):
		writeError(w, http.StatusConflict, "phone_taken", "phone already registered")
	case errors.Is(err, accounts.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient_funds", "insufficient funds")
	case errors.Is(err, accounts.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account_not_found", "account not found")
	case errors.Is(err, wager.ErrRoundNotAcceptingBets):
		writeError(w, http.StatusConflict, "round_not_accepting_bets", "round is not in countdown")
	case errors.Is(err, wager.ErrRoundNotLaunched):
		writeError(w, http.StatusConflict, "round_not_launched", "round is not in flight")
	case errors.Is(err, wager.ErrRoundAlreadyCrashed):
		writeError(w, http.StatusConflict, "round_already_crashed", "too late, round is over")
	case errors.Is(err, wager.ErrMultiplierExceedsTarget):
		writeError(w, http.StatusBadRequest, "multiplier_exceeds_target", "multiplier is past the crash point")
	case errors.Is(err, wager.ErrBetRoundMismatch):
		writeError(w, http.StatusConflict, "bet_round_mismatch", "bet belongs to another round")
	case errors.Is(err, bets.ErrBetNotFound):
		writeError(w, http.StatusNotFound, "bet_not_found", "bet not found")
	case errors.Is(err, bets.ErrBetAlreadyResolved):
		writeError(w, http.StatusConflict, "bet_already_resolved", "bet already resolved")
	case errors.Is(err, listings.ErrListingNotFound):
		writeError(w, http.StatusNotFound, "listing_not_found", "listing not found")
	case errors.Is(err, market.ErrNothingPurchasable):
		writeError(w, http.StatusBadRequest, "nothing_purchasable", "no purchasable listing in selection")
	case errors.Is(err, market.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "unknown_session", "unknown settlement session")
	case errors.Is(err, market.ErrSessionExpired):
		writeError(w, http.StatusGone, "session_expired", "settlement session expired")
	case errors.Is(err, market.ErrBuyerMismatch):
		writeError(w, http.StatusForbidden, "buyer_mismatch", "session belongs to another buyer")
	case errors.Is(err, market.ErrAmountMismatch):
		writeError(w, http.StatusConflict, "amount_mismatch", "captured amount does not match")
	case errors.Is(err, payment.ErrProvider):
		writeError(w, http.StatusBadGateway, "payment_provider_error", "payment provider call failed")
	case errors.Is(err, rates.ErrRateUnavailable):
		writeError(w, http.StatusBadGateway, "rate_unavailable", "conversion rate unavailable")
	default:
		slog.Error("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}

		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// credentials is what every authenticated request carries.
type credentials struct {
	Phone string `json:"phone"`
	Pin   string `json:"pin"`
}

func (h *HandlerProvider) authenticate(ctx context.Context, c credentials) (*accounts.Account, error) {
	if c.Phone == "" || c.Pin == "" {
		return nil, accounts.ErrInvalidCredentials
	}

	return h.deps.Accounts.Authenticate(ctx, c.Phone, c.Pin)
}

var pinPattern = regexp.MustCompile(`^\d{4,6}$`)

// --- Account handlers ---

// RegisterHandler handles POST /register
func (h *HandlerProvider) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if req.Phone == "" || !pinPattern.MatchString(req.Pin) {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone required, PIN must be 4-6 digits")
		return
	}

	id, err := h.deps.Accounts.Create(r.Context(), req.Phone, req.Pin)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"accountId": id, "phone": req.Phone})
}

// GetBalanceHandler handles GET /account/{phone}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	a, err := h.deps.Accounts.GetByPhone(r.Context(), phone)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"phone":   a.Phone,
		"balance": money.FormatCents(a.Balance),
		"rub":     money.FormatCents(a.RUB),
	})
}

// ListTransactionsHandler handles GET /account/{phone}/transactions
func (h *HandlerProvider) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	a, err := h.deps.Accounts.GetByPhone(r.Context(), phone)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rows, err := h.deps.Transactions.ListByAccount(r.Context(), a.ID, 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(rows))
	for _, t := range rows {
		out = append(out, map[string]any{
			"id":        t.ID,
			"kind":      t.Kind,
			"amount":    money.FormatCents(t.Amount),
			"createdAt": t.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

type amountRequest struct {
	credentials
	Amount string `json:"amount"`
}

// DepositHandler handles POST /account/deposit (simulated card capture).
func (h *HandlerProvider) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, settlement.KindDeposit, +1)
}

// WithdrawHandler handles POST /account/withdraw
func (h *HandlerProvider) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, settlement.KindWithdraw, -1)
}

func (h *HandlerProvider) applyAmount(w http.ResponseWriter, r *http.Request, kind settlement.Kind, sign int64) {
	var req amountRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.authenticate(r.Context(), req.credentials)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cents, err := money.ParseCents(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	newBalance, err := h.deps.Settle.ApplyDelta(r.Context(), a.ID, sign*cents, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"newBalance": money.FormatCents(newBalance),
	})
}

// ConvertHandler handles POST /account/convert: EUR -> RUB at the live rate.
func (h *HandlerProvider) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.authenticate(r.Context(), req.credentials)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cents, err := money.ParseCents(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rate, err := rates.Rate(r.Context(), h.deps.Rates, "EUR", "RUB")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rub, err := h.deps.Settle.Convert(r.Context(), a.ID, cents, rate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"rate":      rate,
		"converted": money.FormatCents(rub),
	})
}

// RateHandler handles GET /rate
func (h *HandlerProvider) RateHandler(w http.ResponseWriter, r *http.Request) {
	rate, err := rates.Rate(r.Context(), h.deps.Rates, "EUR", "RUB")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"rate": rate})
}

// --- Crash game handlers ---

// GetRoundHandler handles GET /gambling/round — a pure projection of the
// current round, safe to poll.
func (h *HandlerProvider) GetRoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Rounds.Snapshot())
}

type betRequest struct {
	credentials
	Amount string `json:"amount"`
}

// PlaceBetHandler handles POST /gambling/bet
func (h *HandlerProvider) PlaceBetHandler(w http.ResponseWriter, r *http.Request) {
	var req betRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.authenticate(r.Context(), req.credentials)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stake, err := money.ParseCents(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	placed, err := h.deps.Wager.PlaceBet(r.Context(), a.ID, stake)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"betId":      placed.BetID,
		"newBalance": money.FormatCents(placed.NewBalance),
		"round": map[string]any{
			"id":               placed.RoundID,
			"seed":             placed.Seed,
			"targetMultiplier": placed.TargetMultiplier,
		},
	})
}

type cashoutRequest struct {
	credentials
	BetID      int64   `json:"betId"`
	Multiplier float64 `json:"multiplier"`
}

// CashOutHandler handles POST /gambling/cashout
func (h *HandlerProvider) CashOutHandler(w http.ResponseWriter, r *http.Request) {
	var req cashoutRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if req.BetID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "betId required")
		return
	}

	a, err := h.authenticate(r.Context(), req.credentials)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.deps.Wager.CashOut(r.Context(), a.ID, req.BetID, req.Multiplier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"newBalance": money.FormatCents(res.NewBalance),
		"payout":     money.FormatCents(res.Payout),
		"profit":     money.FormatCents(res.Profit),
	})
}

// BetHistoryHandler handles GET /gambling/history/{phone}
func (h *HandlerProvider) BetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	a, err := h.deps.Accounts.GetByPhone(r.Context(), phone)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rows, err := h.deps.Wager.History(r.Context(), a.ID, 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(rows))
	for _, b := range rows {
		item := map[string]any{
			"id":               b.ID,
			"seed":             b.Seed,
			"targetMultiplier": b.TargetMultiplier,
			"stake":            money.FormatCents(b.Stake),
			"createdAt":        b.CreatedAt,
			"resolvedAt":       b.ResolvedAt,
		}

		if b.CashoutMultiplier != nil {
			item["cashoutMultiplier"] = *b.CashoutMultiplier
		}
		if b.Payout != nil {
			item["payout"] = money.FormatCents(*b.Payout)
		}
		if b.Profit != nil {
			item["profit"] = money.FormatCents(*b.Profit)
		}

		out = append(out, item)
	}

	writeJSON(w, http.StatusOK, out)
}

// RevenueHandler handles POST /admin/revenue — total house income from
// forfeited stakes, admin accounts only.
func (h *HandlerProvider) RevenueHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.authenticate(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !a.IsAdmin {
		writeError(w, http.StatusForbidden, "admin_only", "admin account required")
		return
	}

	total, err := h.deps.Revenue.Total(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"total": money.FormatCents(total)})
}

// --- Marketplace handlers ---

// ListOpenListingsHandler handles GET /debts
func (h *HandlerProvider) ListOpenListingsHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.Listings.ListOpen(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listingsJSON(rows))
}

type createListingRequest struct {
	credentials
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// CreateListingHandler handles POST /debts
func (h *HandlerProvider) CreateListingHandler(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.authenticate(r.Context(), req.credentials)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cents, err := money.ParseCents(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id, err := h.deps.Listings.Create(r.Context(), a.ID, cents, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"listingId": id})
}

// ListingsByOwnerHandler handles GET /debts/sell/{phone}
func (h *HandlerProvider) ListingsByOwnerHandler(w http.ResponseWriter, r *http.Request) {
	h.listingsByAccount(w, r, h.deps.Listings.ListByOwner)
}

// ListingsByBuyerHandler handles GET /debts/bought/{phone}
func (h *HandlerProvider) ListingsByBuyerHandler(w http.ResponseWriter, r *http.Request) {
	h.listingsByAccount(w, r, h.deps.Listings.ListByBuyer)
}

func (h *HandlerProvider) listingsByAccount(
	w http.ResponseWriter, r *http.Request,
	list func(context.Context, int64) ([]listings.Listing, error),
) {
	phone := chi.URLParam(r, "phone")

	a, err := h.deps.Accounts.GetByPhone(r.Context(), phone)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rows, err := list(r.Context(), a.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listingsJSON(rows))
}

func listingsJSON(rows []listings.Listing) []map[string]any {
	out := make([]map[string]any, 0, len(rows))

	for _, l := range rows {
		out = append(out, map[string]any{
			"id":          l.ID,
			"amount":      money.FormatCents(l.Amount),
			"description": l.Description,
			"status":      l.Status,
			"createdAt":   l.CreatedAt,
		})
	}

	return out
}

type prepareRequest struct {
	credentials
	ListingIDs []int64 `json:"listingIds"`
}

// PrepareHandler handles POST /market/{method}/prepare
func (h *HandlerProvider) PrepareHandler(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.deps.Markets[chi.URLParam(r, "method")]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown payment method")
		return
	}

	var req prepareRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if len(req.ListingIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "listingIds required")
		return
	}

	a, err := h.authenticate(r.Context(), req.credentials)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	prepared, err := svc.Prepare(r.Context(), a.ID, req.ListingIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ref":          prepared.Ref,
		"approvalUrl":  prepared.ApproveURL,
		"total":        money.FormatCents(prepared.Total),
		"feeRate":      prepared.FeeRate,
		"expiresInSec": int(prepared.ExpiresIn.Seconds()),
		"debts":        listingsJSON(prepared.Listings),
	})
}

type confirmRequest struct {
	credentials
	Ref string `json:"ref"`
}

// ConfirmHandler handles POST /market/{method}/confirm
func (h *HandlerProvider) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.deps.Markets[chi.URLParam(r, "method")]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown payment method")
		return
	}

	var req confirmRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if req.Ref == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "ref required")
		return
	}

	a, err := h.authenticate(r.Context(), req.credentials)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := svc.Confirm(r.Context(), req.Ref, a.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	debts := make([]map[string]any, 0, len(result.Debts))
	for _, d := range result.Debts {
		if d.Skipped {
			debts = append(debts, map[string]any{"debtId": d.ListingID, "skipped": true})
			continue
		}

		debts = append(debts, map[string]any{
			"debtId": d.ListingID,
			"gross":  money.FormatCents(d.Gross),
			"fee":    money.FormatCents(d.Fee),
			"net":    money.FormatCents(d.Net),
			"status": listings.StatusSold,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"debts":      debts,
		"totalGross": money.FormatCents(result.TotalGross),
		"totalFee":   money.FormatCents(result.TotalFee),
		"totalNet":   money.FormatCents(result.TotalNet),
		"feeRate":    result.FeeRate,
	})
}
