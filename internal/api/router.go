package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter constructs the router with all API endpoints registered.
func NewRouter(deps Deps) http.Handler {
	h := NewHandler(deps)
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// accounts
	r.Post("/register", h.RegisterHandler)
	r.Get("/account/{phone}/balance", h.GetBalanceHandler)
	r.Get("/account/{phone}/transactions", h.ListTransactionsHandler)
	r.Post("/account/deposit", h.DepositHandler)
	r.Post("/account/withdraw", h.WithdrawHandler)
	r.Post("/account/convert", h.ConvertHandler)
	r.Get("/rate", h.RateHandler)

	// crash game
	r.Get("/gambling/round", h.GetRoundHandler)
	r.Post("/gambling/bet", h.PlaceBetHandler)
	r.Post("/gambling/cashout", h.CashOutHandler)
	r.Get("/gambling/history/{phone}", h.BetHistoryHandler)
	r.Post("/admin/revenue", h.RevenueHandler)

	// debt marketplace
	r.Get("/debts", h.ListOpenListingsHandler)
	r.Post("/debts", h.CreateListingHandler)
	r.Get("/debts/sell/{phone}", h.ListingsByOwnerHandler)
	r.Get("/debts/bought/{phone}", h.ListingsByBuyerHandler)
	r.Post("/market/{method}/prepare", h.PrepareHandler)
	r.Post("/market/{method}/confirm", h.ConfirmHandler)

	return r
}
