package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/api"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/infra/logging"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/infra/pgutils"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/payment"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/rates"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/round"
	pgaccounts "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/accounts/postgres"
	pglistings "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/listings/postgres"
	pgrevenue "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/revenue/postgres"
	pgtransactions "github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/transactions/postgres"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/market"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/settlement"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/wager"
	"github.com/michaelsminev-ctrl/alosbanque-backend/pkg/envconf"
	"github.com/michaelsminev-ctrl/alosbanque-backend/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add(func(context.Context) error {
		slog.Info("Close database pool")
		return db.Close()
	})

	// --- Services ---
	settle := settlement.New(db, cfg.PlatformAccount)
	wagerCoord := wager.New(db, nil, settle)

	engine := round.New(wagerCoord, cfg.Round)
	wagerCoord.SetRounds(engine)

	// Refund bets orphaned by a previous crash before new rounds start.
	refunded, err := wagerCoord.RecoverAbandoned(ctx)
	if err != nil {
		return fmt.Errorf("recover abandoned bets: %w", err)
	}

	if refunded > 0 {
		slog.Info("refunded abandoned bets", "count", refunded)
	}

	engineCtx, stopEngine := context.WithCancel(context.Background())
	go engine.Run(engineCtx)

	shutdownqueue.Add(func(context.Context) error {
		slog.Info("Stop round engine")
		stopEngine()
		return nil
	})

	rateSrc := rates.NewCached(rates.NewHTTP(cfg.Rates), cfg.Rates.TTL)

	markets := map[string]*market.Service{
		"paypal": market.New(db, settle, payment.NewPayPal(cfg.PayPal), cfg.Market),
		"crypto": market.New(db, settle, payment.NewSimulator(), cfg.Market),
	}

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.Deps{
		Accounts:     pgaccounts.New(db),
		Transactions: pgtransactions.New(db),
		Listings:     pglistings.New(db),
		Revenue:      pgrevenue.New(db),
		Settle:       settle,
		Wager:        wagerCoord,
		Rounds:       engine,
		Markets:      markets,
		Rates:        rateSrc,
	})

	// Register HTTP server graceful shutdown
	shutdownqueue.Add(func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
