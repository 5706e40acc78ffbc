package settlement

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/infra/pgtestutil"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/repos/accounts"
)

func seedAccount(t *testing.T, db *sql.DB, phone string, balance int64) int64 {
	t.Helper()

	var id int64

	err := db.QueryRow(`
		INSERT INTO accounts (phone, pin, balance)
		VALUES ($1, '0000', $2)
		RETURNING id
	`, phone, balance).Scan(&id)
	if err != nil {
		t.Fatalf("seed account %s: %v", phone, err)
	}

	return id
}

func accountBalance(t *testing.T, db *sql.DB, id int64) int64 {
	t.Helper()

	var balance int64
	if err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, id).Scan(&balance); err != nil {
		t.Fatalf("read balance %d: %v", id, err)
	}

	return balance
}

func countTransactions(t *testing.T, db *sql.DB, id int64, kind Kind) int {
	t.Helper()

	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND kind = $2
	`, id, string(kind)).Scan(&n)
	if err != nil {
		t.Fatalf("count transactions: %v", err)
	}

	return n
}

func TestApplyDelta_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		start       int64
		delta       int64
		kind        Kind
		wantBalance int64
		wantErr     error
	}{
		{name: "deposit", start: 0, delta: 1015, kind: KindDeposit, wantBalance: 1015},
		{name: "withdraw_within_funds", start: 1000, delta: -400, kind: KindWithdraw, wantBalance: 600},
		{name: "withdraw_overdraft_rejected", start: 300, delta: -400, kind: KindWithdraw, wantBalance: 300, wantErr: accounts.ErrInsufficientFunds},
		{name: "bet_overdraft_rejected", start: 100, delta: -200, kind: KindGambleBet, wantBalance: 100, wantErr: accounts.ErrInsufficientFunds},
		{name: "loss_may_go_negative", start: 100, delta: -250, kind: KindGamblingLoss, wantBalance: -150},
		{name: "cashout_tolerates_debt", start: -50, delta: -10, kind: KindGambleCashout, wantBalance: -60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			e := New(db, 0)
			id := seedAccount(t, db, "0611111111", tt.start)

			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()

			got, err := e.ApplyDelta(ctx, id, tt.delta, tt.kind)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				// A rejected delta must leave no trace.
				if n := countTransactions(t, db, id, tt.kind); n != 0 {
					t.Fatalf("ledger row written for rejected delta: %d rows", n)
				}
			} else {
				if err != nil {
					t.Fatalf("apply delta: %v", err)
				}
				if got != tt.wantBalance {
					t.Fatalf("returned balance: want %d, got %d", tt.wantBalance, got)
				}
				if n := countTransactions(t, db, id, tt.kind); n != 1 {
					t.Fatalf("ledger rows: want 1, got %d", n)
				}
			}

			if bal := accountBalance(t, db, id); bal != tt.wantBalance {
				t.Fatalf("stored balance: want %d, got %d", tt.wantBalance, bal)
			}
		})
	}
}

func TestApplyDelta_ConcurrentDebitsSerialize(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	e := New(db, 0)
	id := seedAccount(t, db, "0622222222", 10_000)

	// 20 concurrent 1000-cent debits against a 10000-cent balance: exactly
	// 10 commit, the rest fail the pre-check, balance lands on zero.
	const workers = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	success, rejected := 0, 0

	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()

			_, err := e.ApplyDelta(context.Background(), id, -1000, KindWithdraw)
			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				success++
			case errors.Is(err, accounts.ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 10 || rejected != 10 {
		t.Fatalf("want 10 success / 10 rejected, got %d / %d", success, rejected)
	}
	if bal := accountBalance(t, db, id); bal != 0 {
		t.Fatalf("final balance: want 0, got %d", bal)
	}
	if n := countTransactions(t, db, id, KindWithdraw); n != 10 {
		t.Fatalf("ledger rows: want 10, got %d", n)
	}
}

func TestTransferWithFee(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	platformID := seedAccount(t, db, "0600000000", 0)
	sellerID := seedAccount(t, db, "0633333333", 0)

	e := New(db, platformID)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	fee, net, err := e.TransferWithFee(ctx, sellerID, 10_000, 0.002)
	if err != nil {
		t.Fatalf("transfer with fee: %v", err)
	}

	if fee != 20 || net != 9980 {
		t.Fatalf("split: want fee=20 net=9980, got fee=%d net=%d", fee, net)
	}
	if bal := accountBalance(t, db, sellerID); bal != 9980 {
		t.Fatalf("seller balance: want 9980, got %d", bal)
	}
	if bal := accountBalance(t, db, platformID); bal != 20 {
		t.Fatalf("platform balance: want 20, got %d", bal)
	}
}

func TestTransferWithFee_NoPlatformAccount(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	sellerID := seedAccount(t, db, "0633333334", 0)

	e := New(db, 0)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	fee, net, err := e.TransferWithFee(ctx, sellerID, 10_000, 0.002)
	if err != nil {
		t.Fatalf("transfer with fee: %v", err)
	}
	if fee != 20 || net != 9980 {
		t.Fatalf("split: want fee=20 net=9980, got fee=%d net=%d", fee, net)
	}
	if bal := accountBalance(t, db, sellerID); bal != 9980 {
		t.Fatalf("seller balance: want 9980, got %d", bal)
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	e := New(db, 0)
	id := seedAccount(t, db, "0644444444", 10_000)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	rub, err := e.Convert(ctx, id, 2_000, 95.5)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if rub != 191_000 {
		t.Fatalf("rub credit: want 191000, got %d", rub)
	}

	if bal := accountBalance(t, db, id); bal != 8_000 {
		t.Fatalf("eur balance: want 8000, got %d", bal)
	}

	var gotRUB int64
	if err := db.QueryRow(`SELECT rub FROM accounts WHERE id = $1`, id).Scan(&gotRUB); err != nil {
		t.Fatalf("read rub: %v", err)
	}
	if gotRUB != 191_000 {
		t.Fatalf("stored rub: want 191000, got %d", gotRUB)
	}

	if n := countTransactions(t, db, id, KindConvert); n != 1 {
		t.Fatalf("ledger rows: want 1 convert, got %d", n)
	}
}

func TestConvert_InsufficientFunds(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	e := New(db, 0)
	id := seedAccount(t, db, "0655555555", 100)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	_, err := e.Convert(ctx, id, 500, 95.5)
	if !errors.Is(err, accounts.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	// Neither leg applied.
	if bal := accountBalance(t, db, id); bal != 100 {
		t.Fatalf("eur balance changed: %d", bal)
	}

	var gotRUB int64
	if err := db.QueryRow(`SELECT rub FROM accounts WHERE id = $1`, id).Scan(&gotRUB); err != nil {
		t.Fatalf("read rub: %v", err)
	}
	if gotRUB != 0 {
		t.Fatalf("rub leg applied despite failed debit: %d", gotRUB)
	}
}
