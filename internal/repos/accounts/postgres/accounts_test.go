package accounts

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

func seedAccount(t *testing.T, db *sql.DB, phone, pin string, balance int64) int64 {
	t.Helper()

	var id int64

	err := db.QueryRow(`
		INSERT INTO accounts (phone, pin, balance)
		VALUES ($1, $2, $3)
		RETURNING id
	`, phone, pin, balance).Scan(&id)
	if err != nil {
		t.Fatalf("seed account %s: %v", phone, err)
	}

	return id
}

func TestAccounts_CreateAndAuthenticate(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	id, err := repo.Create(ctx, "0612345678", "4321")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 {
		t.Fatalf("create returned zero id")
	}

	t.Run("duplicate_phone", func(t *testing.T) {
		_, err := repo.Create(ctx, "0612345678", "9999")
		if !errors.Is(err, accounts.ErrDuplicatePhone) {
			t.Fatalf("want ErrDuplicatePhone, got %v", err)
		}
	})

	t.Run("correct_pin", func(t *testing.T) {
		a, err := repo.Authenticate(ctx, "0612345678", "4321")
		if err != nil {
			t.Fatalf("authenticate: %v", err)
		}
		if a.ID != id || a.Balance != 0 || a.IsAdmin {
			t.Fatalf("account state: %+v", a)
		}
	})

	t.Run("wrong_pin", func(t *testing.T) {
		_, err := repo.Authenticate(ctx, "0612345678", "0000")
		if !errors.Is(err, accounts.ErrInvalidCredentials) {
			t.Fatalf("want ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown_phone", func(t *testing.T) {
		_, err := repo.Authenticate(ctx, "0600000000", "4321")
		if !errors.Is(err, accounts.ErrInvalidCredentials) {
			t.Fatalf("want ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestAccounts_GetByPhone(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	seedAccount(t, db, "0699999999", "1111", 1500)

	a, err := repo.GetByPhone(ctx, "0699999999")
	if err != nil {
		t.Fatalf("get by phone: %v", err)
	}
	if a.Balance != 1500 {
		t.Fatalf("balance: want 1500, got %d", a.Balance)
	}

	_, err = repo.GetByPhone(ctx, "0600000001")
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestAccounts_DecreaseBalance_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		start       int64
		amount      int64
		wantBalance int64
		wantErr     bool
	}{
		{name: "partial_decrease", start: 1000, amount: 250, wantBalance: 750},
		{name: "exact_to_zero", start: 300, amount: 300, wantBalance: 0},
		{name: "insufficient_unchanged", start: 200, amount: 300, wantBalance: 200, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			repo := New(db)
			id := seedAccount(t, db, "0612340000", "1234", tt.start)

			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			err = repo.DecreaseBalance(tx, id, tt.amount)

			if tt.wantErr {
				if !errors.Is(err, accounts.ErrInsufficientFunds) {
					t.Fatalf("want ErrInsufficientFunds, got %v", err)
				}
			} else {
				if err != nil {
					t.Fatalf("decrease: %v", err)
				}
				if err := tx.Commit(); err != nil {
					t.Fatalf("commit: %v", err)
				}
			}

			balance, _, err := repo.GetBalances(ctx, id)
			if err != nil {
				t.Fatalf("get balances: %v", err)
			}
			if balance != tt.wantBalance {
				t.Fatalf("final balance: want %d, got %d", tt.wantBalance, balance)
			}
		})
	}
}

func TestAccounts_DecreaseBalance_ConcurrentGuard(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	id := seedAccount(t, db, "0655555555", "5555", 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	success, insufficient := 0, 0

	worker := func(name string) {
		defer wg.Done()

		ctx := context.Background()

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Errorf("[%s] begin tx: %v", name, err)
			return
		}
		defer func() { _ = tx.Rollback() }()

		// Row lock first; the second worker blocks here until commit.
		_, err = repo.LockAndGetBalance(tx, id)
		if err != nil {
			t.Errorf("[%s] lock balance: %v", name, err)
			return
		}

		err = repo.DecreaseBalance(tx, id, 1000)
		if err == nil {
			mu.Lock()
			success++
			mu.Unlock()

			if err := tx.Commit(); err != nil {
				t.Errorf("[%s] commit: %v", name, err)
			}
			return
		}

		if errors.Is(err, accounts.ErrInsufficientFunds) {
			mu.Lock()
			insufficient++
			mu.Unlock()
			return
		}

		t.Errorf("[%s] unexpected error: %v", name, err)
	}

	wg.Add(2)
	go worker("A")
	go worker("B")
	wg.Wait()

	if success != 1 || insufficient != 1 {
		t.Fatalf("want 1 success and 1 insufficient, got success=%d insufficient=%d", success, insufficient)
	}
}

func TestAccounts_IncreaseRUB(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	id := seedAccount(t, db, "0644444444", "4444", 0)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	if err := repo.IncreaseRUB(tx, id, 9500); err != nil {
		t.Fatalf("increase rub: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, rub, err := repo.GetBalances(ctx, id)
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}
	if rub != 9500 {
		t.Fatalf("rub: want 9500, got %d", rub)
	}
}
