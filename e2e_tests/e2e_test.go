// Package e2etests exercises the running API over HTTP. Start the stack
// first (migrator, then api on :8080); tests are skipped when no server
// is listening.
package e2etests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"testing"
	"time"
)

const (
	baseURL = "http://localhost:8080"
	timeout = 5 * time.Second
)

var httpClient = &http.Client{Timeout: timeout}

func requireServer(t *testing.T) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", "localhost:8080", time.Second)
	if err != nil {
		t.Skipf("api not running on :8080, skipping e2e: %v", err)
	}
	_ = conn.Close()
}

func postJSON(t *testing.T, path string, payload any) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	resp, err := httpClient.Post(baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed map[string]any
	_ = json.Unmarshal(raw, &parsed)

	return resp.StatusCode, parsed
}

func getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := httpClient.Get(baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed map[string]any
	_ = json.Unmarshal(raw, &parsed)

	return resp.StatusCode, parsed
}

func uniquePhone() string {
	return fmt.Sprintf("07%08d", rand.Int63n(100_000_000))
}

func TestE2E_AccountFlow(t *testing.T) {
	requireServer(t)

	phone := uniquePhone()
	creds := map[string]any{"phone": phone, "pin": "1234"}

	t.Run("register", func(t *testing.T) {
		code, body := postJSON(t, "/register", creds)
		if code != http.StatusCreated {
			t.Fatalf("register: want 201, got %d (%v)", code, body)
		}
	})

	t.Run("duplicate_register_conflict", func(t *testing.T) {
		code, _ := postJSON(t, "/register", creds)
		if code != http.StatusConflict {
			t.Fatalf("duplicate register: want 409, got %d", code)
		}
	})

	t.Run("initial_balance_zero", func(t *testing.T) {
		code, body := getJSON(t, "/account/"+phone+"/balance")
		if code != http.StatusOK {
			t.Fatalf("balance: want 200, got %d", code)
		}
		if body["balance"] != "0.00" {
			t.Fatalf("initial balance: want 0.00, got %v", body["balance"])
		}
	})

	t.Run("deposit_and_withdraw", func(t *testing.T) {
		code, body := postJSON(t, "/account/deposit",
			map[string]any{"phone": phone, "pin": "1234", "amount": "25.00"})
		if code != http.StatusOK {
			t.Fatalf("deposit: want 200, got %d (%v)", code, body)
		}
		if body["newBalance"] != "25.00" {
			t.Fatalf("after deposit: want 25.00, got %v", body["newBalance"])
		}

		code, body = postJSON(t, "/account/withdraw",
			map[string]any{"phone": phone, "pin": "1234", "amount": "10.50"})
		if code != http.StatusOK {
			t.Fatalf("withdraw: want 200, got %d (%v)", code, body)
		}
		if body["newBalance"] != "14.50" {
			t.Fatalf("after withdraw: want 14.50, got %v", body["newBalance"])
		}
	})

	t.Run("overdraft_withdraw_conflict", func(t *testing.T) {
		code, _ := postJSON(t, "/account/withdraw",
			map[string]any{"phone": phone, "pin": "1234", "amount": "999.00"})
		if code != http.StatusConflict {
			t.Fatalf("overdraft: want 409, got %d", code)
		}
	})

	t.Run("wrong_pin_unauthorized", func(t *testing.T) {
		code, _ := postJSON(t, "/account/deposit",
			map[string]any{"phone": phone, "pin": "0000", "amount": "1.00"})
		if code != http.StatusUnauthorized {
			t.Fatalf("wrong pin: want 401, got %d", code)
		}
	})
}

func TestE2E_RoundAndBet(t *testing.T) {
	requireServer(t)

	phone := uniquePhone()

	if code, _ := postJSON(t, "/register", map[string]any{"phone": phone, "pin": "1234"}); code != http.StatusCreated {
		t.Fatalf("register failed")
	}
	if code, _ := postJSON(t, "/account/deposit",
		map[string]any{"phone": phone, "pin": "1234", "amount": "50.00"}); code != http.StatusOK {
		t.Fatalf("deposit failed")
	}

	// Poll until the round is in countdown, then bet.
	deadline := time.Now().Add(15 * time.Second)

	for {
		if time.Now().After(deadline) {
			t.Fatalf("no countdown phase observed within 15s")
		}

		_, body := getJSON(t, "/gambling/round")
		if body["phase"] == "countdown" {
			break
		}

		time.Sleep(200 * time.Millisecond)
	}

	code, body := postJSON(t, "/gambling/bet",
		map[string]any{"phone": phone, "pin": "1234", "amount": "5.00"})
	if code != http.StatusOK {
		t.Fatalf("bet: want 200, got %d (%v)", code, body)
	}
	if body["newBalance"] != "45.00" {
		t.Fatalf("balance after bet: want 45.00, got %v", body["newBalance"])
	}

	code, history := getJSON(t, "/gambling/history/"+phone)
	if code != http.StatusOK {
		t.Fatalf("history: want 200, got %d (%v)", code, history)
	}
}

func TestE2E_DebtMarketCryptoFlow(t *testing.T) {
	requireServer(t)

	seller := uniquePhone()
	buyer := uniquePhone()

	for _, phone := range []string{seller, buyer} {
		if code, _ := postJSON(t, "/register", map[string]any{"phone": phone, "pin": "1234"}); code != http.StatusCreated {
			t.Fatalf("register %s failed", phone)
		}
	}

	code, body := postJSON(t, "/debts",
		map[string]any{"phone": seller, "pin": "1234", "amount": "20.00", "description": "lunch money"})
	if code != http.StatusCreated {
		t.Fatalf("create listing: want 201, got %d (%v)", code, body)
	}

	listingID := int64(body["listingId"].(float64))

	code, prepared := postJSON(t, "/market/crypto/prepare",
		map[string]any{"phone": buyer, "pin": "1234", "listingIds": []int64{listingID}})
	if code != http.StatusOK {
		t.Fatalf("prepare: want 200, got %d (%v)", code, prepared)
	}
	if prepared["total"] != "20.00" {
		t.Fatalf("prepared total: want 20.00, got %v", prepared["total"])
	}

	ref := prepared["ref"].(string)

	code, confirmed := postJSON(t, "/market/crypto/confirm",
		map[string]any{"phone": buyer, "pin": "1234", "ref": ref})
	if code != http.StatusOK {
		t.Fatalf("confirm: want 200, got %d (%v)", code, confirmed)
	}
	if confirmed["totalGross"] != "20.00" {
		t.Fatalf("gross: want 20.00, got %v", confirmed["totalGross"])
	}

	// Seller credited net of the platform fee.
	_, balance := getJSON(t, "/account/"+seller+"/balance")
	if balance["balance"] != "19.96" {
		t.Fatalf("seller net: want 19.96, got %v", balance["balance"])
	}

	// Replay returns the same settlement, no double credit.
	code, replay := postJSON(t, "/market/crypto/confirm",
		map[string]any{"phone": buyer, "pin": "1234", "ref": ref})
	if code != http.StatusOK {
		t.Fatalf("replay confirm: want 200, got %d (%v)", code, replay)
	}

	_, balance = getJSON(t, "/account/"+seller+"/balance")
	if balance["balance"] != "19.96" {
		t.Fatalf("seller net after replay: want 19.96, got %v", balance["balance"])
	}
}
