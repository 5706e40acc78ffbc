package market

import (
	"testing"
	"time"
)

func TestSessionStore_PutGet(t *testing.T) {
	t.Parallel()

	s := newSessionStore(10 * time.Minute)
	s.put("PAY-1", []int64{1, 2}, 5000, 42)

	sess, ok, expired := s.get("PAY-1")
	if !ok || expired {
		t.Fatalf("get: ok=%v expired=%v", ok, expired)
	}
	if sess.total != 5000 || sess.buyerID != 42 || len(sess.listingIDs) != 2 {
		t.Fatalf("session state: %+v", sess)
	}

	_, ok, expired = s.get("PAY-unknown")
	if ok || expired {
		t.Fatalf("unknown ref: ok=%v expired=%v", ok, expired)
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	t.Parallel()

	s := newSessionStore(10 * time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	s.put("PAY-1", []int64{1}, 1000, 7)

	now = base.Add(9 * time.Minute)
	if _, ok, _ := s.get("PAY-1"); !ok {
		t.Fatalf("session expired too early")
	}

	now = base.Add(11 * time.Minute)

	_, ok, expired := s.get("PAY-1")
	if ok || !expired {
		t.Fatalf("want expired session: ok=%v expired=%v", ok, expired)
	}

	// An expired session is dropped on sight; subsequent reads report it
	// as unknown, not expired.
	_, ok, expired = s.get("PAY-1")
	if ok || expired {
		t.Fatalf("dropped session should read as unknown: ok=%v expired=%v", ok, expired)
	}
}

func TestSessionStore_SweepOnPut(t *testing.T) {
	t.Parallel()

	s := newSessionStore(time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	s.put("PAY-old", []int64{1}, 100, 1)

	now = base.Add(2 * time.Minute)
	s.put("PAY-new", []int64{2}, 200, 2)

	if _, held := s.m["PAY-old"]; held {
		t.Fatalf("expired session survived the sweep")
	}
	if _, held := s.m["PAY-new"]; !held {
		t.Fatalf("fresh session missing after sweep")
	}
}

func TestSessionStore_ResolveCachesResult(t *testing.T) {
	t.Parallel()

	s := newSessionStore(10 * time.Minute)
	s.put("PAY-1", []int64{1}, 1000, 7)

	res := &Result{TotalGross: 1000, TotalNet: 998, TotalFee: 2, FeeRate: 0.002}
	s.resolve("PAY-1", res)

	sess, ok, _ := s.get("PAY-1")
	if !ok || sess.result == nil {
		t.Fatalf("resolved result not readable back")
	}
	if sess.result.TotalNet != 998 {
		t.Fatalf("result mangled: %+v", sess.result)
	}

	// Resolving an unknown ref is a no-op.
	s.resolve("PAY-unknown", res)
}
