package market

import (
	"sync"
	"time"
)

// session links a provider order reference to the listings and total it
// covers. Once confirmed it keeps its result so a replayed confirmation
// returns the same summary instead of touching the ledger again.
type session struct {
	listingIDs []int64
	total      int64
	buyerID    int64
	expiresAt  time.Time
	result     *Result
}

type sessionStore struct {
	mu  sync.Mutex
	m   map[string]*session
	ttl time.Duration
	now func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		m:   make(map[string]*session),
		ttl: ttl,
		now: time.Now,
	}
}

func (s *sessionStore) put(ref string, listingIDs []int64, total, buyerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	s.m[ref] = &session{
		listingIDs: listingIDs,
		total:      total,
		buyerID:    buyerID,
		expiresAt:  s.now().Add(s.ttl),
	}
}

// get returns a copy of the session state. expired reports a session that
// existed but ran out; such sessions are dropped on sight.
func (s *sessionStore) get(ref string) (sess session, ok, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.m[ref]
	if !ok {
		return session{}, false, false
	}

	if s.now().After(stored.expiresAt) {
		delete(s.m, ref)

		return session{}, false, true
	}

	return *stored, true, false
}

func (s *sessionStore) resolve(ref string, result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.m[ref]
	if ok {
		stored.result = result
	}
}

func (s *sessionStore) sweepLocked() {
	now := s.now()

	for ref, sess := range s.m {
		if now.After(sess.expiresAt) {
			delete(s.m, ref)
		}
	}
}
