package gatekeeper

import (
	"sync"
	"time"
)

// ConfirmTTL is the fixed lifetime of a pending confirmation. Constant
// across all instances.
const ConfirmTTL = 5 * time.Minute

// PendingConfirmation holds a request awaiting the user's go-ahead, e.g.
// before a charged platform-key call.
type PendingConfirmation struct {
	UserID          string
	OriginalMessage string
	Analysis        RoutingDecision
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the confirmation is past its TTL.
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ConfirmStore keeps at most one live confirmation per user. A second
// request while one is pending overwrites the first. Expiry is enforced
// lazily on every read so a dropped timer can never leak entries.
type ConfirmStore struct {
	mu      sync.Mutex
	pending map[string]*PendingConfirmation
	now     func() time.Time
}

// NewConfirmStore creates an empty confirmation store.
func NewConfirmStore() *ConfirmStore {
	return &ConfirmStore{
		pending: make(map[string]*PendingConfirmation),
		now:     time.Now,
	}
}

// Put stores a confirmation for the user, replacing any existing one.
func (s *ConfirmStore) Put(userID, originalMessage string, analysis RoutingDecision) *PendingConfirmation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := &PendingConfirmation{
		UserID:          userID,
		OriginalMessage: originalMessage,
		Analysis:        analysis,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ConfirmTTL),
	}
	s.pending[userID] = p
	return p
}

// Get returns the live confirmation for the user, evicting it first when
// expired.
func (s *ConfirmStore) Get(userID string) (*PendingConfirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	if !ok {
		return nil, false
	}
	if p.Expired(s.now()) {
		delete(s.pending, userID)
		return nil, false
	}
	return p, true
}

// Take returns and removes the live confirmation for the user.
func (s *ConfirmStore) Take(userID string) (*PendingConfirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	if !ok {
		return nil, false
	}
	delete(s.pending, userID)
	if p.Expired(s.now()) {
		return nil, false
	}
	return p, true
}

// CleanupExpired sweeps expired entries and returns how many were removed.
// Optional; lazy eviction already bounds staleness per user.
func (s *ConfirmStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for userID, p := range s.pending {
		if p.Expired(now) {
			delete(s.pending, userID)
			removed++
		}
	}
	return removed
}
