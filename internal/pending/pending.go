package pending

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrVerificationPending means the identity already has a live flow.
	ErrVerificationPending = errors.New("verification already pending")
	// ErrNoPendingVerification means the id is unknown, expired, or was
	// already consumed.
	ErrNoPendingVerification = errors.New("no pending verification")
)

// Verification bridges "client started the external flow" and "client came
// back with the completion callback". Consuming it deletes it, so a replayed
// callback finds nothing.
type Verification struct {
	ID        string
	IP        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store keeps pending verifications in memory, keyed by verification id.
type Store struct {
	mu   sync.Mutex
	byID map[string]*Verification
	ttl  time.Duration
}

func New(ttl time.Duration) *Store {
	return &Store{
		byID: make(map[string]*Verification),
		ttl:  ttl,
	}
}

// Start opens a flow for the identity. A still-live flow for the same
// identity is rejected so a client cannot stack concurrent verifications.
func (s *Store) Start(ip string) (Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, v := range s.byID {
		if v.IP == ip && now.Before(v.ExpiresAt) {
			return Verification{}, ErrVerificationPending
		}
	}

	v := &Verification{
		ID:        uuid.NewString(),
		IP:        ip,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.byID[v.ID] = v

	slog.Info("Verification started", "ip", ip, "verification_id", v.ID, "expires_at", v.ExpiresAt)
	return *v, nil
}

// Consume completes a flow exactly once: the record is deleted before the
// snapshot is returned, so re-delivery of the same callback fails. Expired
// records are deleted lazily here as well.
func (s *Store) Consume(id string) (Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, exists := s.byID[id]
	if !exists {
		return Verification{}, ErrNoPendingVerification
	}
	delete(s.byID, id)
	if time.Now().After(v.ExpiresAt) {
		return Verification{}, ErrNoPendingVerification
	}
	return *v, nil
}

// Len reports the number of stored records, live or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Sweep removes flows that timed out without completing.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, v := range s.byID {
		if now.After(v.ExpiresAt) {
			delete(s.byID, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Swept pending verifications", "removed", removed)
	}
	return removed
}
