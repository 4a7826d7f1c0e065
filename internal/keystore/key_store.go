package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrKeyRevoked     = errors.New("key revoked")
	ErrKeyExpired     = errors.New("key expired")
	ErrKeyAlreadyUsed = errors.New("key already used")
)

const (
	// Caps on the per-identity activity log; oldest entries are evicted
	// first so one identity can never grow the log unbounded.
	maxAttemptHistory = 50
	maxKeyHistory     = 20
)

type Config struct {
	TTL       time.Duration `mapstructure:"ttl"`
	SingleUse bool          `mapstructure:"single_use"`
}

// Credential is the lifecycle record behind an issued key string.
type Credential struct {
	Key       string
	IP        string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	Uses      int
	Revoked   bool
	SingleUse bool
}

// activity tracks recent issuance attempts and issued keys for one identity.
type activity struct {
	attempts []time.Time
	keys     []string
}

// Store holds issued credentials and per-identity activity in memory.
// Everything is lost on restart; that is the deployment model, not a bug.
type Store struct {
	mu       sync.RWMutex
	creds    map[string]*Credential
	activity map[string]*activity
	cfg      Config
}

type Stats struct {
	TotalKeys  int
	ActiveKeys int
	UniqueIPs  int
	TotalUses  int
}

func New(cfg Config) *Store {
	return &Store{
		creds:    make(map[string]*Credential),
		activity: make(map[string]*activity),
		cfg:      cfg,
	}
}

// Issue returns a credential for the identity. If the identity already holds
// an unexpired, non-revoked key that same key is returned again (reused=true)
// instead of minting a second one — one active key per identity is the
// steady state. Admission is assumed to have passed already.
func (s *Store) Issue(ip, userAgent string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing := s.liveCredentialLocked(ip, now); existing != nil {
		return *existing, true, nil
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return Credential{}, false, fmt.Errorf("generate key: %w", err)
	}
	key := strings.ToUpper(hex.EncodeToString(b))

	cred := &Credential{
		Key:       key,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
		SingleUse: s.cfg.SingleUse,
	}
	s.creds[key] = cred

	act := s.activityLocked(ip)
	act.keys = append(act.keys, key)
	if len(act.keys) > maxKeyHistory {
		act.keys = act.keys[len(act.keys)-maxKeyHistory:]
	}

	slog.Info("Key issued", "ip", ip, "expires_at", cred.ExpiresAt)
	return *cred, false, nil
}

// Validate applies the lifecycle transitions for a presented key. The check
// order is part of the contract: unknown, then revoked, then expired (the
// record is deleted so later lookups report not found), then single-use
// exhaustion. Only a still-valid key gets its use counter incremented; the
// returned snapshot is taken after the increment.
func (s *Store) Validate(key string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, exists := s.creds[key]
	if !exists {
		return Credential{}, ErrKeyNotFound
	}
	if cred.Revoked {
		return Credential{}, ErrKeyRevoked
	}
	if time.Now().After(cred.ExpiresAt) {
		delete(s.creds, key)
		return Credential{}, ErrKeyExpired
	}
	if cred.SingleUse && cred.Uses >= 1 {
		return Credential{}, ErrKeyAlreadyUsed
	}

	cred.Uses++
	return *cred, nil
}

// Revoke marks a key invalid. The record stays until it expires so a later
// Validate reports "revoked" rather than "not found".
func (s *Store) Revoke(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, exists := s.creds[key]
	if !exists {
		return false
	}
	cred.Revoked = true
	slog.Info("Key revoked", "ip", cred.IP)
	return true
}

// RecordAttempt logs an issuance attempt for the identity.
func (s *Store) RecordAttempt(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	act := s.activityLocked(ip)
	act.attempts = append(act.attempts, time.Now())
	if len(act.attempts) > maxAttemptHistory {
		act.attempts = act.attempts[len(act.attempts)-maxAttemptHistory:]
	}
}

// RecentAttempts counts issuance attempts within the window.
func (s *Store) RecentAttempts(ip string, window time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	act, exists := s.activity[ip]
	if !exists {
		return 0
	}
	cutoff := time.Now().Add(-window)
	count := 0
	for _, at := range act.attempts {
		if at.After(cutoff) {
			count++
		}
	}
	return count
}

// ActiveKeyCount counts unexpired, non-revoked keys held by the identity.
func (s *Store) ActiveKeyCount(ip string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	act, exists := s.activity[ip]
	if !exists {
		return 0
	}
	now := time.Now()
	count := 0
	for _, key := range act.keys {
		if cred, ok := s.creds[key]; ok && !cred.Revoked && now.Before(cred.ExpiresAt) {
			count++
		}
	}
	return count
}

// LastIssuedAt reports when the identity most recently received a new key.
func (s *Store) LastIssuedAt(ip string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	act, exists := s.activity[ip]
	if !exists {
		return time.Time{}, false
	}
	var last time.Time
	for _, key := range act.keys {
		if cred, ok := s.creds[key]; ok && cred.CreatedAt.After(last) {
			last = cred.CreatedAt
		}
	}
	return last, !last.IsZero()
}

// Stats computes read-only aggregates over the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	st := Stats{TotalKeys: len(s.creds)}
	ips := make(map[string]struct{})
	for _, cred := range s.creds {
		st.TotalUses += cred.Uses
		if !cred.Revoked && now.Before(cred.ExpiresAt) {
			st.ActiveKeys++
			ips[cred.IP] = struct{}{}
		}
	}
	st.UniqueIPs = len(ips)
	return st
}

// Sweep removes expired credentials and prunes activity records whose
// identity holds no stored keys and has no attempts in the last day.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, cred := range s.creds {
		if now.After(cred.ExpiresAt) {
			delete(s.creds, key)
			removed++
		}
	}

	cutoff := now.Add(-24 * time.Hour)
	for ip, act := range s.activity {
		if s.staleLocked(act, cutoff) {
			delete(s.activity, ip)
			removed++
		}
	}

	if removed > 0 {
		slog.Debug("Swept key store", "removed", removed)
	}
	return removed
}

func (s *Store) liveCredentialLocked(ip string, now time.Time) *Credential {
	act, exists := s.activity[ip]
	if !exists {
		return nil
	}
	for i := len(act.keys) - 1; i >= 0; i-- {
		if cred, ok := s.creds[act.keys[i]]; ok && !cred.Revoked && now.Before(cred.ExpiresAt) {
			return cred
		}
	}
	return nil
}

func (s *Store) activityLocked(ip string) *activity {
	act, exists := s.activity[ip]
	if !exists {
		act = &activity{}
		s.activity[ip] = act
	}
	return act
}

func (s *Store) staleLocked(act *activity, cutoff time.Time) bool {
	for _, at := range act.attempts {
		if at.After(cutoff) {
			return false
		}
	}
	for _, key := range act.keys {
		if _, ok := s.creds[key]; ok {
			return false
		}
	}
	return true
}
