// Package stores provides the in-process fallback CredentialStore plus the
// failover wrapper that substitutes it when the durable backend is
// unreachable. Durable implementations live in the gorm and gae subpackages;
// all of them satisfy the same contract.
package stores

import (
	"log"
	"sync"
	"time"

	authkit "github.com/threatwatch/authkit"
)

// MemoryCredentialStore is the process-lifetime fallback backend: a mutex
// guarded map keyed by email. Every read-modify-write for a given email is
// serialized behind the lock, and all records are cloned on the way in and
// out so handlers never alias shared state.
//
// Data does not survive process restart. That is an accepted limitation of
// fallback mode, not an error condition; NewMemoryCredentialStore logs it so
// the gap (email verification persistence included) is never silent.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	users map[string]*authkit.User
}

// NewMemoryCredentialStore creates an empty fallback store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	log.Printf("using in-memory credential store: records (including email verification state) do not survive process restart")
	return &MemoryCredentialStore{users: make(map[string]*authkit.User)}
}

func (s *MemoryCredentialStore) FindByEmail(email string) (*authkit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[email]
	if !ok {
		return nil, authkit.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (s *MemoryCredentialStore) Create(user *authkit.User) (*authkit.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return nil, authkit.ErrEmailExists
	}
	stored := user.Clone()
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.users[user.Email] = stored
	return stored.Clone(), nil
}

func (s *MemoryCredentialStore) Save(user *authkit.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := user.Clone()
	stored.UpdatedAt = time.Now()
	if prev, ok := s.users[user.Email]; ok {
		// ID and creation time are immutable once assigned.
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	}
	s.users[user.Email] = stored
	return nil
}

func (s *MemoryCredentialStore) ConsumeOTP(email, otpHash string, markVerified bool) (*authkit.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok || user.OTPHash == "" || user.OTPHash != otpHash {
		return nil, authkit.ErrNoChallenge
	}
	user.OTPHash = ""
	user.OTPExpiresAt = nil
	user.OTPVerified = markVerified
	user.UpdatedAt = time.Now()
	return user.Clone(), nil
}
