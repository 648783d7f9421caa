package stores

import (
	"errors"
	"log"

	authkit "github.com/threatwatch/authkit"
)

// FailoverCredentialStore selects between a durable primary and the fallback
// backend once, at startup, instead of per-call-site conditionals. Calls go
// to the primary; only when it reports ErrStoreUnavailable does the call
// retry against the fallback, with a warning logged so degraded mode is
// visible. The two backends expose identical semantics, so switching never
// changes observable behavior.
type FailoverCredentialStore struct {
	Primary  authkit.CredentialStore
	Fallback authkit.CredentialStore
}

// NewFailoverCredentialStore wraps primary with fallback substitution.
func NewFailoverCredentialStore(primary, fallback authkit.CredentialStore) *FailoverCredentialStore {
	return &FailoverCredentialStore{Primary: primary, Fallback: fallback}
}

func (s *FailoverCredentialStore) failingOver(op string, err error) bool {
	if !errors.Is(err, authkit.ErrStoreUnavailable) {
		return false
	}
	log.Printf("credential store unavailable during %s, falling back to in-process store: %v", op, err)
	return true
}

func (s *FailoverCredentialStore) FindByEmail(email string) (*authkit.User, error) {
	user, err := s.Primary.FindByEmail(email)
	if s.failingOver("find", err) {
		return s.Fallback.FindByEmail(email)
	}
	return user, err
}

func (s *FailoverCredentialStore) Create(user *authkit.User) (*authkit.User, error) {
	created, err := s.Primary.Create(user)
	if s.failingOver("create", err) {
		return s.Fallback.Create(user)
	}
	return created, err
}

func (s *FailoverCredentialStore) Save(user *authkit.User) error {
	err := s.Primary.Save(user)
	if s.failingOver("save", err) {
		return s.Fallback.Save(user)
	}
	return err
}

func (s *FailoverCredentialStore) ConsumeOTP(email, otpHash string, markVerified bool) (*authkit.User, error) {
	user, err := s.Primary.ConsumeOTP(email, otpHash, markVerified)
	if s.failingOver("consume-otp", err) {
		return s.Fallback.ConsumeOTP(email, otpHash, markVerified)
	}
	return user, err
}
