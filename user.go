package authkit

import (
	"time"

	"github.com/google/uuid"
)

// User is the durable identity record owned by the CredentialStore.
//
// Email is the unique key; ID is assigned at creation and immutable.
// PasswordHash is empty for OAuth-created accounts that have not set a local
// password yet (NeedsPasswordSetup true). The OTP* fields hold the transient
// one-time-code challenge; OTPHash and OTPExpiresAt always move together so a
// stale hash can never outlive its expiry marker.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`

	PasswordHash       string `json:"-"`
	NeedsPasswordSetup bool   `json:"needsPasswordSetup"`

	EmailVerified   bool       `json:"emailVerified"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`

	OTPHash      string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	OTPVerified  bool       `json:"-"`

	RefreshTokens []string `json:"-"`

	IsOAuthUser   bool   `json:"isOAuthUser"`
	OAuthProvider string `json:"oauthProvider,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can complete a password login.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasActiveChallenge reports whether an unexpired OTP challenge exists.
// An absent or expired hash counts as no challenge regardless of OTPVerified.
func (u *User) HasActiveChallenge(now time.Time) bool {
	return u.OTPHash != "" && u.OTPExpiresAt != nil && now.Before(*u.OTPExpiresAt)
}

// ClearChallenge removes the OTP challenge state. All three fields are
// cleared together.
func (u *User) ClearChallenge() {
	u.OTPHash = ""
	u.OTPExpiresAt = nil
	u.OTPVerified = false
}

// HasRefreshToken reports whether token is in the user's active set.
func (u *User) HasRefreshToken(token string) bool {
	for _, t := range u.RefreshTokens {
		if t == token {
			return true
		}
	}
	return false
}

// RemoveRefreshToken removes token from the active set. Returns false if the
// token was not present.
func (u *User) RemoveRefreshToken(token string) bool {
	for i, t := range u.RefreshTokens {
		if t == token {
			u.RefreshTokens = append(u.RefreshTokens[:i], u.RefreshTokens[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Stores hand out clones so callers never alias
// shared state.
func (u *User) Clone() *User {
	out := *u
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		out.EmailVerifiedAt = &t
	}
	if u.OTPExpiresAt != nil {
		t := *u.OTPExpiresAt
		out.OTPExpiresAt = &t
	}
	out.RefreshTokens = append([]string(nil), u.RefreshTokens...)
	return &out
}

// UserInfo is the wire shape returned to callers on success responses.
// These field names are a stable contract with the UI layer.
type UserInfo struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	EmailVerified      bool   `json:"emailVerified"`
	NeedsPasswordSetup bool   `json:"needsPasswordSetup"`
}

// Info projects the record onto its wire shape.
func (u *User) Info() *UserInfo {
	return &UserInfo{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		EmailVerified:      u.EmailVerified,
		NeedsPasswordSetup: u.NeedsPasswordSetup,
	}
}

// CredentialStore is the persistence contract for User records. The durable
// (stores/gorm, stores/gae) and fallback (stores.MemoryCredentialStore)
// implementations satisfy it identically; call sites select a backend once at
// startup and never special-case behavior per backend.
type CredentialStore interface {
	// FindByEmail returns the user for email or ErrUserNotFound.
	FindByEmail(email string) (*User, error)

	// Create persists a new user. Fails with ErrEmailExists if the email is
	// already registered.
	Create(user *User) (*User, error)

	// Save persists a full record update for an existing user.
	Save(user *User) error

	// ConsumeOTP atomically clears the user's OTP challenge if and only if
	// the stored hash still equals otpHash, setting OTPVerified to
	// markVerified in the same write. Returns the updated record, or
	// ErrNoChallenge when the hash no longer matches (the challenge was
	// already consumed or replaced). This is the compare-and-clear that keeps
	// two racing verifications from consuming the same code twice.
	ConsumeOTP(email, otpHash string, markVerified bool) (*User, error)
}

// NewUserID returns a new opaque user identifier.
func NewUserID() string {
	return uuid.NewString()
}
