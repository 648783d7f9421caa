package authkit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose distinguishes what a verification token proves.
type TokenPurpose string

const (
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
)

// Default verification token expiry durations.
const (
	TokenExpiryEmailVerification = 24 * time.Hour
	TokenExpiryPasswordReset     = 1 * time.Hour
)

// VerificationClaims is the decoded content of a verification token.
type VerificationClaims struct {
	Email     string
	UserID    string
	Purpose   TokenPurpose
	ExpiresAt time.Time
}

type verificationJWTClaims struct {
	Email   string `json:"email"`
	UserID  string `json:"user_id,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// VerificationTokenManager issues signed, time-bounded, single-use tokens
// that prove email ownership. Validation is a stateless signature check; the
// single-use marker is a process-wide set keyed by token hash, bounded by
// expiry (entries are purged once their embedded expiry passes).
type VerificationTokenManager struct {
	// SecretKey signs tokens. Required.
	SecretKey string

	// Issuer is the iss claim. Optional.
	Issuer string

	// ExpiryOverride replaces the per-purpose default expiry when positive.
	// Used mainly by tests.
	ExpiryOverride time.Duration

	mu   sync.Mutex
	used map[string]time.Time
}

// NewVerificationTokenManager creates a manager signing with secretKey.
func NewVerificationTokenManager(secretKey string) *VerificationTokenManager {
	return &VerificationTokenManager{SecretKey: secretKey}
}

func (m *VerificationTokenManager) expiryFor(purpose TokenPurpose) time.Duration {
	if m.ExpiryOverride > 0 {
		return m.ExpiryOverride
	}
	if purpose == TokenPurposePasswordReset {
		return TokenExpiryPasswordReset
	}
	return TokenExpiryEmailVerification
}

// Generate signs a token embedding email (and the optional userID) for the
// given purpose. The returned string is URL-safe.
func (m *VerificationTokenManager) Generate(purpose TokenPurpose, email, userID string) (string, error) {
	now := time.Now()
	claims := verificationJWTClaims{
		Email:   email,
		UserID:  userID,
		Purpose: string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiryFor(purpose))),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify decodes and checks a token. Order matters: signature first (tampered
// tokens are rejected before expiry or use-state is consulted), then expiry,
// then the single-use check. Returns ErrInvalidToken, ErrTokenExpired or
// ErrTokenUsed accordingly.
func (m *VerificationTokenManager) Verify(tokenString string) (*VerificationClaims, error) {
	claims, err := m.parseClaims(tokenString)
	if err != nil {
		return nil, err
	}
	if m.isUsed(tokenString) {
		return nil, ErrTokenUsed
	}
	return claims, nil
}

// parseClaims checks signature and expiry only; the single-use state is not
// consulted, so MarkUsed can read the embedded expiry of an already-used
// token.
func (m *VerificationTokenManager) parseClaims(tokenString string) (*VerificationClaims, error) {
	var claims verificationJWTClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidToken
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Email == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return &VerificationClaims{
		Email:     claims.Email,
		UserID:    claims.UserID,
		Purpose:   TokenPurpose(claims.Purpose),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// MarkUsed records the token as consumed. Idempotent; marking twice is not an
// error and keeps the original retention, since the embedded expiry is read
// without the single-use check. Expired entries are purged on each call to
// keep the set bounded.
func (m *VerificationTokenManager) MarkUsed(tokenString string) {
	expiresAt := time.Now().Add(TokenExpiryEmailVerification)
	if claims, err := m.parseClaims(tokenString); err == nil {
		expiresAt = claims.ExpiresAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used == nil {
		m.used = make(map[string]time.Time)
	}
	m.purgeLocked(time.Now())
	m.used[hashToken(tokenString)] = expiresAt
}

func (m *VerificationTokenManager) isUsed(tokenString string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(time.Now())
	_, ok := m.used[hashToken(tokenString)]
	return ok
}

// purgeLocked drops used-set entries whose embedded expiry has passed; the
// token itself can no longer verify, so the marker is dead weight.
func (m *VerificationTokenManager) purgeLocked(now time.Time) {
	for k, exp := range m.used {
		if now.After(exp) {
			delete(m.used, k)
		}
	}
}

// hashToken returns the sha256 hex of a token for use as a map key, so raw
// token material is never retained.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerificationURL builds the clickable link for a token. Pure formatting, not
// part of the security contract.
func VerificationURL(baseURL, token string) string {
	return fmt.Sprintf("%s/auth/verify-email?token=%s", baseURL, url.QueryEscape(token))
}

// PasswordResetURL builds the clickable link for a reset token.
func PasswordResetURL(baseURL, token string) string {
	return fmt.Sprintf("%s/auth/reset-password?token=%s", baseURL, url.QueryEscape(token))
}
