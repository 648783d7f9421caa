//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	authkit "github.com/threatwatch/authkit"
)

// CredentialEntity is the Datastore entity for user credentials.
// Keyed by email (NameKey) so lookups and OTP transactions are by-key.
type CredentialEntity struct {
	Key                *datastore.Key `datastore:"__key__"`
	ID                 string         `datastore:"id"`
	Email              string         `datastore:"email"`
	Name               string         `datastore:"name,noindex"`
	PasswordHash       string         `datastore:"password_hash,noindex"`
	NeedsPasswordSetup bool           `datastore:"needs_password_setup,noindex"`
	EmailVerified      bool           `datastore:"email_verified"`
	EmailVerifiedAt    time.Time      `datastore:"email_verified_at,noindex"`
	OTPHash            string         `datastore:"otp_hash,noindex"`
	OTPExpiresAt       time.Time      `datastore:"otp_expires_at"`
	OTPVerified        bool           `datastore:"otp_verified,noindex"`
	RefreshTokens      []string       `datastore:"refresh_tokens,noindex"`
	IsOAuthUser        bool           `datastore:"is_oauth_user,noindex"`
	OAuthProvider      string         `datastore:"oauth_provider,noindex"`
	CreatedAt          time.Time      `datastore:"created_at"`
	UpdatedAt          time.Time      `datastore:"updated_at"`
}

func (e *CredentialEntity) ToUser() *authkit.User {
	user := &authkit.User{
		ID:                 e.ID,
		Email:              e.Email,
		Name:               e.Name,
		PasswordHash:       e.PasswordHash,
		NeedsPasswordSetup: e.NeedsPasswordSetup,
		EmailVerified:      e.EmailVerified,
		OTPHash:            e.OTPHash,
		OTPVerified:        e.OTPVerified,
		RefreshTokens:      append([]string(nil), e.RefreshTokens...),
		IsOAuthUser:        e.IsOAuthUser,
		OAuthProvider:      e.OAuthProvider,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
	if !e.EmailVerifiedAt.IsZero() {
		t := e.EmailVerifiedAt
		user.EmailVerifiedAt = &t
	}
	if !e.OTPExpiresAt.IsZero() {
		t := e.OTPExpiresAt
		user.OTPExpiresAt = &t
	}
	return user
}

func UserToEntity(u *authkit.User, key *datastore.Key) *CredentialEntity {
	entity := &CredentialEntity{
		Key:                key,
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		PasswordHash:       u.PasswordHash,
		NeedsPasswordSetup: u.NeedsPasswordSetup,
		EmailVerified:      u.EmailVerified,
		OTPHash:            u.OTPHash,
		OTPVerified:        u.OTPVerified,
		RefreshTokens:      append([]string(nil), u.RefreshTokens...),
		IsOAuthUser:        u.IsOAuthUser,
		OAuthProvider:      u.OAuthProvider,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
	if u.EmailVerifiedAt != nil {
		entity.EmailVerifiedAt = *u.EmailVerifiedAt
	}
	if u.OTPExpiresAt != nil {
		entity.OTPExpiresAt = *u.OTPExpiresAt
	}
	return entity
}
