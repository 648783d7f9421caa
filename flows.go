package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"
)

// DefaultMinPasswordLength is the minimum accepted password length.
const DefaultMinPasswordLength = 8

// RegisterRequest is the validated input shape for password registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// OAuthIdentity is an already-authenticated identity handed over by an OAuth
// provider integration. Token carries provider provenance when available;
// this package trusts that the email/identity match was established upstream.
type OAuthIdentity struct {
	Provider string
	Email    string
	Name     string
	Token    *oauth2.Token
}

// AuthResult is returned by flows that end in an authenticated session.
type AuthResult struct {
	User   *UserInfo  `json:"user"`
	Tokens *TokenPair `json:"tokens"`
}

// OTPStatus reports how an OTP verification concluded.
type OTPStatus string

const (
	// OTPStatusLoggedIn: the account had a password, so verification
	// completed a login and tokens were issued.
	OTPStatusLoggedIn OTPStatus = "logged_in"

	// OTPStatusPasswordRequired: email ownership is proven but the account
	// has no password yet; SetPassword completes activation.
	OTPStatusPasswordRequired OTPStatus = "password_required"
)

// OTPResult is the outcome of VerifyOTP. Tokens is nil unless Status is
// OTPStatusLoggedIn.
type OTPResult struct {
	Status OTPStatus  `json:"status"`
	User   *UserInfo  `json:"user"`
	Tokens *TokenPair `json:"tokens,omitempty"`
}

// AuthFlow orchestrates the credential lifecycle state machines over a
// CredentialStore. All dependencies are injected; the backend is selected
// once at construction, never per call site.
type AuthFlow struct {
	Store        CredentialStore
	Hasher       *Hasher
	OTP          *OTPManager
	Verification *VerificationTokenManager
	Issuer       *TokenIssuer
	Gate         *EmailGate

	// EmailSender delivers verification links and OTP codes. Optional for
	// verification links (skipped when nil), required for OTP flows.
	EmailSender EmailSender

	// BaseURL prefixes verification and reset links.
	BaseURL string

	// MinPasswordLength defaults to DefaultMinPasswordLength.
	MinPasswordLength int
}

// NewAuthFlow wires an AuthFlow with default managers signing with secretKey.
func NewAuthFlow(store CredentialStore, secretKey string) *AuthFlow {
	hasher := &Hasher{}
	return &AuthFlow{
		Store:        store,
		Hasher:       hasher,
		OTP:          &OTPManager{Hasher: hasher},
		Verification: NewVerificationTokenManager(secretKey),
		Issuer:       &TokenIssuer{Store: store, SecretKey: secretKey},
		Gate:         &EmailGate{},
	}
}

func (f *AuthFlow) minPasswordLength() int {
	if f.MinPasswordLength <= 0 {
		return DefaultMinPasswordLength
	}
	return f.MinPasswordLength
}

func (f *AuthFlow) validatePassword(password string) *AuthError {
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if len(password) < f.minPasswordLength() {
		msg := fmt.Sprintf("Password must be at least %d characters", f.minPasswordLength())
		return NewAuthError(ErrCodeWeakPassword, msg, "password")
	}
	return nil
}

// invalidCredentials is the single response shape for every failed login
// lookup, so "no such user", "no password set" and "wrong password" are
// indistinguishable to callers.
func invalidCredentials() *AuthError {
	return NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", "password")
}

// invalidOTP is the single response shape for "no such user", "no active
// challenge" and "wrong code".
func invalidOTP() *AuthError {
	return NewAuthError(ErrCodeInvalidOTP, "Invalid code", "otp")
}

// Register creates a password-based account. The account starts unverified;
// a verification email is sent best-effort and its failure never fails
// registration. Duplicate emails are a Conflict, never a silent merge.
func (f *AuthFlow) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if req.Email == "" {
		return nil, NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if authErr := f.validatePassword(req.Password); authErr != nil {
		return nil, authErr
	}
	if verdict := f.Gate.Evaluate(ctx, req.Email); !verdict.Allowed {
		return nil, verdict.AuthError()
	}

	hash, err := f.Hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user, err := f.Store.Create(&User{
		ID:           NewUserID(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, NewAuthError(ErrCodeEmailExists, "Email already registered", "email")
		}
		return nil, err
	}

	pair, err := f.Issuer.IssuePair(user)
	if err != nil {
		return nil, err
	}
	f.sendVerificationEmail(user)
	return &AuthResult{User: user.Info(), Tokens: pair}, nil
}

// sendVerificationEmail is best-effort; failures are logged, never returned.
func (f *AuthFlow) sendVerificationEmail(user *User) {
	if f.EmailSender == nil || f.BaseURL == "" {
		return
	}
	token, err := f.Verification.Generate(TokenPurposeEmailVerification, user.Email, user.ID)
	if err != nil {
		log.Printf("error creating verification token: %v", err)
		return
	}
	link := VerificationURL(f.BaseURL, token)
	if err := f.EmailSender.SendVerificationEmail(user.Email, user.Name, link); err != nil {
		log.Printf("error sending verification email: %v", err)
	}
}

// Login performs a password login and issues a token pair.
func (f *AuthFlow) Login(email, password string) (*AuthResult, error) {
	user, err := f.Store.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !user.HasPassword() || !f.Hasher.Verify(password, user.PasswordHash) {
		return nil, invalidCredentials()
	}

	pair, err := f.Issuer.IssuePair(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user.Info(), Tokens: pair}, nil
}

// RequestOTP issues a one-time code for email and delivers it. An unknown
// email passes the gate and gets a skeleton account (the passwordless
// registration entry point); a known email gets a fresh challenge that
// atomically replaces any previously issued, unexpired code. OTP delivery
// failure is surfaced: the user cannot proceed without the code.
func (f *AuthFlow) RequestOTP(ctx context.Context, email string) error {
	if f.EmailSender == nil {
		return fmt.Errorf("otp delivery not configured")
	}

	user, err := f.Store.FindByEmail(email)
	if errors.Is(err, ErrUserNotFound) {
		if verdict := f.Gate.Evaluate(ctx, email); !verdict.Allowed {
			return verdict.AuthError()
		}
		now := time.Now()
		user, err = f.Store.Create(&User{
			ID:                 NewUserID(),
			Email:              email,
			NeedsPasswordSetup: true,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	if err != nil {
		return err
	}

	code, err := f.OTP.Issue(user)
	if err != nil {
		return err
	}
	if err := f.Store.Save(user); err != nil {
		return err
	}
	if err := f.EmailSender.SendOTPEmail(user.Email, user.Name, code); err != nil {
		return fmt.Errorf("failed to deliver one-time code: %w", err)
	}
	return nil
}

// VerifyOTP checks a presented code and consumes the challenge. A successful
// verification proves email ownership, so EmailVerified flips true on both
// paths. Accounts with a password complete login immediately; passwordless
// accounts move to password setup. Consumption is an atomic store-level
// compare-and-clear, so of two racing verifications exactly one wins and the
// loser sees the same shape as a wrong code.
func (f *AuthFlow) VerifyOTP(email, code string) (*OTPResult, error) {
	user, err := f.Store.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, invalidOTP()
		}
		return nil, err
	}

	switch err := f.OTP.Verify(user, code); {
	case err == nil:
	case errors.Is(err, ErrOTPExpired):
		return nil, NewAuthError(ErrCodeExpiredOTP, "Code has expired, request a new one", "otp")
	case errors.Is(err, ErrNoChallenge), errors.Is(err, ErrOTPMismatch):
		return nil, invalidOTP()
	default:
		return nil, err
	}

	passwordRequired := !user.HasPassword()
	user, err = f.Store.ConsumeOTP(email, user.OTPHash, passwordRequired)
	if err != nil {
		if errors.Is(err, ErrNoChallenge) {
			// Lost the race to a concurrent verification.
			return nil, invalidOTP()
		}
		return nil, err
	}

	f.markEmailVerified(user)
	if passwordRequired {
		if err := f.Store.Save(user); err != nil {
			return nil, err
		}
		return &OTPResult{Status: OTPStatusPasswordRequired, User: user.Info()}, nil
	}

	pair, err := f.Issuer.IssuePair(user)
	if err != nil {
		return nil, err
	}
	return &OTPResult{Status: OTPStatusLoggedIn, User: user.Info(), Tokens: pair}, nil
}

// markEmailVerified flips the monotonic verified bit. Already-verified
// accounts keep their original timestamp.
func (f *AuthFlow) markEmailVerified(user *User) {
	if user.EmailVerified {
		return
	}
	now := time.Now()
	user.EmailVerified = true
	user.EmailVerifiedAt = &now
}

// SetPassword completes activation for an account pending password setup:
// either a passwordless registration whose OTP was just verified, or an
// OAuth-created account. No prior password is ever required, there is none.
// An optional display name is applied in the same write.
func (f *AuthFlow) SetPassword(email, password, name string) (*AuthResult, error) {
	if authErr := f.validatePassword(password); authErr != nil {
		return nil, authErr
	}
	user, err := f.Store.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, NewAuthError(ErrCodeInvalidState, "No pending password setup", "email")
		}
		return nil, err
	}
	// Email ownership must already be proven: either an OTP was verified on
	// this account, or the identity came from an OAuth provider. A skeleton
	// account created by an OTP request alone is not enough.
	if !user.OTPVerified && !(user.IsOAuthUser && user.NeedsPasswordSetup) {
		return nil, NewAuthError(ErrCodeInvalidState, "No pending password setup", "email")
	}

	hash, err := f.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	user.NeedsPasswordSetup = false
	user.ClearChallenge()
	if name != "" {
		user.Name = name
	}
	user.UpdatedAt = time.Now()

	pair, err := f.Issuer.IssuePair(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user.Info(), Tokens: pair}, nil
}

// CompleteOAuth accepts an already-authenticated provider identity and
// creates or updates the matching account. An existing local account with a
// password is a Conflict, never merged. New or pending accounts end up
// flagged isOAuthUser with password setup still required.
func (f *AuthFlow) CompleteOAuth(ctx context.Context, identity OAuthIdentity) (*UserInfo, error) {
	if identity.Email == "" {
		return nil, NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}

	user, err := f.Store.FindByEmail(identity.Email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		now := time.Now()
		user, err = f.Store.Create(&User{
			ID:                 NewUserID(),
			Email:              identity.Email,
			Name:               identity.Name,
			NeedsPasswordSetup: true,
			IsOAuthUser:        true,
			OAuthProvider:      identity.Provider,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return nil, err
		}
		return user.Info(), nil
	case err != nil:
		return nil, err
	}

	if !user.IsOAuthUser && user.HasPassword() {
		return nil, NewAuthError(ErrCodeEmailExists, "Email already registered", "email")
	}

	user.IsOAuthUser = true
	if user.OAuthProvider == "" {
		user.OAuthProvider = identity.Provider
	}
	if user.Name == "" {
		user.Name = identity.Name
	}
	user.NeedsPasswordSetup = !user.HasPassword()
	user.UpdatedAt = time.Now()
	if err := f.Store.Save(user); err != nil {
		return nil, err
	}
	return user.Info(), nil
}

// VerifyEmail consumes a link-based verification token and marks the email
// verified. Invalid, expired and already-used tokens are reported distinctly
// via ErrInvalidToken, ErrTokenExpired and ErrTokenUsed.
func (f *AuthFlow) VerifyEmail(token string) (*UserInfo, error) {
	claims, err := f.Verification.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != TokenPurposeEmailVerification {
		return nil, ErrInvalidToken
	}

	user, err := f.Store.FindByEmail(claims.Email)
	if err != nil {
		// A token for an account that no longer exists is just a bad token
		// to the caller.
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	f.markEmailVerified(user)
	user.UpdatedAt = time.Now()
	if err := f.Store.Save(user); err != nil {
		return nil, err
	}
	f.Verification.MarkUsed(token)
	return user.Info(), nil
}

// RequestPasswordReset issues a reset token and emails the link. Unknown
// emails return success all the same, so the endpoint cannot be used to
// enumerate accounts; delivery failures are logged only.
func (f *AuthFlow) RequestPasswordReset(email string) error {
	user, err := f.Store.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if f.EmailSender == nil || f.BaseURL == "" {
		return nil
	}

	token, err := f.Verification.Generate(TokenPurposePasswordReset, user.Email, user.ID)
	if err != nil {
		log.Printf("error creating reset token: %v", err)
		return nil
	}
	link := PasswordResetURL(f.BaseURL, token)
	if err := f.EmailSender.SendPasswordResetEmail(user.Email, user.Name, link); err != nil {
		log.Printf("error sending reset email: %v", err)
	}
	return nil
}

// ResetPassword consumes a reset token and replaces the password. Every
// refresh token is revoked in the same write, logging the account out
// everywhere.
func (f *AuthFlow) ResetPassword(token, newPassword string) error {
	claims, err := f.Verification.Verify(token)
	if err != nil {
		return err
	}
	if claims.Purpose != TokenPurposePasswordReset {
		return ErrInvalidToken
	}
	if authErr := f.validatePassword(newPassword); authErr != nil {
		return authErr
	}

	user, err := f.Store.FindByEmail(claims.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	hash, err := f.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.NeedsPasswordSetup = false
	user.RefreshTokens = nil
	user.UpdatedAt = time.Now()
	if err := f.Store.Save(user); err != nil {
		return err
	}
	f.Verification.MarkUsed(token)
	return nil
}

// Refresh rotates a refresh token into a new pair.
func (f *AuthFlow) Refresh(refreshToken string) (*TokenPair, error) {
	return f.Issuer.Rotate(refreshToken)
}

// Logout revokes a single refresh token. Idempotent.
func (f *AuthFlow) Logout(refreshToken string) error {
	return f.Issuer.Revoke(refreshToken)
}

// LogoutAll clears every refresh token for the account.
func (f *AuthFlow) LogoutAll(email string) error {
	user, err := f.Store.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	return f.Issuer.RevokeAll(user)
}

// CurrentUser resolves an access token to the account's wire shape.
func (f *AuthFlow) CurrentUser(accessToken string) (*UserInfo, error) {
	claims, err := f.Issuer.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := f.Store.FindByEmail(claims.Email)
	if err != nil {
		return nil, err
	}
	return user.Info(), nil
}
