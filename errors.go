package authkit

import "errors"

// Sentinel errors returned by stores and token managers.
var (
	// ErrUserNotFound is returned by CredentialStore.FindByEmail when no
	// record exists for the email.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailExists is returned by CredentialStore.Create when the email is
	// already registered.
	ErrEmailExists = errors.New("email already registered")

	// ErrStoreUnavailable indicates the durable backend could not be reached.
	// Store implementations wrap their transport errors with it so callers
	// can detect it with errors.Is and fail over.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrInvalidToken indicates a token that failed signature or shape checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked indicates a structurally valid refresh token that is no
	// longer in the owner's active set. Distinguished from ErrInvalidToken
	// because reuse of a rotated token is a possible theft signal.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenUsed indicates a verification token presented a second time.
	ErrTokenUsed = errors.New("token already used")

	// ErrNoChallenge indicates no active OTP challenge exists for the user.
	// An expired or absent OTP hash is treated as no active challenge.
	ErrNoChallenge = errors.New("no active challenge")

	// ErrOTPExpired indicates the presented code's challenge has expired.
	ErrOTPExpired = errors.New("one-time code expired")

	// ErrOTPMismatch indicates the presented code does not match the challenge.
	ErrOTPMismatch = errors.New("one-time code mismatch")
)

// Error codes carried by AuthError and surfaced on the wire.
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidEmail    = "invalid_email"
	ErrCodeDisposableEmail = "disposable_email"
	ErrCodeRoleEmail       = "role_email"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeEmailExists     = "email_exists"
	ErrCodeInvalidOTP      = "invalid_otp"
	ErrCodeExpiredOTP      = "expired_otp"
	ErrCodeInvalidState    = "invalid_state"
)

// AuthError is a field-level error safe to surface to callers. Message is
// user-presentable and stable; Field names the offending input field where
// one applies.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates a new AuthError
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// AsAuthError unwraps err into an *AuthError if it is one.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
