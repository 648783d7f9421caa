package authkit

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes.
const (
	TokenExpiryAccess  = 15 * time.Minute
	TokenExpiryRefresh = 7 * 24 * time.Hour
)

// TokenPair is the issued credential pair returned to callers.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// AccessClaims is the decoded subject of a valid access token.
type AccessClaims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type subjectJWTClaims struct {
	Email     string `json:"email"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer creates and validates signed access/refresh token pairs.
//
// Access tokens validate statelessly. A refresh token is valid only while its
// signature and expiry hold AND it is present in the owning user's
// RefreshTokens set; removal from the set revokes it. Issuing a pair records
// the refresh token into that set before the pair is returned, so no token
// escapes without being revocable.
type TokenIssuer struct {
	// Store records refresh-token membership. Required.
	Store CredentialStore

	// SecretKey signs both token kinds. Required; loaded once at startup.
	SecretKey string

	// Issuer is the iss claim. Optional.
	Issuer string

	// AccessTokenExpiry defaults to TokenExpiryAccess.
	AccessTokenExpiry time.Duration

	// RefreshTokenExpiry defaults to TokenExpiryRefresh.
	RefreshTokenExpiry time.Duration
}

func (ti *TokenIssuer) accessExpiry() time.Duration {
	if ti.AccessTokenExpiry <= 0 {
		return TokenExpiryAccess
	}
	return ti.AccessTokenExpiry
}

func (ti *TokenIssuer) refreshExpiry() time.Duration {
	if ti.RefreshTokenExpiry <= 0 {
		return TokenExpiryRefresh
	}
	return ti.RefreshTokenExpiry
}

func (ti *TokenIssuer) sign(user *User, tokenType string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := subjectJWTClaims{
		Email:     user.Email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    ti.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ti.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// IssuePair creates an access/refresh pair for user and records the refresh
// token into user's active set via the store. If the store write fails the
// pair is not returned.
func (ti *TokenIssuer) IssuePair(user *User) (*TokenPair, error) {
	access, err := ti.sign(user, "access", ti.accessExpiry())
	if err != nil {
		return nil, err
	}
	refresh, err := ti.sign(user, "refresh", ti.refreshExpiry())
	if err != nil {
		return nil, err
	}

	user.RefreshTokens = append(user.RefreshTokens, refresh)
	if err := ti.Store.Save(user); err != nil {
		user.RemoveRefreshToken(refresh)
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(ti.accessExpiry().Seconds()),
		RefreshToken: refresh,
	}, nil
}

// VerifyAccess validates an access token without a store lookup.
func (ti *TokenIssuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims, err := ti.parse(tokenString, "access")
	if err != nil {
		return nil, err
	}
	return &AccessClaims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The old token is removed
// and the new one added in a single store write. A syntactically valid token
// that is no longer in the owner's active set fails with ErrTokenRevoked,
// distinct from ErrInvalidToken: reuse of a rotated token is a possible
// theft signal worth alerting on upstream.
func (ti *TokenIssuer) Rotate(refreshToken string) (*TokenPair, error) {
	claims, err := ti.parse(refreshToken, "refresh")
	if err != nil {
		return nil, err
	}

	user, err := ti.Store.FindByEmail(claims.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenRevoked
		}
		return nil, err
	}
	if !user.RemoveRefreshToken(refreshToken) {
		return nil, ErrTokenRevoked
	}

	// IssuePair appends the replacement and saves, so removal and addition
	// land in the same write.
	return ti.IssuePair(user)
}

// Revoke removes a single refresh token (logout on one device). Unknown or
// already-removed tokens are not an error; revocation is idempotent.
func (ti *TokenIssuer) Revoke(refreshToken string) error {
	claims, err := ti.parse(refreshToken, "refresh")
	if err != nil {
		return nil
	}
	user, err := ti.Store.FindByEmail(claims.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.RemoveRefreshToken(refreshToken) {
		return nil
	}
	return ti.Store.Save(user)
}

// RevokeAll clears the user's entire refresh token set. Used on
// logout-everywhere and password change.
func (ti *TokenIssuer) RevokeAll(user *User) error {
	user.RefreshTokens = nil
	return ti.Store.Save(user)
}

func (ti *TokenIssuer) parse(tokenString, wantType string) (*subjectJWTClaims, error) {
	var claims subjectJWTClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(ti.SecretKey), nil
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
	if !token.Valid || claims.TokenType != wantType || claims.Subject == "" || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
