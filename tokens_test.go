package authkit_test

import (
	"errors"
	"testing"
	"time"

	authkit "github.com/threatwatch/authkit"
	"github.com/threatwatch/authkit/stores"
)

func newTestIssuer(t *testing.T) (*authkit.TokenIssuer, *authkit.User) {
	t.Helper()
	store := stores.NewMemoryCredentialStore()
	user, err := store.Create(&authkit.User{
		ID:    authkit.NewUserID(),
		Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	issuer := &authkit.TokenIssuer{Store: store, SecretKey: "test-secret"}
	return issuer, user
}

func TestIssuePairAndVerifyAccess(t *testing.T) {
	issuer, user := newTestIssuer(t)

	pair, err := issuer.IssuePair(user)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q", pair.TokenType)
	}
	if pair.ExpiresIn != int64(authkit.TokenExpiryAccess.Seconds()) {
		t.Errorf("ExpiresIn = %d", pair.ExpiresIn)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.AccessToken == pair.RefreshToken {
		t.Fatal("expected distinct non-empty tokens")
	}

	claims, err := issuer.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email {
		t.Errorf("claims = %+v", claims)
	}
	if time.Until(claims.ExpiresAt) > authkit.TokenExpiryAccess {
		t.Errorf("access expiry too far out: %v", claims.ExpiresAt)
	}

	// The refresh token is not an access token.
	if _, err := issuer.VerifyAccess(pair.RefreshToken); !errors.Is(err, authkit.ErrInvalidToken) {
		t.Errorf("refresh token as access: got %v, want ErrInvalidToken", err)
	}

	// The issued refresh token is recorded on the stored user.
	stored, err := issuer.Store.FindByEmail(user.Email)
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if !stored.HasRefreshToken(pair.RefreshToken) {
		t.Error("refresh token missing from stored active set")
	}
}

func TestVerifyAccessRejectsGarbage(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "garbage"},
		{name: "wrong key", token: signedWithOtherKey(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.VerifyAccess(tt.token); !errors.Is(err, authkit.ErrInvalidToken) {
				t.Errorf("got %v, want ErrInvalidToken", err)
			}
		})
	}
}

func signedWithOtherKey(t *testing.T) string {
	t.Helper()
	store := stores.NewMemoryCredentialStore()
	user, err := store.Create(&authkit.User{ID: "u", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	other := &authkit.TokenIssuer{Store: store, SecretKey: "other-secret"}
	pair, err := other.IssuePair(user)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	return pair.AccessToken
}

func TestVerifyAccessExpired(t *testing.T) {
	issuer, user := newTestIssuer(t)
	issuer.AccessTokenExpiry = time.Millisecond

	pair, err := issuer.IssuePair(user)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := issuer.VerifyAccess(pair.AccessToken); !errors.Is(err, authkit.ErrTokenExpired) {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
}

func TestRotate(t *testing.T) {
	issuer, user := newTestIssuer(t)

	pair, err := issuer.IssuePair(user)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	next, err := issuer.Rotate(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("rotation should mint a new refresh token")
	}

	stored, err := issuer.Store.FindByEmail(user.Email)
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if stored.HasRefreshToken(pair.RefreshToken) {
		t.Error("rotated-out token should be removed from the active set")
	}
	if !stored.HasRefreshToken(next.RefreshToken) {
		t.Error("replacement token should be in the active set")
	}

	// Reuse of the rotated-out token is a revocation, not a generic failure.
	if _, err := issuer.Rotate(pair.RefreshToken); !errors.Is(err, authkit.ErrTokenRevoked) {
		t.Errorf("reuse: got %v, want ErrTokenRevoked", err)
	}
	// The replacement still works.
	if _, err := issuer.Rotate(next.RefreshToken); err != nil {
		t.Errorf("replacement rotation failed: %v", err)
	}
}

func TestRotateRejectsInvalid(t *testing.T) {
	issuer, user := newTestIssuer(t)
	issuer.RefreshTokenExpiry = time.Millisecond
	expired, err := issuer.IssuePair(user)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	issuer.RefreshTokenExpiry = 0
	time.Sleep(20 * time.Millisecond)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "garbage", token: "garbage", want: authkit.ErrInvalidToken},
		{name: "access token in refresh slot", token: mustIssue(t, issuer, user).AccessToken, want: authkit.ErrInvalidToken},
		{name: "expired refresh", token: expired.RefreshToken, want: authkit.ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Rotate(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func mustIssue(t *testing.T, issuer *authkit.TokenIssuer, user *authkit.User) *authkit.TokenPair {
	t.Helper()
	pair, err := issuer.IssuePair(user)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	return pair
}

func TestRevoke(t *testing.T) {
	issuer, user := newTestIssuer(t)
	pair := mustIssue(t, issuer, user)

	if err := issuer.Revoke(pair.RefreshToken); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := issuer.Rotate(pair.RefreshToken); !errors.Is(err, authkit.ErrTokenRevoked) {
		t.Errorf("rotate after revoke: got %v, want ErrTokenRevoked", err)
	}
	// Idempotent, even for garbage.
	if err := issuer.Revoke(pair.RefreshToken); err != nil {
		t.Errorf("second Revoke failed: %v", err)
	}
	if err := issuer.Revoke("garbage"); err != nil {
		t.Errorf("Revoke of garbage failed: %v", err)
	}
}

func TestRevokeAll(t *testing.T) {
	issuer, user := newTestIssuer(t)
	first := mustIssue(t, issuer, user)
	second := mustIssue(t, issuer, user)

	stored, err := issuer.Store.FindByEmail(user.Email)
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if err := issuer.RevokeAll(stored); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := issuer.Rotate(token); !errors.Is(err, authkit.ErrTokenRevoked) {
			t.Errorf("rotate after RevokeAll: got %v, want ErrTokenRevoked", err)
		}
	}
}

// failingStore refuses writes, to prove no pair escapes unrecorded.
type failingStore struct {
	authkit.CredentialStore
}

func (f *failingStore) Save(user *authkit.User) error {
	return authkit.ErrStoreUnavailable
}

func TestIssuePairRequiresRecordedRefreshToken(t *testing.T) {
	mem := stores.NewMemoryCredentialStore()
	user, err := mem.Create(&authkit.User{ID: "u", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	issuer := &authkit.TokenIssuer{Store: &failingStore{CredentialStore: mem}, SecretKey: "test-secret"}

	if _, err := issuer.IssuePair(user); !errors.Is(err, authkit.ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
	if len(user.RefreshTokens) != 0 {
		t.Error("failed issuance must not leave a refresh token on the user")
	}
}
