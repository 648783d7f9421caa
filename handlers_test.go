package authkit_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	authkit "github.com/threatwatch/authkit"
	"github.com/threatwatch/authkit/stores"
)

func newTestHandlers(t *testing.T) (*authkit.AuthHandlers, *capturingEmailSender, http.Handler) {
	t.Helper()
	sender := &capturingEmailSender{}
	flow := authkit.NewAuthFlow(stores.NewMemoryCredentialStore(), "test-secret")
	flow.Hasher.Cost = bcrypt.MinCost
	flow.EmailSender = sender
	flow.BaseURL = "http://localhost:8080"
	handlers := &authkit.AuthHandlers{Flow: flow}
	return handlers, sender, handlers.Router()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func registerHTTP(t *testing.T, handler http.Handler, email, password string) map[string]any {
	t.Helper()
	rr := postJSON(t, handler, "/auth/register", map[string]string{
		"email": email, "password": password, "name": "Alice",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rr.Code, rr.Body.String())
	}
	return decodeBody(t, rr)
}

func tokensFrom(t *testing.T, body map[string]any) (access, refresh string) {
	t.Helper()
	tokens, ok := body["tokens"].(map[string]any)
	if !ok {
		t.Fatalf("no tokens in %v", body)
	}
	access, _ = tokens["access_token"].(string)
	refresh, _ = tokens["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("incomplete token pair in %v", tokens)
	}
	return access, refresh
}

func TestHandleRegisterAndLogin(t *testing.T) {
	_, _, handler := newTestHandlers(t)
	body := registerHTTP(t, handler, "alice@example.com", "password123")
	tokensFrom(t, body)

	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("no user in %v", body)
	}
	if user["email"] != "alice@example.com" {
		t.Errorf("user.email = %v", user["email"])
	}

	rr := postJSON(t, handler, "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, handler, "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrongpass99",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", rr.Code)
	}
}

func TestHandleRegisterErrors(t *testing.T) {
	_, _, handler := newTestHandlers(t)
	registerHTTP(t, handler, "alice@example.com", "password123")

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "duplicate email",
			body:       map[string]string{"email": "alice@example.com", "password": "password123"},
			wantStatus: http.StatusConflict,
			wantCode:   authkit.ErrCodeEmailExists,
		},
		{
			name:       "weak password",
			body:       map[string]string{"email": "bob@example.com", "password": "short"},
			wantStatus: http.StatusBadRequest,
			wantCode:   authkit.ErrCodeWeakPassword,
		},
		{
			name:       "disposable email",
			body:       map[string]string{"email": "x@mailinator.com", "password": "password123"},
			wantStatus: http.StatusBadRequest,
			wantCode:   authkit.ErrCodeDisposableEmail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, handler, "/auth/register", tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if body := decodeBody(t, rr); body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %q", body["code"], tt.wantCode)
			}
		})
	}
}

func TestHandleOTPEndpoints(t *testing.T) {
	_, sender, handler := newTestHandlers(t)

	rr := postJSON(t, handler, "/auth/otp/request", map[string]string{"email": "new@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("otp request status = %d, body %s", rr.Code, rr.Body.String())
	}
	code := sender.lastOTP(t)

	rr = postJSON(t, handler, "/auth/otp/verify", map[string]string{
		"email": "new@example.com", "code": code,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("otp verify status = %d, body %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["status"] != string(authkit.OTPStatusPasswordRequired) {
		t.Errorf("status = %v, want password_required", body["status"])
	}

	rr = postJSON(t, handler, "/auth/set-password", map[string]string{
		"email": "new@example.com", "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("set-password status = %d, body %s", rr.Code, rr.Body.String())
	}
	tokensFrom(t, decodeBody(t, rr))

	rr = postJSON(t, handler, "/auth/otp/verify", map[string]string{
		"email": "new@example.com", "code": "000000",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong code status = %d, want 401", rr.Code)
	}
}

func TestHandleVerifyEmail(t *testing.T) {
	_, sender, handler := newTestHandlers(t)
	registerHTTP(t, handler, "alice@example.com", "password123")

	link := sender.verificationLinks[0]
	req := httptest.NewRequest(http.MethodGet, link, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify-email status = %d, body %s", rr.Code, rr.Body.String())
	}

	// Second click: token already used.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("second click status = %d, want 400", rr.Code)
	}
}

func TestHandleForgotAndResetPassword(t *testing.T) {
	_, sender, handler := newTestHandlers(t)
	registerHTTP(t, handler, "alice@example.com", "password123")

	// Known and unknown emails answer identically.
	for _, email := range []string{"alice@example.com", "nobody@example.com"} {
		rr := postJSON(t, handler, "/auth/forgot-password", map[string]string{"email": email})
		if rr.Code != http.StatusOK {
			t.Fatalf("forgot-password(%s) status = %d", email, rr.Code)
		}
	}
	if len(sender.resetLinks) != 1 {
		t.Fatalf("expected 1 reset email, got %d", len(sender.resetLinks))
	}

	token := tokenFromLink(t, sender.resetLinks[0])
	rr := postJSON(t, handler, "/auth/reset-password", map[string]string{
		"token": token, "password": "brandnewpass1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset-password status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, handler, "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "brandnewpass1",
	})
	if rr.Code != http.StatusOK {
		t.Errorf("login with new password status = %d", rr.Code)
	}
}

func TestHandleRefreshAndLogout(t *testing.T) {
	_, _, handler := newTestHandlers(t)
	body := registerHTTP(t, handler, "alice@example.com", "password123")
	_, refresh := tokensFrom(t, body)

	rr := postJSON(t, handler, "/auth/refresh", map[string]string{"refresh_token": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rr.Code, rr.Body.String())
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	var next authkit.TokenPair
	if err := json.Unmarshal(rr.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode pair: %v", err)
	}

	// Old refresh token was rotated out.
	rr = postJSON(t, handler, "/auth/refresh", map[string]string{"refresh_token": refresh})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("rotated token status = %d, want 401", rr.Code)
	}

	rr = postJSON(t, handler, "/auth/logout", map[string]string{"refresh_token": next.RefreshToken})
	if rr.Code != http.StatusNoContent {
		t.Errorf("logout status = %d, want 204", rr.Code)
	}
	rr = postJSON(t, handler, "/auth/refresh", map[string]string{"refresh_token": next.RefreshToken})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", rr.Code)
	}
}

func TestHandleVerifyAndMe(t *testing.T) {
	_, _, handler := newTestHandlers(t)
	body := registerHTTP(t, handler, "alice@example.com", "password123")
	access, _ := tokensFrom(t, body)

	req := httptest.NewRequest(http.MethodPost, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rr.Code, rr.Body.String())
	}
	if v := decodeBody(t, rr); v["valid"] != true || v["email"] != "alice@example.com" {
		t.Errorf("verify body = %v", v)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rr.Code, rr.Body.String())
	}

	// No token.
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("me without token status = %d, want 401", rr.Code)
	}
}

func TestHandleInvalidBody(t *testing.T) {
	_, _, handler := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, want 400", rr.Code)
	}
}

func TestOnAuthSuccessCallback(t *testing.T) {
	handlers, _, _ := newTestHandlers(t)
	called := 0
	handlers.OnAuthSuccess = func(w http.ResponseWriter, r *http.Request, result *authkit.AuthResult) {
		if result == nil || result.Tokens == nil {
			t.Error("callback should receive tokens")
		}
		called++
	}
	handler := handlers.Router()

	registerHTTP(t, handler, "alice@example.com", "password123")
	postJSON(t, handler, "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	if called != 2 {
		t.Errorf("callback called %d times, want 2", called)
	}
}
