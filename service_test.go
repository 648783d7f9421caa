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

func newTestService(t *testing.T) *authkit.AuthService {
	t.Helper()
	flow := authkit.NewAuthFlow(stores.NewMemoryCredentialStore(), "test-secret")
	flow.Hasher.Cost = bcrypt.MinCost
	return authkit.NewAuthService("TestApp", flow)
}

func TestAuthServiceDefaults(t *testing.T) {
	svc := newTestService(t)
	if svc.Session == nil {
		t.Fatal("expected a session manager")
	}
	if svc.AuthTokenSessionVar != "TestAppAuthToken" {
		t.Errorf("AuthTokenSessionVar = %q", svc.AuthTokenSessionVar)
	}
	if svc.Middleware.VerifyToken == nil {
		t.Error("expected VerifyToken to be wired")
	}
	if svc.Middleware.UserParamName != "loggedInUserId" {
		t.Errorf("UserParamName = %q", svc.Middleware.UserParamName)
	}
}

// A browser that registers through the service should be recognized on later
// page requests purely via its session cookie.
func TestAuthServiceSessionLogin(t *testing.T) {
	svc := newTestService(t)
	authHandler := svc.Handler()

	var pageUser string
	page := svc.Session.LoadAndSave(svc.Middleware.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pageUser = authkit.GetUserIDFromContext(r.Context())
	})))

	body, _ := json.Marshal(map[string]string{
		"email": "alice@example.com", "password": "password123", "name": "Alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	authHandler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rr.Code, rr.Body.String())
	}
	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	pageReq := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range cookies {
		pageReq.AddCookie(c)
	}
	page.ServeHTTP(httptest.NewRecorder(), pageReq)
	if pageUser == "" {
		t.Error("expected session cookie to identify the user on page requests")
	}

	// Without the cookie the page sees an anonymous request.
	pageUser = "sentinel"
	page.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if pageUser != "" {
		t.Errorf("anonymous page user = %q, want empty", pageUser)
	}
}
