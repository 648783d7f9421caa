package authkit_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authkit "github.com/threatwatch/authkit"
)

func newTestMiddleware() *authkit.Middleware {
	mw := &authkit.Middleware{
		AuthTokenCookieName: "AuthToken",
		VerifyToken: func(token string) (string, error) {
			if token == "valid-token" {
				return "user123", nil
			}
			return "", authkit.ErrInvalidToken
		},
	}
	mw.EnsureReasonableDefaults()
	return mw
}

func TestMiddlewareGetLoggedInUserId(t *testing.T) {
	mw := newTestMiddleware()

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    string
	}{
		{
			name:    "anonymous",
			prepare: func(r *http.Request) {},
			want:    "",
		},
		{
			name: "bearer header",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer valid-token")
			},
			want: "user123",
		},
		{
			name: "invalid bearer",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer bogus")
			},
			want: "",
		},
		{
			name: "cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "AuthToken", Value: "valid-token"})
			},
			want: "user123",
		},
		{
			name: "invalid header falls through to cookie",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer bogus")
				r.AddCookie(&http.Cookie{Name: "AuthToken", Value: "valid-token"})
			},
			want: "user123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/page", nil)
			tt.prepare(req)
			if got := mw.GetLoggedInUserId(req); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddlewareSessionGetter(t *testing.T) {
	mw := newTestMiddleware()
	mw.SessionGetter = func(r *http.Request, param string) any {
		if param == "loggedInUserId" {
			return "session-user"
		}
		return nil
	}

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	if got := mw.GetLoggedInUserId(req); got != "session-user" {
		t.Errorf("got %q, want session-user", got)
	}
}

func TestExtractUser(t *testing.T) {
	mw := newTestMiddleware()
	var captured string
	handler := mw.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = authkit.GetUserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "user123" {
		t.Errorf("context user = %q, want user123", captured)
	}

	// Anonymous requests still pass through.
	captured = "sentinel"
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page", nil))
	if captured != "" {
		t.Errorf("context user = %q, want empty", captured)
	}
}

func TestEnsureUser(t *testing.T) {
	mw := newTestMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/page", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		rr := httptest.NewRecorder()
		mw.EnsureUser(next).ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
	})

	t.Run("anonymous gets 401", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw.EnsureUser(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/page", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("anonymous redirects when login URL configured", func(t *testing.T) {
		redirecting := newTestMiddleware()
		redirecting.GetRedirURL = func(r *http.Request) string { return "/login" }
		rr := httptest.NewRecorder()
		redirecting.EnsureUser(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/private/page", nil))
		if rr.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", rr.Code)
		}
		loc := rr.Header().Get("Location")
		if !strings.HasPrefix(loc, "/login?callbackURL=") {
			t.Errorf("Location = %q", loc)
		}
	})
}

func TestNewTokenVerifier(t *testing.T) {
	flow, _ := newTestFlow(t)
	result := register(t, flow, "alice@example.com", "password123")

	verify := authkit.NewTokenVerifier(flow.Issuer)
	userID, err := verify(result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("userID = %q, want %q", userID, result.User.ID)
	}
	if _, err := verify("garbage"); err == nil {
		t.Error("expected error for garbage token")
	}
}
