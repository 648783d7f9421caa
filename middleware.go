package authkit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type userParamNameKey string

// Middleware resolves the logged-in user for downstream handlers, checking
// the request context, an optional session getter, the Authorization header
// and finally an auth cookie.
type Middleware struct {
	AuthTokenHeaderName string
	AuthTokenCookieName string
	UserParamName       string
	CallbackURLParam    string

	// SessionGetter reads a value from the host's session layer. Optional.
	SessionGetter func(r *http.Request, param string) any

	// GetRedirURL supplies the login redirect target for EnsureUser. When
	// nil, unauthenticated requests get a plain 401.
	GetRedirURL func(r *http.Request) string

	// VerifyToken validates a bearer token and returns the user id. Wire
	// this to TokenIssuer.VerifyAccess via NewTokenVerifier.
	VerifyToken func(tokenString string) (loggedInUserId string, err error)
}

// NewTokenVerifier adapts a TokenIssuer into the Middleware.VerifyToken shape.
func NewTokenVerifier(issuer *TokenIssuer) func(string) (string, error) {
	return func(tokenString string) (string, error) {
		claims, err := issuer.VerifyAccess(tokenString)
		if err != nil {
			return "", err
		}
		return claims.UserID, nil
	}
}

// EnsureReasonableDefaults fills in default config values.
func (a *Middleware) EnsureReasonableDefaults() {
	if a.UserParamName == "" {
		a.UserParamName = "loggedInUserId"
	}
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
}

// GetLoggedInUserId returns the ID of the logged in user for the current
// request, or "" when unauthenticated.
func (a *Middleware) GetLoggedInUserId(r *http.Request) string {
	if v := r.Context().Value(userParamNameKey(a.UserParamName)); v != nil {
		if userId, ok := v.(string); ok && userId != "" {
			return userId
		}
	}

	if a.SessionGetter != nil {
		if v := a.SessionGetter(r, a.UserParamName); v != nil {
			if userId, ok := v.(string); ok && userId != "" {
				return userId
			}
		}
	}

	if a.VerifyToken == nil {
		return ""
	}

	var tokens []string
	if header := r.Header.Get(a.AuthTokenHeaderName); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			tokens = append(tokens, strings.TrimSpace(parts[1]))
		}
	}
	if a.AuthTokenCookieName != "" {
		for _, cookie := range r.Cookies() {
			if cookie.Name == a.AuthTokenCookieName && cookie.Value != "" {
				tokens = append(tokens, cookie.Value)
			}
		}
	}

	for _, token := range tokens {
		if userId, err := a.VerifyToken(token); err == nil && userId != "" {
			return userId
		}
	}
	return ""
}

// ExtractUser loads the logged-in user ID into the request context for
// downstream handlers. It performs no redirects; use EnsureUser to also
// require that a user is present.
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := a.GetLoggedInUserId(r)
		next.ServeHTTP(w, a.setLoggedInUserId(userId, r))
	})
}

// EnsureUser requires an authenticated user, redirecting to the login URL
// when one is configured and returning 401 otherwise.
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := a.GetLoggedInUserId(r)
		if userId == "" {
			redirUrl := ""
			if a.GetRedirURL != nil {
				redirUrl = a.GetRedirURL(r)
			}
			if redirUrl != "" {
				encoded := strings.Replace(url.QueryEscape(r.URL.Path), "+", "%20", -1)
				http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirUrl, a.CallbackURLParam, encoded), http.StatusFound)
			} else {
				http.Error(w, "Login required", http.StatusUnauthorized)
			}
			return
		}
		next.ServeHTTP(w, a.setLoggedInUserId(userId, r))
	})
}

// setLoggedInUserId makes the user id available to all downstream handlers
// as a request-scoped variable.
func (a *Middleware) setLoggedInUserId(userId string, r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), userParamNameKey(a.UserParamName), userId)
	return r.WithContext(ctx)
}

// GetUserIDFromContext retrieves the user id stored by ExtractUser/EnsureUser
// under the default param name.
func GetUserIDFromContext(ctx context.Context) string {
	if v := ctx.Value(userParamNameKey("loggedInUserId")); v != nil {
		if userId, ok := v.(string); ok {
			return userId
		}
	}
	return ""
}
