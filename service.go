package authkit

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
)

// AuthService glues the auth handlers into a host application serving
// browsers: it keeps the issued access token and user id in a cookie-backed
// session so page handlers can use Middleware without resending bearer
// headers, and it wires the middleware's session getter to that session.
type AuthService struct {
	handler http.Handler

	Session    *scs.SessionManager
	Middleware Middleware
	Handlers   *AuthHandlers

	// Optional name used as a prefix for defaulted session variable names.
	AppName string

	// Name of the session variable where the auth token is stored.
	AuthTokenSessionVar string

	// SessionTimeout defaults to 24 hours.
	SessionTimeout time.Duration
}

// NewAuthService wires an AuthService around a flow.
func NewAuthService(appName string, flow *AuthFlow) *AuthService {
	out := &AuthService{
		AppName:  appName,
		Handlers: &AuthHandlers{Flow: flow},
	}
	return out.EnsureDefaults()
}

// EnsureDefaults fills in reasonable defaults for unset fields. The JWT
// secret for a flow constructed by the host can come from
// AUTHKIT_JWT_SECRET_KEY.
func (a *AuthService) EnsureDefaults() *AuthService {
	if a.AppName == "" {
		a.AppName = "Authkit"
	}
	if a.SessionTimeout <= 0 {
		a.SessionTimeout = 24 * time.Hour
	}
	if a.AuthTokenSessionVar == "" {
		a.AuthTokenSessionVar = fmt.Sprintf("%sAuthToken", a.AppName)
	}
	if a.Session == nil {
		a.Session = scs.New()
		a.Session.Lifetime = a.SessionTimeout
	}
	a.Middleware.EnsureReasonableDefaults()
	if a.Handlers != nil && a.Handlers.Flow != nil && a.Handlers.Flow.Issuer.SecretKey == "" {
		secret := strings.TrimSpace(os.Getenv("AUTHKIT_JWT_SECRET_KEY"))
		a.Handlers.Flow.Issuer.SecretKey = secret
		if a.Handlers.Flow.Verification != nil && a.Handlers.Flow.Verification.SecretKey == "" {
			a.Handlers.Flow.Verification.SecretKey = secret
		}
	}
	if a.Middleware.AuthTokenCookieName == "" {
		a.Middleware.AuthTokenCookieName = a.AuthTokenSessionVar
	}
	if a.Middleware.VerifyToken == nil && a.Handlers != nil && a.Handlers.Flow != nil {
		a.Middleware.VerifyToken = NewTokenVerifier(a.Handlers.Flow.Issuer)
	}
	if a.Middleware.SessionGetter == nil {
		a.Middleware.SessionGetter = func(r *http.Request, param string) any {
			return a.Session.GetString(r.Context(), param)
		}
	}
	if a.Handlers.OnAuthSuccess == nil {
		a.Handlers.OnAuthSuccess = a.saveSession
	}
	return a
}

// Handler returns the mounted auth routes wrapped in session management.
func (a *AuthService) Handler() http.Handler {
	a.EnsureDefaults()
	if a.handler == nil {
		a.handler = a.Session.LoadAndSave(a.Handlers.Router())
	}
	return a.handler
}

// saveSession stores the issued token and user into the browser session after
// a successful login or registration.
func (a *AuthService) saveSession(w http.ResponseWriter, r *http.Request, result *AuthResult) {
	if result == nil || result.Tokens == nil {
		return
	}
	a.Session.Put(r.Context(), a.AuthTokenSessionVar, result.Tokens.AccessToken)
	a.Session.Put(r.Context(), a.Middleware.UserParamName, result.User.ID)
}

// ClearSession logs the browser session out.
func (a *AuthService) ClearSession(r *http.Request) {
	a.Session.Remove(r.Context(), a.AuthTokenSessionVar)
	a.Session.Remove(r.Context(), a.Middleware.UserParamName)
}
