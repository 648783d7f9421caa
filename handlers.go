package authkit

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// AuthSuccessFunc is called after a flow issues a token pair, letting hosts
// establish a browser session or emit analytics. Optional.
type AuthSuccessFunc func(w http.ResponseWriter, r *http.Request, result *AuthResult)

// AuthHandlers exposes the AuthFlow over HTTP. Request bodies are decoded
// into explicit request structs and validated before any business logic runs;
// a shape mismatch is a field-level validation error, never a panic deeper in.
type AuthHandlers struct {
	Flow *AuthFlow

	// OnAuthSuccess runs after login/registration issues tokens. Optional.
	OnAuthSuccess AuthSuccessFunc

	// OnError overrides the default JSON error rendering when it returns
	// true. Optional.
	OnError func(w http.ResponseWriter, r *http.Request, err error) bool
}

// Router mounts all auth endpoints on a fresh router.
func (h *AuthHandlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/auth/register", h.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/otp/request", h.HandleRequestOTP).Methods(http.MethodPost)
	r.HandleFunc("/auth/otp/verify", h.HandleVerifyOTP).Methods(http.MethodPost)
	r.HandleFunc("/auth/set-password", h.HandleSetPassword).Methods(http.MethodPost)
	r.HandleFunc("/auth/verify-email", h.HandleVerifyEmail).Methods(http.MethodGet)
	r.HandleFunc("/auth/forgot-password", h.HandleForgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/auth/reset-password", h.HandleResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.HandleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.HandleLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout-all", h.HandleLogoutAll).Methods(http.MethodPost)
	r.HandleFunc("/auth/verify", h.HandleVerify).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", h.HandleMe).Methods(http.MethodGet)
	return r
}

func (h *AuthHandlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Flow.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.OnAuthSuccess != nil {
		h.OnAuthSuccess(w, r, result)
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *AuthHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Email and password required", "email"))
		return
	}
	result, err := h.Flow.Login(req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.OnAuthSuccess != nil {
		h.OnAuthSuccess(w, r, result)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandlers) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Email is required", "email"))
		return
	}
	if err := h.Flow.RequestOTP(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "A login code has been sent to your email",
	})
}

func (h *AuthHandlers) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Email and code required", "code"))
		return
	}
	result, err := h.Flow.VerifyOTP(req.Email, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if result.Tokens != nil && h.OnAuthSuccess != nil {
		h.OnAuthSuccess(w, r, &AuthResult{User: result.User, Tokens: result.Tokens})
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandlers) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Email is required", "email"))
		return
	}
	result, err := h.Flow.SetPassword(req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.OnAuthSuccess != nil {
		h.OnAuthSuccess(w, r, result)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandlers) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Token required", "token"))
		return
	}
	user, err := h.Flow.VerifyEmail(token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Email verified successfully",
		"user":    user,
	})
}

func (h *AuthHandlers) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Email is required", "email"))
		return
	}
	if err := h.Flow.RequestPasswordReset(req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	// Always success, to avoid revealing whether the email exists.
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If that email exists, a reset link has been sent",
	})
}

func (h *AuthHandlers) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Token required", "token"))
		return
	}
	if err := h.Flow.ResetPassword(req.Token, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password reset successfully",
	})
}

func (h *AuthHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Refresh token required", "refresh_token"))
		return
	}
	pair, err := h.Flow.Refresh(req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, pair)
}

func (h *AuthHandlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	// Revocation errors are not revealed; the token may never have existed.
	if err := h.Flow.Logout(req.RefreshToken); err != nil {
		log.Printf("error revoking token: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, err := h.bearerClaims(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Flow.LogoutAll(claims.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerify validates a bearer access token and echoes its subject, the
// stateless health check API clients use before long polling sessions.
func (h *AuthHandlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	claims, err := h.bearerClaims(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"user_id": claims.UserID,
		"email":   claims.Email,
	})
}

func (h *AuthHandlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeError(w, r, ErrInvalidToken)
		return
	}
	user, err := h.Flow.CurrentUser(token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandlers) bearerClaims(r *http.Request) (*AccessClaims, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, ErrInvalidToken
	}
	return h.Flow.Issuer.VerifyAccess(token)
}

// decode parses a JSON body into dst, reporting a validation error on any
// shape mismatch. Returns false when a response has already been written.
func (h *AuthHandlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, NewAuthError(ErrCodeMissingField, "Invalid request body", ""))
		return false
	}
	return true
}

func (h *AuthHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if h.OnError != nil && h.OnError(w, r, err) {
		return
	}
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

// errorResponse maps the error taxonomy onto status codes and a stable JSON
// shape.
func errorResponse(err error) (int, map[string]any) {
	if ae, ok := AsAuthError(err); ok {
		status := http.StatusBadRequest
		switch ae.Code {
		case ErrCodeInvalidCreds, ErrCodeInvalidOTP, ErrCodeExpiredOTP:
			status = http.StatusUnauthorized
		case ErrCodeEmailExists:
			status = http.StatusConflict
		}
		body := map[string]any{"error": ae.Message, "code": ae.Code}
		if ae.Field != "" {
			body["field"] = ae.Field
		}
		return status, body
	}

	switch {
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, map[string]any{"error": "Invalid token", "code": "invalid_token"}
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, map[string]any{"error": "Token expired", "code": "token_expired"}
	case errors.Is(err, ErrTokenRevoked):
		return http.StatusUnauthorized, map[string]any{"error": "Token has been revoked", "code": "token_revoked"}
	case errors.Is(err, ErrTokenUsed):
		return http.StatusBadRequest, map[string]any{"error": "Token already used", "code": "token_used"}
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable, map[string]any{"error": "Service temporarily unavailable", "code": "store_unavailable"}
	}
	log.Printf("auth handler error: %v", err)
	return http.StatusInternalServerError, map[string]any{"error": "Internal error", "code": "internal"}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// bearerToken extracts the Bearer token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
