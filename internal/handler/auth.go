package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sneakease/backend/internal/auth"
	"github.com/sneakease/backend/internal/model"
	"github.com/sneakease/backend/internal/service"
)

// AuthHandler exposes the auth flows over HTTP.
//
// Session credentials travel as two HttpOnly cookies (accessToken,
// refreshToken). The Secure flag follows the inbound connection: set when
// the request arrived over TLS directly or via a trusted proxy announcing
// X-Forwarded-Proto: https.
//
// The JSON flows respond with JSON errors; the OAuth callbacks never do —
// the browser is mid-redirect, so failures bounce to the frontend login page
// with the message in a query parameter instead.
type AuthHandler struct {
	service     *service.AuthService
	providers   map[model.ProviderKind]*auth.OAuthProvider
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. providers holds the configured
// federated clients keyed by kind; unconfigured providers are simply absent.
func NewAuthHandler(
	svc *service.AuthService,
	providers map[model.ProviderKind]*auth.OAuthProvider,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		service:     svc,
		providers:   providers,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// authRequest is the shared request body for the local-identity flows. Each
// flow reads the subset of fields it needs.
type authRequest struct {
	DisplayName  string `json:"displayName"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phoneNumber"`
	Password     string `json:"password"`
	NewPassword  string `json:"newPassword"`
	OTP          string `json:"otp"`
	RefreshToken string `json:"refreshToken"`
}

func decode(r *http.Request, into *authRequest) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("handler: decoding request body: %w", err)
	}
	return nil
}

func (req *authRequest) identity() service.Identity {
	return service.Identity{Email: req.Email, PhoneNumber: req.PhoneNumber}
}

// channelHint names where the user should look for the dispatched code.
func channelHint(req *authRequest) string {
	if req.Email != "" {
		return "email"
	}
	return "phone"
}

// HandleSignup registers a local identity and dispatches the verification
// OTP. Responds 201 with a pending-verification acknowledgment — no cookies,
// no tokens.
//
// HTTP: POST /api/v1/auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	if err := h.service.Signup(r.Context(), req.DisplayName, req.identity(), req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: fmt.Sprintf("User created successfully. Please check your %s for verification.", channelHint(&req)),
	})
}

// HandleVerify consumes the signup OTP and establishes the first session.
//
// HTTP: POST /api/v1/auth/verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	pair, err := h.service.Verify(r.Context(), req.identity(), req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, r, pair)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User verified successfully"})
}

// HandleResend regenerates and redispatches the pending OTP.
//
// HTTP: POST /api/v1/auth/resend-otp
func (h *AuthHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	if err := h.service.Resend(r.Context(), req.identity()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("OTP resent successfully. Please check your %s for the verification code.", channelHint(&req)),
	})
}

// HandleForgotPassword starts the reset flow: deactivates the identity and
// dispatches a reset OTP.
//
// HTTP: POST /api/v1/auth/forgot-password
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.identity()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Password reset OTP sent successfully. Please check your %s for the verification code.", channelHint(&req)),
	})
}

// HandleResetPassword consumes the reset OTP, sets the new password and
// establishes a session.
//
// HTTP: POST /api/v1/auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	pair, err := h.service.ResetPassword(r.Context(), req.identity(), req.OTP, req.NewPassword)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, r, pair)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}

// HandleLogin authenticates a local identity with its password.
//
// HTTP: POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	pair, err := h.service.Login(r.Context(), req.identity(), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, r, pair)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User logged in successfully"})
}

// HandleRefresh rotates the session. The refresh token is read from the
// cookie, falling back to the JSON body for non-browser clients.
//
// HTTP: POST /api/v1/auth/refresh-token
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var supplied string
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		supplied = cookie.Value
	}
	if supplied == "" {
		var req authRequest
		// Body is optional here; ignore decode errors and let the service
		// reject the empty token.
		_ = decode(r, &req)
		supplied = req.RefreshToken
	}

	pair, err := h.service.Refresh(r.Context(), supplied)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, r, pair)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Session refreshed successfully"})
}

// HandleOAuthLogin redirects the browser to the federated provider's
// authorization page, with a random state value stored in a short-lived
// cookie for the CSRF check on callback.
//
// HTTP: GET /api/v1/auth/{provider}
func (h *AuthHandler) HandleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // long enough to approve, short enough to limit risk
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleOAuthCallback completes the federated login. Every failure redirects
// to the frontend login page with a human-readable message — the browser is
// following redirects, so JSON errors would dead-end the user on a blob of
// text.
//
// HTTP: GET /api/v1/auth/{provider}/callback?code=...&state=...
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	label := string(provider.Kind())

	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch", slog.String("provider", label))
		h.redirectWithError(w, r, "Authentication session expired. Please try again.")
		return
	}

	// State is single-use.
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" || r.URL.Query().Get("error") != "" {
		h.redirectWithError(w, r, fmt.Sprintf("Failed to authenticate with %s. Please try again later.", label))
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed",
			slog.String("provider", label),
			slog.String("error", err.Error()),
		)
		h.redirectWithError(w, r, fmt.Sprintf("Failed to authenticate with %s. Please try again later.", label))
		return
	}

	_, pair, err := h.service.LoginWithProvider(r.Context(), profile)
	if err != nil {
		h.logger.Error("oauth callback: reconciliation failed",
			slog.String("provider", label),
			slog.String("error", err.Error()),
		)
		h.redirectWithError(w, r, fmt.Sprintf("Failed to authenticate with %s. Please try again later.", label))
		return
	}

	h.setSessionCookies(w, r, pair)
	http.Redirect(w, r, h.frontendURL, http.StatusSeeOther)
}

// HandleLogout clears the session cookies. The tokens stay valid until their
// embedded expiry, but without the cookies the browser can no longer present
// them.
//
// HTTP: POST /api/v1/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{"accessToken", "refreshToken"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// HandleMe returns the authenticated user's record (sub-records projected
// without hashes or OTPs).
//
// HTTP: GET /api/v1/auth/me (RequireAuth-protected)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	user, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// provider resolves the {provider} URL segment to a configured federated
// client, writing the error response itself when it can't.
func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (*auth.OAuthProvider, bool) {
	kind, err := model.ParseProviderKind(chi.URLParam(r, "provider"))
	if err != nil || !kind.IsFederated() {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "unknown provider"})
		return nil, false
	}
	p, ok := h.providers[kind]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "provider not configured"})
		return nil, false
	}
	return p, true
}

// redirectWithError bounces the browser to the frontend login page with the
// message encoded in the error query parameter.
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, fmt.Sprintf("%s/login?error=%s", h.frontendURL, url.QueryEscape(message)), http.StatusSeeOther)
}

// setSessionCookies delivers the credential pair as HttpOnly cookies.
func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, r *http.Request, pair *service.TokenPair) {
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    pair.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refreshToken",
		Value:    pair.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
