package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sneakease/backend/internal/auth"
	"github.com/sneakease/backend/internal/model"
	"github.com/sneakease/backend/internal/repository/sqlite"
	"github.com/sneakease/backend/internal/service"
)

type captureSender struct {
	codes []int64
}

func (c *captureSender) SendOTP(_ context.Context, _ string, code int64) error {
	c.codes = append(c.codes, code)
	return nil
}

func (c *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, c.codes, "no OTP was dispatched")
	return strconv.FormatInt(c.codes[len(c.codes)-1], 10)
}

type testApp struct {
	router http.Handler
	email  *captureSender
	sms    *captureSender
}

// newTestApp wires the full stack over an in-memory database, mirroring the
// server's route table. Only Google is configured as a federated provider.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret-at-least-16-chars",
		RefreshSecret: "refresh-secret-at-least-16-char",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)
	otps, err := auth.NewOTPService(auth.OTPConfig{Digits: 6, TTL: 10 * time.Minute})
	require.NoError(t, err)

	email := &captureSender{}
	sms := &captureSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(4), otps, email, sms, logger)

	providers := map[model.ProviderKind]*auth.OAuthProvider{
		model.ProviderGoogle: auth.NewGoogleProvider("client-id", "client-secret", "http://localhost:8080/api/v1/auth/google/callback"),
	}
	h := NewAuthHandler(svc, providers, "http://localhost:3000", logger)

	r := chi.NewRouter()
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/signup", h.HandleSignup)
		r.Post("/verify", h.HandleVerify)
		r.Post("/resend-otp", h.HandleResend)
		r.Post("/forgot-password", h.HandleForgotPassword)
		r.Post("/reset-password", h.HandleResetPassword)
		r.Post("/login", h.HandleLogin)
		r.Post("/refresh-token", h.HandleRefresh)
		r.Post("/logout", h.HandleLogout)
		r.Get("/{provider}", h.HandleOAuthLogin)
		r.Get("/{provider}/callback", h.HandleOAuthCallback)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", h.HandleMe)
		})
	})

	return &testApp{router: r, email: email, sms: sms}
}

func (a *testApp) postJSON(t *testing.T, path string, body map[string]any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func cookieByName(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// signupAndVerify drives an email account to verified and returns the session
// cookies the verify response set.
func (a *testApp) signupAndVerify(t *testing.T, email, password string) (access, refresh *http.Cookie) {
	t.Helper()

	rr := a.postJSON(t, "/api/v1/auth/signup", map[string]any{
		"displayName": "Test User",
		"email":       email,
		"password":    password,
	})
	require.Equal(t, http.StatusCreated, rr.Code, "signup body: %s", rr.Body.String())

	rr = a.postJSON(t, "/api/v1/auth/verify", map[string]any{
		"email": email,
		"otp":   a.email.lastCode(t),
	})
	require.Equal(t, http.StatusOK, rr.Code, "verify body: %s", rr.Body.String())

	access = cookieByName(t, rr, "accessToken")
	refresh = cookieByName(t, rr, "refreshToken")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func TestSignupEndpoint(t *testing.T) {
	t.Run("created pending verification, no session cookies", func(t *testing.T) {
		app := newTestApp(t)

		rr := app.postJSON(t, "/api/v1/auth/signup", map[string]any{
			"displayName": "A",
			"email":       "a@b.com",
			"password":    "secret",
		})

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Contains(t, rr.Body.String(), "check your email")
		assert.Nil(t, cookieByName(t, rr, "accessToken"), "signup must not establish a session")
		assert.Nil(t, cookieByName(t, rr, "refreshToken"))
	})

	t.Run("missing fields", func(t *testing.T) {
		app := newTestApp(t)

		rr := app.postJSON(t, "/api/v1/auth/signup", map[string]any{"displayName": "A", "password": "secret"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "missing_fields")
	})

	t.Run("malformed body", func(t *testing.T) {
		app := newTestApp(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader("{not json"))
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "bad_request")
	})

	t.Run("duplicate active identity", func(t *testing.T) {
		app := newTestApp(t)
		app.signupAndVerify(t, "a@b.com", "secret")

		rr := app.postJSON(t, "/api/v1/auth/signup", map[string]any{
			"displayName": "B",
			"email":       "a@b.com",
			"password":    "other",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "duplicate_identity")
	})
}

func TestVerifyEndpoint(t *testing.T) {
	t.Run("sets HttpOnly session cookies", func(t *testing.T) {
		app := newTestApp(t)
		access, refresh := app.signupAndVerify(t, "a@b.com", "secret")

		assert.True(t, access.HttpOnly)
		assert.True(t, refresh.HttpOnly)
		assert.False(t, access.Secure, "plain HTTP request must not set Secure")
		assert.NotEmpty(t, access.Value)
		assert.NotEmpty(t, refresh.Value)
	})

	t.Run("wrong code is 404", func(t *testing.T) {
		app := newTestApp(t)
		rr := app.postJSON(t, "/api/v1/auth/signup", map[string]any{
			"displayName": "A", "email": "a@b.com", "password": "secret",
		})
		require.Equal(t, http.StatusCreated, rr.Code)

		rr = app.postJSON(t, "/api/v1/auth/verify", map[string]any{"email": "a@b.com", "otp": "000001"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "not_found")
	})

	t.Run("secure cookies behind a TLS-terminating proxy", func(t *testing.T) {
		app := newTestApp(t)
		rr := app.postJSON(t, "/api/v1/auth/signup", map[string]any{
			"displayName": "A", "email": "a@b.com", "password": "secret",
		})
		require.Equal(t, http.StatusCreated, rr.Code)

		payload, _ := json.Marshal(map[string]any{"email": "a@b.com", "otp": app.email.lastCode(t)})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify", bytes.NewReader(payload))
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, cookieByName(t, rec, "accessToken").Secure)
		assert.True(t, cookieByName(t, rec, "refreshToken").Secure)
	})
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		app := newTestApp(t)
		app.signupAndVerify(t, "a@b.com", "secret")

		rr := app.postJSON(t, "/api/v1/auth/login", map[string]any{"email": "a@b.com", "password": "secret"})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotNil(t, cookieByName(t, rr, "accessToken"))
		assert.NotNil(t, cookieByName(t, rr, "refreshToken"))
	})

	t.Run("wrong password", func(t *testing.T) {
		app := newTestApp(t)
		app.signupAndVerify(t, "a@b.com", "secret")

		rr := app.postJSON(t, "/api/v1/auth/login", map[string]any{"email": "a@b.com", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "unauthorized")
	})

	t.Run("unknown identity", func(t *testing.T) {
		app := newTestApp(t)

		rr := app.postJSON(t, "/api/v1/auth/login", map[string]any{"email": "nobody@b.com", "password": "secret"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	t.Run("rotates via cookie", func(t *testing.T) {
		app := newTestApp(t)
		_, refresh := app.signupAndVerify(t, "a@b.com", "secret")

		rr := app.postJSON(t, "/api/v1/auth/refresh-token", nil, refresh)
		assert.Equal(t, http.StatusOK, rr.Code)

		next := cookieByName(t, rr, "refreshToken")
		require.NotNil(t, next)
		assert.NotEqual(t, refresh.Value, next.Value, "refresh token must rotate")

		// The displaced cookie is now rejected.
		rr = app.postJSON(t, "/api/v1/auth/refresh-token", nil, refresh)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("falls back to the body for non-browser clients", func(t *testing.T) {
		app := newTestApp(t)
		_, refresh := app.signupAndVerify(t, "a@b.com", "secret")

		rr := app.postJSON(t, "/api/v1/auth/refresh-token", map[string]any{"refreshToken": refresh.Value})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("no token", func(t *testing.T) {
		app := newTestApp(t)

		rr := app.postJSON(t, "/api/v1/auth/refresh-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestMeEndpoint(t *testing.T) {
	t.Run("returns the profile without secrets", func(t *testing.T) {
		app := newTestApp(t)
		access, _ := app.signupAndVerify(t, "a@b.com", "secret")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.AddCookie(access)
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		assert.Contains(t, body, "a@b.com")
		assert.Contains(t, body, "authProviders")
		assert.NotContains(t, body, "passwordHash")
		assert.NotContains(t, body, "refreshToken")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		app := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestOAuthEndpoints(t *testing.T) {
	t.Run("login redirects to the provider with a state cookie", func(t *testing.T) {
		app := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google", nil)
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
		location := rr.Header().Get("Location")
		assert.Contains(t, location, "accounts.google.com")

		state := cookieByName(t, rr, "oauth_state")
		require.NotNil(t, state)
		assert.True(t, state.HttpOnly)
		assert.Contains(t, location, "state="+state.Value)
	})

	t.Run("unknown provider segment", func(t *testing.T) {
		app := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/twitter", nil)
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("local provider segment is not an OAuth route", func(t *testing.T) {
		app := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/email", nil)
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("known but unconfigured provider", func(t *testing.T) {
		app := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/github", nil)
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "provider not configured")
	})

	t.Run("callback rejects a state mismatch with a frontend redirect", func(t *testing.T) {
		app := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=forged", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "expected"})
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		location := rr.Header().Get("Location")
		assert.Contains(t, location, "http://localhost:3000/login?error=")
	})

	t.Run("callback without a state cookie", func(t *testing.T) {
		app := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=x", nil)
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Contains(t, rr.Header().Get("Location"), "/login?error=")
	})
}

func TestLogoutEndpoint(t *testing.T) {
	app := newTestApp(t)
	access, refresh := app.signupAndVerify(t, "a@b.com", "secret")

	rr := app.postJSON(t, "/api/v1/auth/logout", nil, access, refresh)
	assert.Equal(t, http.StatusOK, rr.Code)

	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookieByName(t, rr, name)
		require.NotNil(t, c, "logout must clear %s", name)
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}
