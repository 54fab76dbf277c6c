// Package service — authentication business logic.
//
// AuthService is the orchestrator for every public auth flow. It sits between
// the HTTP handlers and the storage/crypto collaborators:
//
//	AuthHandler (HTTP) → AuthService (flows) → UserRepository (store)
//	                   ↘ TokenService / PasswordService / OTPService
//	                   ↘ notify.EmailSender / notify.SMSSender
//
// Every flow is a strict short-circuiting chain: the first failure terminates
// the flow and nothing after it mutates state. Validation happens before any
// store access; storage and hashing failures propagate unchanged.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sneakease/backend/internal/apperror"
	"github.com/sneakease/backend/internal/auth"
	"github.com/sneakease/backend/internal/model"
	"github.com/sneakease/backend/internal/notify"
	"github.com/sneakease/backend/internal/repository"
)

// Identity addresses one local sub-record by its unique identifier. Exactly
// one of the two fields should be set; when both are, email wins.
type Identity struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// TokenPair is the session credential pair returned by flows that end in an
// authenticated session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService drives the signup/verify/login/reset state machine.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	otps      *auth.OTPService
	email     notify.EmailSender
	sms       notify.SMSSender
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	otps *auth.OTPService,
	email notify.EmailSender,
	sms notify.SMSSender,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		otps:      otps,
		email:     email,
		sms:       sms,
		logger:    logger,
	}
}

// selectProvider picks the local provider an Identity addresses. Email takes
// precedence when both fields are present; neither present is a
// missing-fields error.
func selectProvider(id Identity) (model.ProviderKind, string, error) {
	if id.Email != "" {
		return model.ProviderEmail, id.Email, nil
	}
	if id.PhoneNumber != "" {
		return model.ProviderPhone, id.PhoneNumber, nil
	}
	return "", "", apperror.MissingFields("email|phoneNumber")
}

// providerLabel is the human word used in duplicate/not-exists messages.
func providerLabel(kind model.ProviderKind) string {
	if kind == model.ProviderPhone {
		return "Phone Number"
	}
	return "Email"
}

// Signup registers a new local identity and dispatches a verification OTP.
//
// No session credentials are issued — the sub-record starts inactive and the
// account cannot log in until Verify succeeds.
//
// Signup policy: an existing ACTIVE sub-record for the same identifier is a
// duplicate; an existing INACTIVE one is an abandoned signup, and the stale
// user record is deleted before the fresh one is created. Last signup attempt
// wins — this is a replacement, never a merge.
func (s *AuthService) Signup(ctx context.Context, displayName string, id Identity, password string) error {
	kind, identifier, err := selectProvider(id)
	if err != nil {
		return err
	}
	if displayName == "" || password == "" {
		return apperror.MissingFields("displayName|password")
	}

	existing, err := s.users.FindByIdentifier(ctx, kind, identifier)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: looking up %s signup: %w", kind, err)
	}
	if existing != nil {
		if p := existing.Provider(kind); p != nil && p.IsActive {
			return apperror.Duplicate(providerLabel(kind))
		}
		// Abandoned unverified signup — replace it wholesale.
		if err := s.users.Delete(ctx, existing.ID); err != nil {
			return fmt.Errorf("service/auth: replacing stale signup: %w", err)
		}
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}

	now := time.Now()
	code, expiresAt, err := s.otps.Generate(now)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}

	sub := &model.Provider{
		Kind:         kind,
		DisplayName:  displayName,
		PasswordHash: hash,
		IsActive:     false,
		OTP:          &code,
		OTPExpiresAt: &expiresAt,
	}
	if kind == model.ProviderPhone {
		sub.PhoneNumber = identifier
	} else {
		sub.Email = identifier
	}

	user := &model.User{Providers: map[model.ProviderKind]*model.Provider{kind: sub}}
	if err := s.users.Create(ctx, user); err != nil {
		return fmt.Errorf("service/auth: creating %s signup: %w", kind, err)
	}

	s.logger.Info("signup created, verification pending",
		slog.String("userID", user.ID),
		slog.String("provider", string(kind)),
	)

	return s.dispatchOTP(ctx, kind, identifier, code)
}

// Verify consumes a pending signup OTP. On success the sub-record flips
// active, the code is cleared (atomically, in the same store operation) and a
// session credential pair is issued and persisted.
func (s *AuthService) Verify(ctx context.Context, id Identity, otp string) (*TokenPair, error) {
	kind, identifier, err := selectProvider(id)
	if err != nil {
		return nil, err
	}
	if otp == "" {
		return nil, apperror.MissingFields("otp")
	}

	user, err := s.users.FindByIdentifier(ctx, kind, identifier)
	if err != nil {
		return nil, err
	}

	if err := s.consumeOTP(ctx, user.ID, kind, otp, ""); err != nil {
		return nil, err
	}

	s.logger.Info("identity verified",
		slog.String("userID", user.ID),
		slog.String("provider", string(kind)),
	)

	return s.issueSession(ctx, user.ID)
}

// Resend regenerates the pending OTP in place and redispatches it. An
// already-active sub-record has nothing to verify — that is a duplicate, the
// same answer a fresh signup against it would get.
func (s *AuthService) Resend(ctx context.Context, id Identity) error {
	kind, identifier, err := selectProvider(id)
	if err != nil {
		return err
	}

	user, err := s.users.FindByIdentifier(ctx, kind, identifier)
	if err != nil {
		return err
	}
	if p := user.Provider(kind); p != nil && p.IsActive {
		return apperror.Duplicate(providerLabel(kind))
	}

	code, expiresAt, err := s.otps.Generate(time.Now())
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	// Single-statement overwrite: the previous code stops validating the
	// moment the new one exists.
	if err := s.users.SetOTP(ctx, user.ID, kind, code, expiresAt, false); err != nil {
		return fmt.Errorf("service/auth: storing resent OTP: %w", err)
	}

	return s.dispatchOTP(ctx, kind, identifier, code)
}

// ForgotPassword starts the reset flow on an ACTIVE identity: it deactivates
// the sub-record (locking the account out of login until the reset
// completes), issues a fresh OTP and dispatches it.
//
// A missing or still-unverified identity is NOT_FOUND — there is no password
// to reset.
func (s *AuthService) ForgotPassword(ctx context.Context, id Identity) error {
	kind, identifier, err := selectProvider(id)
	if err != nil {
		return err
	}

	user, err := s.users.FindByIdentifier(ctx, kind, identifier)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound(fmt.Sprintf("%s not exists", providerLabel(kind)))
		}
		return err
	}
	if p := user.Provider(kind); p == nil || !p.IsActive {
		return apperror.NotFound(fmt.Sprintf("%s not exists", providerLabel(kind)))
	}

	code, expiresAt, err := s.otps.Generate(time.Now())
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	if err := s.users.SetOTP(ctx, user.ID, kind, code, expiresAt, true); err != nil {
		return fmt.Errorf("service/auth: storing reset OTP: %w", err)
	}

	s.logger.Info("password reset initiated",
		slog.String("userID", user.ID),
		slog.String("provider", string(kind)),
	)

	return s.dispatchOTP(ctx, kind, identifier, code)
}

// ResetPassword consumes the forgot-password OTP, writes the new password
// hash in the same atomic store operation, reactivates the sub-record and
// issues session credentials.
func (s *AuthService) ResetPassword(ctx context.Context, id Identity, otp, newPassword string) (*TokenPair, error) {
	kind, identifier, err := selectProvider(id)
	if err != nil {
		return nil, err
	}
	if otp == "" || newPassword == "" {
		return nil, apperror.MissingFields("otp|newPassword")
	}

	user, err := s.users.FindByIdentifier(ctx, kind, identifier)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	if err := s.consumeOTP(ctx, user.ID, kind, otp, hash); err != nil {
		return nil, err
	}

	s.logger.Info("password reset completed",
		slog.String("userID", user.ID),
		slog.String("provider", string(kind)),
	)

	return s.issueSession(ctx, user.ID)
}

// Login authenticates a local identity with its password. The sub-record
// must exist and be active; the bcrypt comparison is constant-time. On
// success a fresh credential pair is issued and the stored refresh token is
// overwritten.
func (s *AuthService) Login(ctx context.Context, id Identity, password string) (*TokenPair, error) {
	kind, identifier, err := selectProvider(id)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperror.MissingFields("password")
	}

	user, err := s.users.FindByIdentifier(ctx, kind, identifier)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound(fmt.Sprintf("%s not exists", providerLabel(kind)))
		}
		return nil, err
	}
	p := user.Provider(kind)
	if p == nil || !p.IsActive {
		return nil, apperror.NotFound(fmt.Sprintf("%s not exists", providerLabel(kind)))
	}

	if err := s.passwords.Verify(p.PasswordHash, password); err != nil {
		// Same generic class as a failed OTP — the caller cannot tell a
		// wrong password from a wrong account.
		return nil, apperror.Unauthorized("Invalid credentials.")
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("provider", string(kind)),
	)

	return s.issueSession(ctx, user.ID)
}

// Refresh rotates a session: the supplied refresh token must verify against
// the refresh secret, resolve to an existing user AND be the exact value
// currently stored on that user. The store's compare-and-swap does the last
// check and the overwrite in one step, so a stolen pre-rotation token loses
// the race at most once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, apperror.Unauthorized("Unauthorized request")
	}

	userID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid refresh token")
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid refresh token")
		}
		return nil, err
	}

	access, err := s.tokens.GenerateAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	next, err := s.tokens.GenerateRefresh(userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	ok, err := s.users.RotateRefreshToken(ctx, userID, refreshToken, next)
	if err != nil {
		return nil, fmt.Errorf("service/auth: rotating refresh token: %w", err)
	}
	if !ok {
		// Stored value didn't match: this token was already rotated (or the
		// session was re-established elsewhere). Treat as expired.
		return nil, apperror.Unauthorized("Refresh token is expired")
	}

	s.logger.Info("session refreshed", slog.String("userID", userID))

	return &TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// LoginWithProvider reconciles a federated identity assertion onto a user
// record and issues session credentials immediately — federated identities
// skip OTP verification entirely.
//
// Reconciliation is by (provider, providerId) only: the first assertion for
// a pair creates a user, every later one resolves to that same user. Two
// different providerIds are two different users, even with the same email —
// cross-provider merging is never automatic.
func (s *AuthService) LoginWithProvider(ctx context.Context, profile *auth.Profile) (*model.PublicProfile, *TokenPair, error) {
	if profile == nil || !profile.Kind.IsFederated() || profile.ProviderID == "" {
		return nil, nil, apperror.MissingFields("profile")
	}

	user, err := s.users.FindByProviderID(ctx, profile.Kind, profile.ProviderID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, fmt.Errorf("service/auth: looking up %s identity: %w", profile.Kind, err)
		}
		user = &model.User{
			Providers: map[model.ProviderKind]*model.Provider{
				profile.Kind: {
					Kind:        profile.Kind,
					ProviderID:  profile.ProviderID,
					Email:       profile.Email,
					DisplayName: profile.DisplayName,
					AvatarURL:   profile.AvatarURL,
					IsActive:    true, // federated identities are trusted on creation
				},
			},
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, nil, fmt.Errorf("service/auth: creating %s identity: %w", profile.Kind, err)
		}
		s.logger.Info("federated user created",
			slog.String("userID", user.ID),
			slog.String("provider", string(profile.Kind)),
		)
	}

	pair, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user.Profile(profile.Kind), pair, nil
}

// GetUserByID returns the user for the given internal id. Used by /me after
// the middleware has validated the access token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.NotFound("User not found")
	}
	return s.users.GetByID(ctx, id)
}

// issueSession mints a credential pair for userID and persists the refresh
// half, replacing whatever was stored before.
func (s *AuthService) issueSession(ctx context.Context, userID string) (*TokenPair, error) {
	access, err := s.tokens.GenerateAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	refresh, err := s.tokens.GenerateRefresh(userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	if err := s.users.SetRefreshToken(ctx, userID, refresh); err != nil {
		return nil, fmt.Errorf("service/auth: persisting refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// consumeOTP normalizes the supplied code and asks the store to match and
// clear it in one step. A malformed code, a wrong code, an expired code and
// a concurrently-consumed code are all the same generic failure.
func (s *AuthService) consumeOTP(ctx context.Context, userID string, kind model.ProviderKind, supplied, newPasswordHash string) error {
	code, err := auth.Normalize(supplied)
	if err != nil {
		return apperror.NotFound("Invalid or expired OTP.")
	}
	ok, err := s.users.ConsumeOTP(ctx, userID, kind, code, time.Now(), newPasswordHash)
	if err != nil {
		return fmt.Errorf("service/auth: consuming OTP: %w", err)
	}
	if !ok {
		return apperror.NotFound("Invalid or expired OTP.")
	}
	return nil
}

// dispatchOTP sends the code over the channel matching the provider. The
// error propagates to the caller — a flow whose dispatch failed did not
// succeed, even though the code is already stored.
func (s *AuthService) dispatchOTP(ctx context.Context, kind model.ProviderKind, identifier string, code int64) error {
	var err error
	switch kind {
	case model.ProviderPhone:
		err = s.sms.SendOTP(ctx, identifier, code)
	default:
		err = s.email.SendOTP(ctx, identifier, code)
	}
	if err != nil {
		return fmt.Errorf("service/auth: dispatching OTP via %s: %w", kind, err)
	}
	return nil
}
