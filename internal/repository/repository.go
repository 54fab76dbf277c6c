// Package repository declares the storage contracts the service layer depends
// on. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"
	"time"

	"github.com/sneakease/backend/internal/model"
)

// UserRepository is the credential store: one record per user holding the
// provider sub-records and the rotating refresh token.
//
// The OTP and refresh-token methods are deliberately conditional-update
// primitives rather than read-modify-write helpers. Two concurrent verify
// calls (or two concurrent refresh calls with the same stale token) must
// resolve to at most one winner, and the only way to guarantee that without
// locks is to let the store match on the current value and update in a single
// operation.
type UserRepository interface {
	// Create persists a new user together with all of its provider
	// sub-records, assigning ID and timestamps.
	Create(ctx context.Context, user *model.User) error

	// GetByID loads a full user record. Returns apperror.ErrNotFound if
	// absent.
	GetByID(ctx context.Context, id string) (*model.User, error)

	// FindByIdentifier looks a user up by a local identity: the email address
	// for model.ProviderEmail, the phone number for model.ProviderPhone.
	// Returns apperror.ErrNotFound if no such sub-record exists.
	FindByIdentifier(ctx context.Context, kind model.ProviderKind, identifier string) (*model.User, error)

	// FindByProviderID looks a user up by a federated identity's
	// provider-assigned id. Returns apperror.ErrNotFound if absent.
	FindByProviderID(ctx context.Context, kind model.ProviderKind, providerID string) (*model.User, error)

	// Delete removes a user and its sub-records. Used only to replace an
	// abandoned unverified signup with a fresh one.
	Delete(ctx context.Context, id string) error

	// SetOTP overwrites the pending passcode on one sub-record in a single
	// update — there is no window where the old and new code are both live.
	// With deactivate set it also flips the sub-record inactive (the
	// forgot-password lockout). Returns apperror.ErrNotFound if the
	// sub-record does not exist.
	SetOTP(ctx context.Context, userID string, kind model.ProviderKind, code int64, expiresAt time.Time, deactivate bool) error

	// ConsumeOTP atomically matches the stored passcode and clears it: the
	// update applies only where the stored code equals code and the stored
	// expiry is after now, and in the same statement marks the sub-record
	// active and erases the code. A non-empty newPasswordHash is written in
	// the same statement (the reset-password flow). Returns false when
	// nothing matched — wrong code, expired code, or already consumed; the
	// three are indistinguishable by design.
	ConsumeOTP(ctx context.Context, userID string, kind model.ProviderKind, code int64, now time.Time, newPasswordHash string) (bool, error)

	// SetRefreshToken unconditionally overwrites the stored refresh token
	// (login, verify, reset — flows that just authenticated by other means).
	SetRefreshToken(ctx context.Context, userID, token string) error

	// RotateRefreshToken swaps current for next only if current is exactly
	// what is stored (compare-and-swap). Returns false on mismatch, which
	// signals prior rotation or theft.
	RotateRefreshToken(ctx context.Context, userID, current, next string) (bool, error)
}
