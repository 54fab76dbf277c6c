package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sneakease/backend/internal/apperror"
	"github.com/sneakease/backend/internal/model"
	"github.com/sneakease/backend/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a user together with all of its provider sub-records in one
// transaction. The caller's struct is updated in place with the generated ID
// and timestamps.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	addresses, err := json.Marshal(user.Addresses)
	if err != nil {
		return fmt.Errorf("sqlite: encoding addresses: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, refresh_token, addresses, created_at, updated_at)
		 VALUES (?, NULL, ?, ?, ?)`,
		user.ID, string(addresses), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	for kind, p := range user.Providers {
		p.Kind = kind
		var expiresAt any
		if p.OTPExpiresAt != nil {
			expiresAt = p.OTPExpiresAt.Unix()
		}
		var otp any
		if p.OTP != nil {
			otp = *p.OTP
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO auth_providers
			   (user_id, provider, provider_id, display_name, email, phone_number,
			    password_hash, avatar_url, is_active, otp, otp_expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID, string(kind), nullable(p.ProviderID), p.DisplayName,
			nullable(p.Email), nullable(p.PhoneNumber),
			p.PasswordHash, p.AvatarURL, boolInt(p.IsActive), otp, expiresAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Duplicate("identity")
			}
			return fmt.Errorf("sqlite: inserting %s sub-record: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user insert: %w", err)
	}
	return nil
}

// GetByID loads a full user record including every provider sub-record.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	var (
		u            model.User
		refreshToken sql.NullString
		addresses    string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, refresh_token, addresses, created_at, updated_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &refreshToken, &addresses, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("User not found")
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	u.RefreshToken = refreshToken.String
	if err := json.Unmarshal([]byte(addresses), &u.Addresses); err != nil {
		return nil, fmt.Errorf("sqlite: decoding addresses for user %s: %w", id, err)
	}

	if err := db.loadProviders(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByIdentifier looks a user up by local identity: email for the email
// provider, phone number for the phone provider.
func (db *DB) FindByIdentifier(ctx context.Context, kind model.ProviderKind, identifier string) (*model.User, error) {
	col := "email"
	if kind == model.ProviderPhone {
		col = "phone_number"
	}
	return db.findUserID(ctx, fmt.Sprintf(
		`SELECT user_id FROM auth_providers WHERE provider = ? AND %s = ?`, col,
	), string(kind), identifier)
}

// FindByProviderID looks a user up by a federated identity's stable id.
func (db *DB) FindByProviderID(ctx context.Context, kind model.ProviderKind, providerID string) (*model.User, error) {
	return db.findUserID(ctx,
		`SELECT user_id FROM auth_providers WHERE provider = ? AND provider_id = ?`,
		string(kind), providerID)
}

// Delete removes a user; the sub-records go with it via ON DELETE CASCADE.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("User not found")
	}
	return nil
}

// SetOTP overwrites the pending passcode (and optionally deactivates the
// sub-record) in one UPDATE. There is never a moment where the old and the
// new code are both valid.
func (db *DB) SetOTP(ctx context.Context, userID string, kind model.ProviderKind, code int64, expiresAt time.Time, deactivate bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE auth_providers
		 SET otp = ?, otp_expires_at = ?,
		     is_active = CASE WHEN ? = 1 THEN 0 ELSE is_active END
		 WHERE user_id = ? AND provider = ?`,
		code, expiresAt.Unix(), boolInt(deactivate), userID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting OTP for user %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("User not found")
	}
	return nil
}

// ConsumeOTP is the single atomic step behind verify and reset-password: the
// UPDATE applies only where the stored code matches and has not expired, and
// the same statement activates the sub-record and clears the code so it can
// never be replayed. Returns false when nothing matched — wrong code, expired
// code, or a concurrent caller got there first.
func (db *DB) ConsumeOTP(ctx context.Context, userID string, kind model.ProviderKind, code int64, now time.Time, newPasswordHash string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE auth_providers
		 SET is_active = 1, otp = NULL, otp_expires_at = NULL,
		     password_hash = CASE WHEN ? = '' THEN password_hash ELSE ? END
		 WHERE user_id = ? AND provider = ? AND otp = ? AND otp_expires_at > ?`,
		newPasswordHash, newPasswordHash,
		userID, string(kind), code, now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: consuming OTP for user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: consuming OTP for user %s: %w", userID, err)
	}
	return n == 1, nil
}

// SetRefreshToken unconditionally overwrites the stored refresh token.
func (db *DB) SetRefreshToken(ctx context.Context, userID, token string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: storing refresh token for user %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("User not found")
	}
	return nil
}

// RotateRefreshToken is a compare-and-swap: the new token is written only if
// the stored value still equals current. Two concurrent refresh calls with
// the same stale token therefore succeed at most once.
func (db *DB) RotateRefreshToken(ctx context.Context, userID, current, next string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ?
		 WHERE id = ? AND refresh_token = ?`,
		next, time.Now().UTC(), userID, current,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: rotating refresh token for user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rotating refresh token for user %s: %w", userID, err)
	}
	return n == 1, nil
}

// findUserID resolves a lookup query to a user id and loads the full record.
func (db *DB) findUserID(ctx context.Context, query string, args ...any) (*model.User, error) {
	var id string
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("User not found")
		}
		return nil, fmt.Errorf("sqlite: looking up user: %w", err)
	}
	return db.GetByID(ctx, id)
}

// loadProviders fills u.Providers from the auth_providers rows.
func (db *DB) loadProviders(ctx context.Context, u *model.User) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT provider, provider_id, display_name, email, phone_number,
		        password_hash, avatar_url, is_active, otp, otp_expires_at
		 FROM auth_providers WHERE user_id = ?`, u.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading sub-records for user %s: %w", u.ID, err)
	}
	defer rows.Close()

	u.Providers = make(map[model.ProviderKind]*model.Provider)
	for rows.Next() {
		var (
			p          model.Provider
			kind       string
			providerID sql.NullString
			email      sql.NullString
			phone      sql.NullString
			isActive   int
			otp        sql.NullInt64
			expiresAt  sql.NullInt64
		)
		if err := rows.Scan(&kind, &providerID, &p.DisplayName, &email, &phone,
			&p.PasswordHash, &p.AvatarURL, &isActive, &otp, &expiresAt); err != nil {
			return fmt.Errorf("sqlite: scanning sub-record for user %s: %w", u.ID, err)
		}
		p.Kind, err = model.ParseProviderKind(kind)
		if err != nil {
			return fmt.Errorf("sqlite: user %s: %w", u.ID, err)
		}
		p.ProviderID = providerID.String
		p.Email = email.String
		p.PhoneNumber = phone.String
		p.IsActive = isActive == 1
		if otp.Valid {
			code := otp.Int64
			p.OTP = &code
		}
		if expiresAt.Valid {
			t := time.Unix(expiresAt.Int64, 0)
			p.OTPExpiresAt = &t
		}
		u.Providers[p.Kind] = &p
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: loading sub-records for user %s: %w", u.ID, err)
	}
	return nil
}

// nullable maps "" to SQL NULL so the partial unique indexes ignore rows that
// don't carry the column.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation detects a UNIQUE index conflict. modernc.org/sqlite does
// not export a typed error for this, so we match on the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
