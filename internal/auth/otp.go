// Package auth provides the security primitives for the authentication core:
// one-time passcodes, JWT issuance and validation, password hashing, the
// federated OAuth providers, and the request middleware that ties tokens to
// incoming requests.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// OTPConfig is the one-time passcode policy, injected at construction rather
// than read from the environment at call time.
type OTPConfig struct {
	Digits int           // code length, 4–6 digits
	TTL    time.Duration // absolute lifetime of a code
}

// OTPService generates and checks one-time passcodes.
//
// Codes are numeric and compared as integers everywhere: the stored column is
// an integer, Normalize parses the user's submission, and a submission with
// leading zeros or non-numeric garbage either normalizes to the same integer
// or is rejected — there is no string comparison to get subtly wrong.
// Generated codes never start with zero, so normalization cannot create an
// ambiguous match.
type OTPService struct {
	digits int
	ttl    time.Duration
}

// NewOTPService validates the policy and returns an OTPService.
func NewOTPService(cfg OTPConfig) (*OTPService, error) {
	if cfg.Digits < 4 || cfg.Digits > 6 {
		return nil, fmt.Errorf("auth: OTP length must be 4-6 digits, got %d", cfg.Digits)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("auth: OTP TTL must be positive")
	}
	return &OTPService{digits: cfg.Digits, ttl: cfg.TTL}, nil
}

// Generate produces a fresh code and its absolute expiry.
//
// The code is drawn from crypto/rand in [10^(digits-1), 10^digits), i.e. a
// full-length number with a non-zero leading digit. math/rand would be
// guessable by an attacker who can observe a few codes; OTPs are credentials,
// so they get a CSPRNG.
func (s *OTPService) Generate(now time.Time) (code int64, expiresAt time.Time, err error) {
	low := int64(1)
	for i := 1; i < s.digits; i++ {
		low *= 10
	}
	span := big.NewInt(low * 9) // [low, 10*low) has 9*low values

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("auth: generating OTP: %w", err)
	}
	return low + n.Int64(), now.Add(s.ttl), nil
}

// Normalize parses a user-supplied code into the integer form codes are
// stored and compared in. Anything that is not a plain non-negative decimal
// number is rejected; the caller surfaces the same generic invalid-or-expired
// error it uses for a wrong code.
func Normalize(supplied string) (int64, error) {
	code, err := strconv.ParseInt(supplied, 10, 64)
	if err != nil || code < 0 {
		return 0, errors.New("auth: malformed OTP")
	}
	return code, nil
}

// Matches reports whether a supplied code matches the stored one and the
// stored expiry is still in the future. A nil stored code or expiry (no OTP
// outstanding), a wrong code and an expired code all return false — callers
// must not distinguish the cases to the user.
//
// This check is advisory: the authoritative match-and-clear happens in the
// store's ConsumeOTP so that two concurrent verifies cannot both win.
func Matches(stored *int64, expiresAt *time.Time, supplied int64, now time.Time) bool {
	if stored == nil || expiresAt == nil {
		return false
	}
	return *stored == supplied && now.Before(*expiresAt)
}
