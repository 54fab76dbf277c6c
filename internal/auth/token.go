package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// Sentinel validation failures. Expired and tampered tokens are distinct
// internally (logging, metrics) but both map to the same 401 at the boundary.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenConfig holds the signing policy for both token classes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenService issues and validates the two session credential classes.
//
// Access tokens are short-lived and carry only the user id in the "sub"
// claim — proving identity for a single request window with no DB lookup.
// Refresh tokens are long-lived and additionally persisted server-side on
// the user record, so they can be revoked by rotation (see the repository's
// RotateRefreshToken).
//
// The two classes are signed with DIFFERENT secrets. That is what stops a
// refresh token being replayed as an access token: it simply fails signature
// verification against the access secret.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

// NewTokenService validates the signing policy and returns a TokenService.
// Secrets must be at least 16 bytes and must differ from each other.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.AccessSecret) < 16 || len(cfg.RefreshSecret) < 16 {
		return nil, errors.New("auth: token secrets must be at least 16 characters")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token TTLs must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "sneakease"
	}
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
	}, nil
}

// claims is the JWT payload. The user id travels in the standard "sub"
// (Subject) claim; expiry and issuer are the registered claims.
type claims struct {
	jwt.RegisteredClaims
}

// GenerateAccess creates a signed short-lived access token for userID.
func (s *TokenService) GenerateAccess(userID string) (string, error) {
	return s.generate(userID, s.accessSecret, s.accessTTL)
}

// GenerateRefresh creates a signed long-lived refresh token for userID.
// The caller is responsible for persisting it on the user record — an
// unpersisted refresh token will fail the rotation check.
func (s *TokenService) GenerateRefresh(userID string) (string, error) {
	return s.generate(userID, s.refreshSecret, s.refreshTTL)
}

func (s *TokenService) generate(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
			// The timestamp claims only have second precision, so without a
			// unique jti two tokens minted in the same second would be
			// byte-identical — and the refresh rotation's compare-and-swap
			// would swap a token for an equal copy of itself.
			ID: xid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// ValidateAccess verifies an access token and returns the embedded user id.
func (s *TokenService) ValidateAccess(tokenStr string) (string, error) {
	return s.validate(tokenStr, s.accessSecret)
}

// ValidateRefresh verifies a refresh token signature and expiry and returns
// the embedded user id. It does NOT check the token against the stored value
// on the user — that comparison belongs to the refresh flow, which must do it
// as a compare-and-swap.
func (s *TokenService) ValidateRefresh(tokenStr string) (string, error) {
	return s.validate(tokenStr, s.refreshSecret)
}

// validate parses and verifies a JWT against one secret class.
//
// The jwt library checks signature, expiry and issuer. WithValidMethods pins
// the algorithm to HS256 — without it an attacker could attempt an algorithm
// confusion attack with an "alg":"none" token.
func (s *TokenService) validate(tokenStr string, secret []byte) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return "", ErrTokenInvalid
	}
	return c.Subject, nil
}
