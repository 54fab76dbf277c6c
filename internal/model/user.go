// Package model defines the data structures used throughout the application.
package model

import (
	"fmt"
	"time"
)

// ProviderKind enumerates the five identity providers a user account can be
// linked through. All provider branching in the codebase goes through this
// type — never raw strings — so a typo becomes a compile error or a parse
// failure at the boundary instead of a silent miss deep inside a flow.
type ProviderKind string

const (
	ProviderEmail    ProviderKind = "email"
	ProviderPhone    ProviderKind = "phone"
	ProviderGoogle   ProviderKind = "google"
	ProviderFacebook ProviderKind = "facebook"
	ProviderGitHub   ProviderKind = "github"
)

// ParseProviderKind converts a raw string (from a URL segment or stored row)
// into a ProviderKind. Unknown values are rejected.
func ParseProviderKind(s string) (ProviderKind, error) {
	switch ProviderKind(s) {
	case ProviderEmail, ProviderPhone, ProviderGoogle, ProviderFacebook, ProviderGitHub:
		return ProviderKind(s), nil
	}
	return "", fmt.Errorf("model: unknown provider %q", s)
}

// IsLocal reports whether the provider is owned and verified by this system
// (password + OTP) rather than delegated to an external OAuth provider.
func (k ProviderKind) IsLocal() bool {
	return k == ProviderEmail || k == ProviderPhone
}

// IsFederated is the complement of IsLocal: Google, Facebook or GitHub.
func (k ProviderKind) IsFederated() bool {
	return !k.IsLocal()
}

// Provider is one identity sub-record on a user. It is a tagged variant keyed
// by Kind, stored as one row per (user, provider):
//
//   - Local (email/phone): Email or PhoneNumber is the unique identifier,
//     PasswordHash is set, IsActive starts false until the OTP is verified,
//     and OTP/OTPExpiresAt hold the pending one-time passcode (nil when none).
//   - Federated (google/facebook/github): ProviderID is the provider-assigned
//     stable id, no password and no OTP — federated identities are trusted on
//     creation and always active.
//
// A local sub-record with IsActive=false blocks login until verification (or
// password reset) completes.
type Provider struct {
	Kind         ProviderKind `json:"-"`
	ProviderID   string       `json:"providerId,omitempty"` // federated only
	DisplayName  string       `json:"displayName"`
	Email        string       `json:"email,omitempty"`
	PhoneNumber  string       `json:"phoneNumber,omitempty"`
	PasswordHash string       `json:"-"` // never serialized
	AvatarURL    string       `json:"avatar,omitempty"`
	IsActive     bool         `json:"isActive"`

	// Pending one-time passcode. Pointers because "no OTP outstanding" is a
	// meaningful state distinct from code 0 — both are nil together.
	OTP          *int64     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
}

// Identifier returns the unique lookup key for a local sub-record: the email
// address for ProviderEmail, the phone number for ProviderPhone.
func (p *Provider) Identifier() string {
	if p.Kind == ProviderPhone {
		return p.PhoneNumber
	}
	return p.Email
}

// Address is a postal address attached to a user. Address CRUD lives in the
// storefront layer, not here — the auth core only carries the field so the
// persisted user shape round-trips intact.
type Address struct {
	Country   string `json:"country,omitempty"`
	State     string `json:"state,omitempty"`
	City      string `json:"city,omitempty"`
	Place     string `json:"place,omitempty"`
	Pincode   int    `json:"pincode,omitempty"`
	Landmark  string `json:"landmark,omitempty"`
	HouseName string `json:"houseName,omitempty"`
}

// User is the aggregate root: one record per person, holding up to five
// provider sub-records keyed by provider kind plus the single rotating
// refresh token.
//
// There is deliberately no top-level email or password — all identity data
// lives inside the relevant sub-record, so an email signup and a Google login
// never fight over the same column.
//
// RefreshToken is the server-side copy of the most recently issued refresh
// JWT. A refresh request must present exactly this value; anything else means
// the token was already rotated (or stolen) and is rejected. Empty string
// means no session has been issued yet.
type User struct {
	ID           string                     `json:"id"`
	Providers    map[ProviderKind]*Provider `json:"authProviders"`
	RefreshToken string                     `json:"-"`
	Addresses    []Address                  `json:"addresses"`
	CreatedAt    time.Time                  `json:"createdAt"`
	UpdatedAt    time.Time                  `json:"updatedAt"`
}

// Provider returns the sub-record for the given kind, or nil.
func (u *User) Provider(kind ProviderKind) *Provider {
	if u == nil || u.Providers == nil {
		return nil
	}
	return u.Providers[kind]
}

// PublicProfile is the caller-facing projection of one provider sub-record,
// returned after OAuth logins and by /me. It mirrors the persisted record
// without leaking hashes or OTPs.
type PublicProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
}

// Profile projects the given provider sub-record into a PublicProfile.
// Returns nil if the user has no sub-record for that kind.
func (u *User) Profile(kind ProviderKind) *PublicProfile {
	p := u.Provider(kind)
	if p == nil {
		return nil
	}
	return &PublicProfile{
		ID:          u.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		PhoneNumber: p.PhoneNumber,
		AvatarURL:   p.AvatarURL,
	}
}
