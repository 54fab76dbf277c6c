package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/sneakease/backend/internal/model"
)

// Profile is the normalized identity assertion an OAuth provider hands us
// after a successful authorization code exchange. It is the only shape the
// reconciler ever sees — provider-specific response formats stop here.
type Profile struct {
	Kind        model.ProviderKind
	ProviderID  string // provider-assigned stable id; never changes
	Email       string // may be empty if the user hides it
	DisplayName string
	AvatarURL   string
}

// OAuthProvider wraps golang.org/x/oauth2 for one federated provider's
// Authorization Code flow: redirect out with AuthURL, exchange the returned
// code server-to-server, then fetch and normalize the user profile.
//
// The code-for-token exchange uses the ClientSecret and happens entirely
// server-side — the provider access token never reaches the browser.
type OAuthProvider struct {
	kind        model.ProviderKind
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider registers the Google OAuth client.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		kind:        model.ProviderGoogle,
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

// NewFacebookProvider registers the Facebook OAuth client.
func NewFacebookProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		kind:        model.ProviderFacebook,
		userInfoURL: "https://graph.facebook.com/me?fields=id,name,email,picture",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     facebook.Endpoint,
		},
	}
}

// NewGitHubProvider registers the GitHub OAuth client.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		kind:        model.ProviderGitHub,
		userInfoURL: "https://api.github.com/user",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
	}
}

// Kind returns which federated provider this client talks to.
func (p *OAuthProvider) Kind() model.ProviderKind {
	return p.kind
}

// AuthURL returns the provider authorization URL to redirect the user to.
// The state is a random value stored in a cookie before redirecting and
// checked again on callback — the CSRF guard for the OAuth flow.
func (p *OAuthProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow: trades the authorization code for an access
// token, fetches the provider's user info endpoint with it, and normalizes
// the response into a Profile.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging %s OAuth code: %w", p.kind, err)
	}

	// oauth2.Config.Client returns an http.Client that attaches the bearer
	// token to every request.
	client := p.config.Client(ctx, token)

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetching %s user info: %w", p.kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: %s user info returned status %d", p.kind, resp.StatusCode)
	}

	profile, err := p.decodeProfile(resp)
	if err != nil {
		return nil, err
	}
	if profile.ProviderID == "" {
		return nil, fmt.Errorf("auth: %s returned a profile without an id", p.kind)
	}
	return profile, nil
}

// decodeProfile maps each provider's user info response onto the normalized
// Profile. Only the fields we need are unmarshalled.
func (p *OAuthProvider) decodeProfile(resp *http.Response) (*Profile, error) {
	switch p.kind {
	case model.ProviderGoogle:
		var v struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return nil, fmt.Errorf("auth: decoding google profile: %w", err)
		}
		return &Profile{Kind: p.kind, ProviderID: v.ID, Email: v.Email,
			DisplayName: v.Name, AvatarURL: v.Picture}, nil

	case model.ProviderFacebook:
		var v struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture struct {
				Data struct {
					URL string `json:"url"`
				} `json:"data"`
			} `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return nil, fmt.Errorf("auth: decoding facebook profile: %w", err)
		}
		return &Profile{Kind: p.kind, ProviderID: v.ID, Email: v.Email,
			DisplayName: v.Name, AvatarURL: v.Picture.Data.URL}, nil

	case model.ProviderGitHub:
		var v struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return nil, fmt.Errorf("auth: decoding github profile: %w", err)
		}
		name := v.Name
		if name == "" {
			name = v.Login
		}
		var id string
		if v.ID != 0 {
			id = fmt.Sprintf("%d", v.ID)
		}
		return &Profile{Kind: p.kind, ProviderID: id, Email: v.Email,
			DisplayName: name, AvatarURL: v.AvatarURL}, nil
	}
	return nil, fmt.Errorf("auth: %s is not a federated provider", p.kind)
}
