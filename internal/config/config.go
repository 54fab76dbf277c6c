// Package config loads server configuration from environment variables.
//
// Every value the auth core needs — token secrets, TTLs, OTP policy, OAuth
// client credentials — is read here exactly once at startup and passed down
// explicitly. Nothing below main reads the environment at call time, which
// keeps the token and OTP services constructible in tests with whatever
// policy the test needs.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the top-level server configuration.
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DBPath      string `env:"DB_PATH" envDefault:"data/sneakease.db"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	BaseURL     string `env:"BASE_URL"` // public URL for OAuth callbacks; defaults to http://localhost:{Port}

	Tokens TokenConfig
	OTP    OTPConfig
	OAuth  OAuthConfig
	SMTP   SMTPConfig
	SMS    SMSConfig
}

// TokenConfig holds the signing secrets and lifetimes for the two token
// classes. The access and refresh secrets must differ — a refresh token must
// never verify as an access token or vice versa.
type TokenConfig struct {
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET_KEY"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET_KEY"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"720h"`
}

// OTPConfig controls one-time passcode generation.
type OTPConfig struct {
	Digits int           `env:"OTP_DIGITS" envDefault:"6"` // 4..6
	TTL    time.Duration `env:"OTP_EXPIRY" envDefault:"10m"`
}

// OAuthClient is one provider's client registration.
type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// OAuthConfig holds the three federated providers' client credentials.
// A provider with an empty ClientID is simply not registered on the router.
type OAuthConfig struct {
	Google   OAuthClient `envPrefix:"GOOGLE_"`
	Facebook OAuthClient `envPrefix:"FACEBOOK_"`
	GitHub   OAuthClient `envPrefix:"GITHUB_"`
}

// SMTPConfig configures the email OTP channel. With an empty Host the server
// falls back to the console sender (logs instead of sending) — useful in
// development.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

// SMSConfig configures the SMS OTP channel (HTTP gateway style). Empty URL
// falls back to the console sender.
type SMSConfig struct {
	GatewayURL string `env:"SMS_GATEWAY_URL"`
	APIKey     string `env:"SMS_API_KEY"`
	Sender     string `env:"SMS_SENDER" envDefault:"SneakEase"`
}

// Load parses the full configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	return cfg, nil
}
