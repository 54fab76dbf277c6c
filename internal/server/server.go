// Package server wires the dependency graph and the route table. It is the
// composition root: everything below it receives its collaborators through
// constructors and knows nothing about how they were built.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sneakease/backend/internal/auth"
	"github.com/sneakease/backend/internal/config"
	"github.com/sneakease/backend/internal/handler"
	"github.com/sneakease/backend/internal/middleware"
	"github.com/sneakease/backend/internal/model"
	"github.com/sneakease/backend/internal/notify"
	sqliteRepo "github.com/sneakease/backend/internal/repository/sqlite"
	"github.com/sneakease/backend/internal/service"
)

// Server owns the router, the configuration and the database handle. The
// database is closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency chain:
//
//	sqlite.DB → AuthService (with token/password/OTP services and the OTP
//	dispatch channels) → AuthHandler → routes
//
// Each layer receives interfaces or constructed services, never raw config.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  s.config.Tokens.AccessSecret,
		RefreshSecret: s.config.Tokens.RefreshSecret,
		AccessTTL:     s.config.Tokens.AccessTTL,
		RefreshTTL:    s.config.Tokens.RefreshTTL,
	})
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	otps, err := auth.NewOTPService(auth.OTPConfig{
		Digits: s.config.OTP.Digits,
		TTL:    s.config.OTP.TTL,
	})
	if err != nil {
		return fmt.Errorf("creating OTP service: %w", err)
	}

	authService := service.NewAuthService(
		s.db,
		tokens,
		auth.NewPasswordService(),
		otps,
		s.emailSender(),
		s.smsSender(),
		s.logger,
	)

	authHandler := handler.NewAuthHandler(authService, s.oauthProviders(), s.config.FrontendURL, s.logger)

	s.router.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/verify", authHandler.HandleVerify)
		r.Post("/resend-otp", authHandler.HandleResend)
		r.Post("/forgot-password", authHandler.HandleForgotPassword)
		r.Post("/reset-password", authHandler.HandleResetPassword)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh-token", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)

		r.Get("/{provider}", authHandler.HandleOAuthLogin)
		r.Get("/{provider}/callback", authHandler.HandleOAuthCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
		})
	})

	return nil
}

// oauthProviders builds the federated clients that have credentials
// configured. An unconfigured provider is simply absent from the map and its
// routes answer 404.
func (s *Server) oauthProviders() map[model.ProviderKind]*auth.OAuthProvider {
	providers := make(map[model.ProviderKind]*auth.OAuthProvider)
	callback := func(kind model.ProviderKind) string {
		return fmt.Sprintf("%s/api/v1/auth/%s/callback", s.config.BaseURL, kind)
	}

	if c := s.config.OAuth.Google; c.ClientID != "" {
		providers[model.ProviderGoogle] = auth.NewGoogleProvider(c.ClientID, c.ClientSecret, callback(model.ProviderGoogle))
	}
	if c := s.config.OAuth.Facebook; c.ClientID != "" {
		providers[model.ProviderFacebook] = auth.NewFacebookProvider(c.ClientID, c.ClientSecret, callback(model.ProviderFacebook))
	}
	if c := s.config.OAuth.GitHub; c.ClientID != "" {
		providers[model.ProviderGitHub] = auth.NewGitHubProvider(c.ClientID, c.ClientSecret, callback(model.ProviderGitHub))
	}
	return providers
}

// emailSender picks SMTP when configured, the console sender otherwise.
func (s *Server) emailSender() notify.EmailSender {
	if c := s.config.SMTP; c.Host != "" {
		return &notify.SMTPEmailSender{
			Host:     c.Host,
			Port:     c.Port,
			Username: c.Username,
			Password: c.Password,
			From:     c.From,
		}
	}
	s.logger.Warn("SMTP not configured — OTP emails will be logged, not sent")
	return &notify.ConsoleEmailSender{Logger: s.logger}
}

// smsSender picks the HTTP gateway when configured, the console sender
// otherwise.
func (s *Server) smsSender() notify.SMSSender {
	if c := s.config.SMS; c.GatewayURL != "" {
		return &notify.HTTPSMSSender{
			GatewayURL: c.GatewayURL,
			APIKey:     c.APIKey,
			Sender:     c.Sender,
		}
	}
	s.logger.Warn("SMS gateway not configured — OTP texts will be logged, not sent")
	return &notify.ConsoleSMSSender{Logger: s.logger}
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests (30s),
// close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
