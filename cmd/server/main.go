// Package main is the entry point for the auth server. It stays minimal:
// read configuration, build the logger, start the server. All logic lives in
// the internal packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sneakease/backend/internal/config"
	"github.com/sneakease/backend/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.Tokens.AccessSecret == "" || cfg.Tokens.RefreshSecret == "" {
		logger.Error("ACCESS_TOKEN_SECRET_KEY and REFRESH_TOKEN_SECRET_KEY must be set")
		os.Exit(1)
	}

	// Ensure the database directory exists before the driver tries to create
	// the file inside it.
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
