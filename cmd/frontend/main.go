// Package main is the entry point for the frontend gateway.
//
// Configuration comes from environment variables:
//
//	PORT             listen port (default 8080)
//	USER_SERVICE_URL base URL of the user service (default http://localhost:8000)
//	SESSION_SECRET   HMAC secret for session cookies, at least 16 chars (required)
//	REDIS_URL        redis connection URL; unset means in-process sessions
//	LOG_LEVEL        debug|info|warn|error (default info)
package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/shopmesh/identity/internal/facade"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	userServiceURL := os.Getenv("USER_SERVICE_URL")
	if userServiceURL == "" {
		userServiceURL = "http://localhost:8000"
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		logger.Error("SESSION_SECRET must be set, e.g. SESSION_SECRET=$(openssl rand -hex 32)")
		os.Exit(1)
	}

	srv, err := facade.NewServer(facade.Config{
		Port:           port,
		UserServiceURL: userServiceURL,
		SessionSecret:  sessionSecret,
		RedisURL:       os.Getenv("REDIS_URL"),
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
