// Package main is the entry point for the user service.
//
// Configuration comes from environment variables:
//
//	PORT      listen port (default 8000)
//	DB_PATH   sqlite database file (default data/users.db)
//	LOG_LEVEL debug|info|warn|error (default info)
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopmesh/identity/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	port := 8000
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	dbPath := "data/users.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		Port:   port,
		DBPath: dbPath,
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
