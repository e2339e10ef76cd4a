package main

import (
	"log/slog"
	"os"

	"go-admin-auth/internal/app"
	"go-admin-auth/internal/logger"
)

func main() {
	// Replaced once the configured format and level are known.
	slog.SetDefault(logger.New(os.Stdout, "pretty", "info"))

	application, err := app.New()
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
