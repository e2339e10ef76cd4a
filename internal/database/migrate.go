package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed migrations/001_initial.up.sql
var initialMigrationSQL string

//go:embed migrations/002_login_tracking.up.sql
var loginTrackingSQL string

var requiredTables = []string{
	"users",
	"audit_entries",
}

func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasAllRequiredTables(ctx)
	if err != nil {
		return fmt.Errorf("check existing tables: %w", err)
	}

	if !exists {
		slog.Info("database schema missing tables; applying initial migration")
		if _, err := db.Pool.Exec(ctx, initialMigrationSQL); err != nil {
			return fmt.Errorf("apply initial migration: %w", err)
		}

		exists, err = db.hasAllRequiredTables(ctx)
		if err != nil {
			return fmt.Errorf("re-check tables after migration: %w", err)
		}

		if !exists {
			return fmt.Errorf("schema initialization incomplete: required tables are still missing")
		}
	}

	if err := db.applyLoginTracking(ctx); err != nil {
		return fmt.Errorf("apply login tracking migration: %w", err)
	}

	slog.Info("database schema ensured")
	return nil
}

// applyLoginTracking runs migration 002 when users.last_login_at is missing.
func (db *DB) applyLoginTracking(ctx context.Context) error {
	var hasColumn bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = 'public'
			  AND table_name = 'users'
			  AND column_name = 'last_login_at'
		)
	`).Scan(&hasColumn)
	if err != nil {
		return fmt.Errorf("check last_login_at column: %w", err)
	}

	if !hasColumn {
		slog.Info("applying login tracking migration (002)")
		if _, err := db.Pool.Exec(ctx, loginTrackingSQL); err != nil {
			return fmt.Errorf("exec login tracking SQL: %w", err)
		}
	}

	return nil
}

func (db *DB) hasAllRequiredTables(ctx context.Context) (bool, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_name = ANY($1)
	`, requiredTables).Scan(&count)
	if err != nil {
		return false, err
	}

	return count == len(requiredTables), nil
}
