package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// UserTableSchema creates the users table read by UserRepository.
const UserTableSchema = `CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email CITEXT UNIQUE NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    metadata JSONB,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

// Migrations are the statements needed before UserRepository can be used.
var Migrations = []string{
	"CREATE EXTENSION IF NOT EXISTS citext",
	UserTableSchema,
}

// ApplyMigrations executes the provided SQL statements in order within the given context.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	for i, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate statement %d: %w", i, err)
		}
	}
	return nil
}
