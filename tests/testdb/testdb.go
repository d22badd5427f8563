// Package testdb provides shared Postgres helpers for integration tests.
// Tests using it are skipped unless TEST_DATABASE_URL points at a
// disposable database; the schema is applied on first connect and every
// table is truncated between tests.
package testdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SetupTestDB connects to the database named by TEST_DATABASE_URL,
// applies the migration schema, and registers a cleanup that truncates
// all tables and closes the pool. Tests are skipped when the variable is
// unset so the unit-test tier never needs a running Postgres.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database integration test")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}

	applyMigrations(t, pool)

	t.Cleanup(func() {
		CleanupTestDB(t, pool)
		pool.Close()
	})

	return pool
}

// applyMigrations runs every .sql file under internal/infra/postgres/
// migrations in name order. The migrations are idempotent (CREATE ... IF
// NOT EXISTS) so re-applying on every setup is safe.
func applyMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to locate testdb source file")
	}
	migrationsDir := filepath.Join(filepath.Dir(thisFile), "..", "..",
		"internal", "infra", "postgres", "migrations")

	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}

	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("failed to read migration %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			t.Fatalf("failed to apply migration %s: %v", f, err)
		}
	}
}

// CleanupTestDB truncates all tables in reverse dependency order.
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{
		"scheduled_job_runs",
		"scheduled_jobs",
		"collections",
		"libraries",
	}

	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s CASCADE", table))
		if err != nil {
			// Log but don't fail - table might not exist yet
			t.Logf("Warning: failed to truncate %s: %v", table, err)
		}
	}
}

// TruncateTable truncates a specific table.
func TruncateTable(t *testing.T, pool *pgxpool.Pool, table string) {
	t.Helper()

	ctx := context.Background()
	_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s CASCADE", table))
	if err != nil {
		t.Fatalf("failed to truncate %s: %v", table, err)
	}
}
