package storage

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestPostgresStore wraps a PostgresStore with test cleanup functionality.
type TestPostgresStore struct {
	*PostgresStore
	pool *pgxpool.Pool
}

// NewTestPostgresStore connects to TEST_DATABASE_URL and prepares a clean
// local_storage table. The test is skipped when the variable is unset.
func NewTestPostgresStore(t *testing.T) *TestPostgresStore {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to ping test database: %v", err)
	}

	store := NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to ensure schema: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE local_storage"); err != nil {
		pool.Close()
		t.Fatalf("failed to clean local_storage: %v", err)
	}

	ts := &TestPostgresStore{PostgresStore: store, pool: pool}
	t.Cleanup(ts.Close)
	return ts
}

// Close closes the database connection pool.
func (ts *TestPostgresStore) Close() {
	ts.pool.Close()
}
