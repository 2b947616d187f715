// Package testutil provides shared test helpers for integration tests that
// need a real PostgreSQL connection. The store test files that call
// NewPostgresTestPool follow the pattern of exercising postgres adapters
// against a live database used by
// internal/infra/lark/oauth/token_store_postgres_test.go; this package's
// shape is inferred from that call site.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// testDatabaseURLEnv names the environment variable integration tests read
// to find a live PostgreSQL instance.
const testDatabaseURLEnv = "DISPATCH_TEST_DATABASE_URL"

// NewPostgresTestPool connects to the database named by
// DISPATCH_TEST_DATABASE_URL, skipping the test if it is unset. It returns
// the pool, the raw connection string, and a cleanup func that closes the
// pool.
func NewPostgresTestPool(t *testing.T) (*pgxpool.Pool, string, func()) {
	t.Helper()

	dsn := os.Getenv(testDatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping postgres integration test", testDatabaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("testutil: connect to %s: %v", testDatabaseURLEnv, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("testutil: ping %s: %v", testDatabaseURLEnv, err)
	}

	return pool, dsn, pool.Close
}
