// Package testdb holds helpers for tests that need a real database. Tests
// using it are skipped unless the matching environment variable is set.
package testdb

import (
	"database/sql"
	"errors"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Environment variables naming the integration databases.
const (
	PostgresURLEnv = "RELAY_TEST_DATABASE_URL"
	MongoURLEnv    = "RELAY_TEST_MONGODB_URL"
)

// PostgresURL returns the PostgreSQL connection string for integration tests
// or skips t when none is configured.
func PostgresURL(t *testing.T) string {
	t.Helper()
	return lookup(t, PostgresURLEnv)
}

// MongoURL returns the MongoDB connection string for integration tests or
// skips t when none is configured.
func MongoURL(t *testing.T) string {
	t.Helper()
	return lookup(t, MongoURLEnv)
}

func lookup(t *testing.T, env string) string {
	t.Helper()

	raw := os.Getenv(env)
	if raw == "" {
		t.Skipf("%s not set", env)
	}
	t.Logf("using %s=%s", env, MaskURL(raw))
	return raw
}

// MaskURL hides the password in a connection string so it can be logged.
func MaskURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return parsed.Redacted()
}

// WithTx runs fn inside a transaction that is rolled back afterwards, so the
// test leaves no rows behind.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to roll back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}
