// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"crypto/rsa"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tOgg1/courier/internal/crypto"
	"github.com/tOgg1/courier/internal/db"
	"github.com/tOgg1/courier/internal/store"
)

// NATSURLEnv names the variable that points integration tests at a NATS
// server.
const NATSURLEnv = "COURIER_TEST_NATS_URL"

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
)

// RSAKey returns a 1024-bit key shared by every test in the process.
// Plaintext limit is 117 bytes.
func RSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, keyErr = crypto.GenerateKeyPair(1024)
	})
	if keyErr != nil {
		t.Fatalf("generate test key: %v", keyErr)
	}
	return key
}

// Channel returns a crypto channel over RSAKey.
func Channel(t *testing.T) *crypto.Channel {
	t.Helper()
	return crypto.NewChannel(crypto.NewKeyPairProvider(RSAKey(t)))
}

// OpenDB opens a migrated SQLite database at path and closes it on cleanup.
func OpenDB(t *testing.T, path string) *db.DB {
	t.Helper()
	database, err := db.Open(context.Background(), db.DefaultConfig(path))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// SQLiteStore opens a document store backed by a fresh temporary database.
func SQLiteStore(t *testing.T, opts ...store.Option) *store.SQLiteStore {
	t.Helper()
	return store.NewSQLiteStore(OpenDB(t, filepath.Join(t.TempDir(), "courier.db")), opts...)
}

// RequireNATS returns the NATS URL from COURIER_TEST_NATS_URL or skips the
// test when it is unset.
func RequireNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv(NATSURLEnv)
	if url == "" {
		t.Skipf("skipping NATS test: %s is not set", NATSURLEnv)
	}
	return url
}
