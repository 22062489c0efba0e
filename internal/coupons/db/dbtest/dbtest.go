// Package dbtest opens throwaway sqlite-backed repositories for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gartstein/coupons/internal/coupons/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Config returns a sqlite configuration pointing at a fresh file under dir.
// The file is shared by every pinned connection, which an in-memory database is not.
func Config(dir string, poolSize int) *db.Config {
	return &db.Config{
		Driver:   db.DriverSQLite,
		Path:     filepath.Join(dir, "coupons.db"),
		PoolSize: poolSize,
	}
}

// NewRepository returns a migrated repository with poolSize handles.
// It is closed when the test ends.
func NewRepository(t testing.TB, poolSize int) *db.Repository {
	t.Helper()

	repo, err := db.NewRepository(context.Background(), Config(t.TempDir(), poolSize), zaptest.NewLogger(t))
	require.NoError(t, err, "failed to open test database")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Close(ctx); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return repo
}
