package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		repo, err := storage.NewSQLiteRepository(":memory:")
		require.NoError(t, err, "failed to create test database")
		return repo
	})
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "fintrack.db")
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(ctx, core.User{ID: "1", Username: "ada", PasswordHash: "h", Role: core.RoleUser}))
	require.NoError(t, repo.Close())

	repo, err = storage.NewSQLiteRepository(path)
	require.NoError(t, err, "migrations must be idempotent")
	defer repo.Close()

	u, err := repo.GetUserByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)
}
