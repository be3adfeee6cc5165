package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWith(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	err := run(args, bytes.NewBufferString(stdin), stdout, stderr)
	return stdout.String(), err
}

func TestRun_Success(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fintrack.db")

	out, err := runWith(t, "", "-user", "ada", "-password", "secret", "-role", "admin", "-backend", "sqlite", "-db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "User ada created successfully")
	assert.Contains(t, out, "role admin")

	repo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	defer repo.Close()
	u, err := repo.GetUserByUsername(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, u.Role)
	assert.True(t, auth.CheckPassword(u.PasswordHash, "secret"))
	assert.NotEqual(t, "secret", u.PasswordHash)
}

func TestRun_DuplicateUser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fintrack.bolt")
	args := []string{"-user", "ada", "-password", "secret", "-backend", "bolt", "-db", dbPath}

	_, err := runWith(t, "", args...)
	require.NoError(t, err, "first run should succeed")

	_, err = runWith(t, "", args...)
	require.Error(t, err, "expected error on duplicate user")
	assert.Contains(t, err.Error(), "already exists")
}

func TestRun_MissingUserFlag(t *testing.T) {
	out, err := runWith(t, "", "-password", "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required flags: user")
	assert.Contains(t, out, "Usage:")
}

func TestRun_InvalidRole(t *testing.T) {
	_, err := runWith(t, "", "-user", "ada", "-password", "secret", "-role", "owner")
	assert.ErrorContains(t, err, "invalid role")
}

func TestRun_UnknownBackend(t *testing.T) {
	_, err := runWith(t, "", "-user", "ada", "-password", "secret", "-backend", "sheets")
	assert.ErrorContains(t, err, "invalid backend type")
}

func TestRun_InteractivePassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fintrack.db")

	out, err := runWith(t, "interactive_secret\n", "-user", "grace", "-backend", "sqlite", "-db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "User grace created successfully")
}

func TestRun_EmptyPassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fintrack.db")
	_, err := runWith(t, "   \n", "-user", "grace", "-backend", "sqlite", "-db", dbPath)
	assert.ErrorContains(t, err, "password cannot be empty")
}
