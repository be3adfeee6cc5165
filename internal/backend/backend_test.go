package backend

import (
	"context"
	"path/filepath"
	"testing"

	"fintrack/internal/config"
	"fintrack/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.ErrorContains(t, err, "invalid backend type")

	cfg, err := FromAppConfig(&config.Config{DataBackend: "bolt", BoltDBPath: "x.bolt", AMQPURL: "amqp://h", AMQPExchange: "e", AMQPQueue: "q"})
	require.NoError(t, err)
	assert.Equal(t, BoltBackend, cfg.Type)
	assert.Equal(t, "x.bolt", cfg.BoltDBPath)
	assert.Equal(t, "q", cfg.AMQPQueue)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"sqlite ok", Config{Type: SQLiteBackend, SQLiteDBPath: "db"}, ""},
		{"sqlite path", Config{Type: SQLiteBackend}, "SQLite database path"},
		{"mongo uri", Config{Type: MongoBackend, MongoDB: "x"}, "MongoDB URI"},
		{"mongo db", Config{Type: MongoBackend, MongoURI: "mongodb://h"}, "database name"},
		{"bolt path", Config{Type: BoltBackend}, "bbolt database path"},
		{"memory ok", Config{Type: MemoryBackend}, ""},
		{"amqp needs queue", Config{Type: MemoryBackend, AMQPURL: "amqp://h", AMQPExchange: "e"}, "exchange and queue"},
		{"unknown", Config{Type: "sheets"}, "invalid backend type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"sqlite", "mongo", "bolt", "memory"}, GetBackendTypeStrings())
}

func TestCreateBackend(t *testing.T) {
	dir := t.TempDir()
	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "fintrack.db")},
		{Type: BoltBackend, BoltDBPath: filepath.Join(dir, "fintrack.bolt")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := NewFactory(nil).CreateBackend(context.Background(), cfg)
			require.NoError(t, err)
			assert.Nil(t, res.Events)

			ctx := context.Background()
			require.NoError(t, res.Store.Ping(ctx))
			require.NoError(t, res.Store.CreateUser(ctx, core.User{ID: "u1", Username: "ada", PasswordHash: "h", Role: core.RoleUser}))
			u, err := res.Store.GetUserByUsername(ctx, "ada")
			require.NoError(t, err)
			assert.Equal(t, "u1", u.ID)

			assert.NoError(t, res.Cleanup())
		})
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend})
	assert.Error(t, err)
}
