package memory

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Store { return New() })
}

func TestStoredRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := &core.SavingsGoal{Meta: core.Meta{ID: "g1", UserID: "u1"}, Name: "Car", TargetAmount: core.NewMoney(100, 0)}
	require.NoError(t, s.InsertRecord(ctx, g))

	g.Name = "mutated"
	got, err := s.GetRecord(ctx, core.KindSavings, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Car", got.(*core.SavingsGoal).Name)
}

func TestFailWith(t *testing.T) {
	s := New()
	s.FailWith = errors.New("connection refused")

	_, err := s.ListUsers(context.Background())
	var perr *core.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Error(t, s.Ping(context.Background()))
}
