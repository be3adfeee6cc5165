// Package storagetest holds the behaviour every storage.Store must share.
// Backends run it from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// StoreSuite exercises a fresh store per test.
type StoreSuite struct {
	suite.Suite
	NewStore func(t *testing.T) storage.Store

	store storage.Store
	ctx   context.Context
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	suite.Run(t, &StoreSuite{NewStore: newStore})
}

// Times are millisecond aligned and UTC since not every backend keeps more.
var base = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return base.Add(d) }

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore(s.T())
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreSuite) transaction(id, user string, created time.Time, date time.Time, typ core.TransactionType, category string) *core.Transaction {
	return &core.Transaction{
		Meta:        core.Meta{ID: id, UserID: user, CreatedAt: created, UpdatedAt: created},
		Amount:      core.NewMoney(12, 34),
		Description: "desc " + id,
		Type:        typ,
		Category:    category,
		Date:        date,
	}
}

func (s *StoreSuite) insert(recs ...core.Record) {
	for _, r := range recs {
		require.NoError(s.T(), s.store.InsertRecord(s.ctx, r))
	}
}

func ids(rs []core.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Header().ID
	}
	return out
}

func (s *StoreSuite) TestRoundTripEveryKind() {
	recs := []core.Record{
		s.transaction("t1", "u1", at(0), at(time.Hour), core.Expense, "food"),
		&core.SavingsGoal{
			Meta:          core.Meta{ID: "g1", UserID: "u1", CreatedAt: at(0), UpdatedAt: at(time.Minute)},
			Name:          "Vacation",
			TargetAmount:  core.NewMoney(1000, 0),
			CurrentAmount: core.NewMoney(250, 50),
		},
		&core.Bill{
			Meta:        core.Meta{ID: "b1", UserID: "u1", CreatedAt: at(0), UpdatedAt: at(0)},
			Name:        "Rent",
			DueDate:     at(48 * time.Hour),
			Amount:      core.NewMoney(900, 0),
			IsRecurring: true,
		},
	}
	s.insert(recs...)

	for _, want := range recs {
		got, err := s.store.GetRecord(s.ctx, want.Kind(), want.Header().ID)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), want, got)
	}
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.store.GetRecord(s.ctx, core.KindBill, "nope")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestListIsScopedAndOrdered() {
	s.insert(
		s.transaction("a", "u1", at(0), at(10*24*time.Hour), core.Expense, "food"),
		s.transaction("b", "u1", at(time.Hour), at(2*24*time.Hour), core.Income, "salary"),
		s.transaction("c", "u2", at(2*time.Hour), at(3*24*time.Hour), core.Expense, "food"),
		s.transaction("d", "u1", at(3*time.Hour), at(40*24*time.Hour), core.Expense, "Food"),
	)

	list := func(f core.Filter) []string {
		s.T().Helper()
		f, err := f.Normalize(core.KindTransaction)
		require.NoError(s.T(), err)
		got, err := s.store.ListRecords(s.ctx, "u1", core.KindTransaction, f)
		require.NoError(s.T(), err)
		return ids(got)
	}

	assert.Equal(s.T(), []string{"d", "b", "a"}, list(core.Filter{}))
	assert.Equal(s.T(), []string{"a", "b", "d"}, list(core.Filter{Order: core.OrderCreatedAsc}))
	assert.Equal(s.T(), []string{"b", "a", "d"}, list(core.Filter{Order: core.OrderDateAsc}))
	assert.Equal(s.T(), []string{"d", "a"}, list(core.Filter{Category: "food"}))
	assert.Equal(s.T(), []string{"b"}, list(core.Filter{Type: core.Income}))
	assert.Equal(s.T(), []string{"b", "a"}, list(core.Filter{From: at(0), To: at(20 * 24 * time.Hour)}))
	assert.Equal(s.T(), []string{"d"}, list(core.Filter{Limit: 1}))

	got, err := s.store.ListRecords(s.ctx, "nobody", core.KindTransaction, core.Filter{Order: core.OrderCreatedDesc})
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), got)
	assert.Empty(s.T(), got)
}

func (s *StoreSuite) TestReplaceRequiresOwner() {
	tx := s.transaction("t1", "u1", at(0), at(0), core.Expense, "food")
	s.insert(tx)

	stolen := *tx
	stolen.UserID = "u2"
	stolen.Description = "hijacked"
	assert.ErrorIs(s.T(), s.store.ReplaceRecord(s.ctx, &stolen), core.ErrNotFound)

	updated := *tx
	updated.Description = "lunch"
	updated.UpdatedAt = at(time.Hour)
	require.NoError(s.T(), s.store.ReplaceRecord(s.ctx, &updated))

	got, err := s.store.GetRecord(s.ctx, core.KindTransaction, "t1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "lunch", got.(*core.Transaction).Description)
	assert.Equal(s.T(), at(0), got.Header().CreatedAt)
	assert.Equal(s.T(), at(time.Hour), got.Header().UpdatedAt)
}

func (s *StoreSuite) TestDeleteRequiresOwnerAndIsNotRepeatable() {
	s.insert(s.transaction("t1", "u1", at(0), at(0), core.Expense, "food"))

	assert.ErrorIs(s.T(), s.store.DeleteRecord(s.ctx, "u2", core.KindTransaction, "t1"), core.ErrNotFound)
	require.NoError(s.T(), s.store.DeleteRecord(s.ctx, "u1", core.KindTransaction, "t1"))
	assert.ErrorIs(s.T(), s.store.DeleteRecord(s.ctx, "u1", core.KindTransaction, "t1"), core.ErrNotFound)
}

func (s *StoreSuite) TestListBillsDueBefore() {
	bill := func(id, user string, due time.Time) *core.Bill {
		return &core.Bill{
			Meta:    core.Meta{ID: id, UserID: user, CreatedAt: at(0), UpdatedAt: at(0)},
			Name:    id,
			DueDate: due,
			Amount:  core.NewMoney(10, 0),
		}
	}
	s.insert(
		bill("late", "u1", at(72*time.Hour)),
		bill("soon", "u2", at(24*time.Hour)),
		bill("now", "u1", at(0)),
	)

	got, err := s.store.ListBillsDueBefore(s.ctx, at(24*time.Hour))
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 2)
	assert.Equal(s.T(), "now", got[0].ID)
	assert.Equal(s.T(), "soon", got[1].ID)
}

func (s *StoreSuite) TestUsers() {
	users := []core.User{
		{ID: "1", Username: "ada", PasswordHash: "h1", Role: core.RoleAdmin, CreatedAt: at(0), UpdatedAt: at(0)},
		{ID: "2", Username: "bob", PasswordHash: "h2", Role: core.RoleUser, CreatedAt: at(time.Hour), UpdatedAt: at(time.Hour)},
	}
	for _, u := range users {
		require.NoError(s.T(), s.store.CreateUser(s.ctx, u))
	}

	err := s.store.CreateUser(s.ctx, core.User{ID: "3", Username: "ada", PasswordHash: "x", Role: core.RoleUser, CreatedAt: at(0), UpdatedAt: at(0)})
	assert.ErrorIs(s.T(), err, storage.ErrUsernameTaken)

	listed, err := s.store.ListUsers(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), listed, 2)
	assert.Equal(s.T(), "bob", listed[0].Username)
	assert.Equal(s.T(), users[0], listed[1])

	byName, err := s.store.GetUserByUsername(s.ctx, "bob")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "2", byName.ID)

	require.NoError(s.T(), s.store.SetUserRole(s.ctx, "2", core.RoleAdmin, at(2*time.Hour)))
	got, err := s.store.GetUser(s.ctx, "2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), core.RoleAdmin, got.Role)
	assert.Equal(s.T(), at(2*time.Hour), got.UpdatedAt)

	assert.ErrorIs(s.T(), s.store.SetUserRole(s.ctx, "missing", core.RoleUser, at(0)), core.ErrNotFound)
	_, err = s.store.GetUser(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestEmptyUserListIsNotNil() {
	listed, err := s.store.ListUsers(s.ctx)
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), listed)
	assert.Empty(s.T(), listed)
}

func (s *StoreSuite) TestSessions() {
	sess := core.Session{Token: "tok", UserID: "1", ExpiresAt: at(time.Hour)}
	require.NoError(s.T(), s.store.CreateSession(s.ctx, sess))

	got, err := s.store.GetSession(s.ctx, "tok")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), sess, got)

	_, err = s.store.GetSession(s.ctx, "other")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestPing() {
	assert.NoError(s.T(), s.store.Ping(s.ctx))
}
