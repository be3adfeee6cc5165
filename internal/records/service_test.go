package records_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/records"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var now = time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []amqp.RecordEvent
	err    error
}

func (p *fakePublisher) PublishRecordEvent(_ context.Context, ev *amqp.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *ev)
	return nil
}

func (p *fakePublisher) actions() []amqp.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.Action, len(p.events))
	for i, e := range p.events {
		out[i] = e.Action
	}
	return out
}

type ServiceSuite struct {
	suite.Suite
	NewStore func(t *testing.T) storage.RecordStore

	store     storage.RecordStore
	publisher *fakePublisher
	svc       *records.Service
	seq       int
}

func (s *ServiceSuite) SetupTest() {
	s.store = s.NewStore(s.T())
	s.publisher = &fakePublisher{}
	s.seq = 0
	s.svc = s.newService(core.Policy{})
}

func (s *ServiceSuite) newService(p core.Policy, opts ...records.Option) *records.Service {
	base := []records.Option{
		records.WithPolicy(p),
		records.WithPublisher(s.publisher),
		records.WithClock(func() time.Time { return now }),
		records.WithIDs(func() string {
			s.seq++
			return fmt.Sprintf("id-%03d", s.seq)
		}),
	}
	return records.NewService(s.store, append(base, opts...)...)
}

func (s *ServiceSuite) ctx() context.Context { return context.Background() }

func (s *ServiceSuite) expense(userID string, amount string) core.Record {
	rec, err := s.svc.CreateRecord(s.ctx(), userID, core.KindTransaction, core.Fields{
		"amount":      json.Number(amount),
		"description": "groceries",
		"type":        "expense",
		"category":    "food",
		"date":        "2025-06-01",
	})
	s.Require().NoError(err)
	return rec
}

func (s *ServiceSuite) TestCreateThenGetRoundTrip() {
	created := s.expense("alice", "42.10")

	got, err := s.svc.GetRecord(s.ctx(), "alice", core.KindTransaction, created.Header().ID)
	s.Require().NoError(err)
	s.Equal(created, got)

	tx := got.(*core.Transaction)
	s.Equal("alice", tx.UserID)
	s.Equal(int64(4210), tx.Amount.Cents)
	s.Equal(now, tx.CreatedAt)
	s.Equal(now, tx.UpdatedAt)
	s.Equal([]amqp.Action{amqp.ActionCreated}, s.publisher.actions())

	listed, err := s.svc.ListRecords(s.ctx(), "alice", core.KindTransaction, core.Filter{})
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(created, listed[0])
}

func (s *ServiceSuite) TestTimestampsAreMillisecondPrecision() {
	fine := time.Date(2025, 6, 10, 8, 0, 0, 123456789, time.UTC)
	svc := s.newService(core.Policy{}, records.WithClock(func() time.Time { return fine }))

	created, err := svc.CreateRecord(s.ctx(), "alice", core.KindTransaction, core.Fields{
		"amount": json.Number("-3.20"), "description": "bus", "type": "expense", "category": "transport",
	})
	s.Require().NoError(err)

	want := fine.Truncate(time.Millisecond)
	tx := created.(*core.Transaction)
	s.Equal(want, tx.CreatedAt)
	s.Equal(want, tx.UpdatedAt)
	s.Equal(want, tx.Date)

	listed, err := svc.ListRecords(s.ctx(), "alice", core.KindTransaction, core.Filter{})
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(created, listed[0])

	updated, err := svc.UpdateRecord(s.ctx(), "alice", core.KindTransaction, tx.ID, core.Fields{"date": nil})
	s.Require().NoError(err)
	s.Equal(want, updated.Header().UpdatedAt)
	s.Equal(want, updated.(*core.Transaction).Date, "a null date resets to the service clock")
}

func (s *ServiceSuite) TestListIsScopedToCaller() {
	s.expense("alice", "10")
	s.expense("alice", "20")
	s.expense("bob", "30")

	alice, err := s.svc.ListRecords(s.ctx(), "alice", core.KindTransaction, core.Filter{})
	s.Require().NoError(err)
	s.Len(alice, 2)
	for _, r := range alice {
		s.Equal("alice", r.Header().UserID)
	}

	carol, err := s.svc.ListRecords(s.ctx(), "carol", core.KindTransaction, core.Filter{})
	s.Require().NoError(err)
	s.NotNil(carol)
	s.Empty(carol)
}

func (s *ServiceSuite) TestGetByOtherUserIsForbidden() {
	rec := s.expense("alice", "10")

	_, err := s.svc.GetRecord(s.ctx(), "bob", core.KindTransaction, rec.Header().ID)
	s.ErrorIs(err, core.ErrForbidden)
}

func (s *ServiceSuite) TestUpdateByNonOwnerLeavesRecordUnchanged() {
	rec := s.expense("alice", "10")
	id := rec.Header().ID

	_, err := s.svc.UpdateRecord(s.ctx(), "bob", core.KindTransaction, id, core.Fields{"description": "hijacked"})
	var aerr *core.AuthorizationError
	s.Require().True(errors.As(err, &aerr), "expected AuthorizationError, got %v", err)

	got, err := s.svc.GetRecord(s.ctx(), "alice", core.KindTransaction, id)
	s.Require().NoError(err)
	s.Equal("groceries", got.(*core.Transaction).Description)
	s.Equal([]amqp.Action{amqp.ActionCreated}, s.publisher.actions())
}

func (s *ServiceSuite) TestUpdateNonexistentIsNotFound() {
	_, err := s.svc.UpdateRecord(s.ctx(), "alice", core.KindBill, "missing", core.Fields{"name": "x"})
	var nf *core.NotFoundError
	s.True(errors.As(err, &nf), "expected NotFoundError, got %v", err)
}

func (s *ServiceSuite) TestUpdateAppliesPatchAndTouches() {
	rec := s.expense("alice", "10")
	later := now.Add(time.Hour)
	svc := s.newService(core.Policy{}, records.WithClock(func() time.Time { return later }))

	updated, err := svc.UpdateRecord(s.ctx(), "alice", core.KindTransaction, rec.Header().ID, core.Fields{"category": "dining"})
	s.Require().NoError(err)
	s.Equal("dining", updated.(*core.Transaction).Category)
	s.Equal(now, updated.Header().CreatedAt)
	s.Equal(later, updated.Header().UpdatedAt)

	got, err := svc.GetRecord(s.ctx(), "alice", core.KindTransaction, rec.Header().ID)
	s.Require().NoError(err)
	s.Equal("dining", got.(*core.Transaction).Category)
}

func (s *ServiceSuite) TestUpdateRejectsOwnerChange() {
	rec := s.expense("alice", "10")

	_, err := s.svc.UpdateRecord(s.ctx(), "alice", core.KindTransaction, rec.Header().ID, core.Fields{"userId": "bob"})
	var verr *core.ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Contains(verr.Problems, "userId")
}

func (s *ServiceSuite) TestVacationSavingsGoal() {
	rec, err := s.svc.CreateRecord(s.ctx(), "alice", core.KindSavings, core.Fields{
		"name":         "Vacation",
		"targetAmount": json.Number("1000"),
	})
	s.Require().NoError(err)

	goal := rec.(*core.SavingsGoal)
	s.Equal("Vacation", goal.Name)
	s.Equal(int64(100000), goal.TargetAmount.Cents)
	s.True(goal.CurrentAmount.IsZero())

	updated, err := s.svc.UpdateRecord(s.ctx(), "alice", core.KindSavings, goal.ID, core.Fields{"currentAmount": json.Number("1000")})
	s.Require().NoError(err)
	s.InDelta(1.0, updated.(*core.SavingsGoal).Progress(), 1e-9)

	stored, err := s.svc.ListRecords(s.ctx(), "alice", core.KindSavings, core.Filter{})
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	g := stored[0].(*core.SavingsGoal)
	s.Equal(int64(100000), g.CurrentAmount.Cents)
	s.Equal(int64(100000), g.TargetAmount.Cents, "target is untouched by a current amount update")
}

func (s *ServiceSuite) TestExpenseDateDefaultsToNow() {
	rec, err := s.svc.CreateRecord(s.ctx(), "alice", core.KindTransaction, core.Fields{
		"amount":      json.Number("9.99"),
		"description": "coffee beans",
		"type":        "expense",
		"category":    "food",
	})
	s.Require().NoError(err)
	s.Equal(now, rec.(*core.Transaction).Date)
}

func (s *ServiceSuite) TestBillRecurringDefaultsTrue() {
	rec, err := s.svc.CreateRecord(s.ctx(), "alice", core.KindBill, core.Fields{
		"name":    "Internet",
		"dueDate": "2025-07-01",
		"amount":  json.Number("29.90"),
	})
	s.Require().NoError(err)
	s.True(rec.(*core.Bill).IsRecurring)
}

func (s *ServiceSuite) TestCreateRejectsInvalidInput() {
	_, err := s.svc.CreateRecord(s.ctx(), "alice", core.KindSavings, core.Fields{
		"name":         "",
		"targetAmount": json.Number("-5"),
	})
	var verr *core.ValidationError
	s.Require().True(errors.As(err, &verr), "expected ValidationError, got %v", err)
	s.Contains(verr.Problems, "name")
	s.Contains(verr.Problems, "targetAmount")
	s.Empty(s.publisher.actions())
}

func (s *ServiceSuite) TestDeleteTwiceIsNotFound() {
	rec := s.expense("alice", "10")
	id := rec.Header().ID

	s.Require().NoError(s.svc.DeleteRecord(s.ctx(), "alice", core.KindTransaction, id))
	err := s.svc.DeleteRecord(s.ctx(), "alice", core.KindTransaction, id)
	s.ErrorIs(err, core.ErrNotFound)
	s.Equal([]amqp.Action{amqp.ActionCreated, amqp.ActionDeleted}, s.publisher.actions())
}

func (s *ServiceSuite) TestDeleteByNonOwnerIsForbidden() {
	rec := s.expense("alice", "10")

	err := s.svc.DeleteRecord(s.ctx(), "bob", core.KindTransaction, rec.Header().ID)
	s.ErrorIs(err, core.ErrForbidden)

	_, err = s.svc.GetRecord(s.ctx(), "alice", core.KindTransaction, rec.Header().ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestPolicyToggles() {
	capped := s.newService(core.Policy{CapSavingsAtTarget: true})
	_, err := capped.CreateRecord(s.ctx(), "alice", core.KindSavings, core.Fields{
		"name": "Bike", "targetAmount": json.Number("100"), "currentAmount": json.Number("150"),
	})
	s.Error(err)

	_, err = s.svc.CreateRecord(s.ctx(), "alice", core.KindSavings, core.Fields{
		"name": "Bike", "targetAmount": json.Number("100"), "currentAmount": json.Number("150"),
	})
	s.NoError(err)

	signed := s.newService(core.Policy{EnforceAmountSign: true})
	_, err = signed.CreateRecord(s.ctx(), "alice", core.KindTransaction, core.Fields{
		"amount": json.Number("20"), "description": "rent", "type": "expense", "category": "housing",
	})
	s.Error(err)
	_, err = signed.CreateRecord(s.ctx(), "alice", core.KindTransaction, core.Fields{
		"amount": json.Number("-20"), "description": "rent", "type": "expense", "category": "housing",
	})
	s.NoError(err)
}

func (s *ServiceSuite) TestPublishFailureDoesNotFailWrite() {
	s.publisher.err = errors.New("broker down")

	rec := s.expense("alice", "10")

	_, err := s.svc.GetRecord(s.ctx(), "alice", core.KindTransaction, rec.Header().ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestRequiresUserAndKnownKind() {
	_, err := s.svc.ListRecords(s.ctx(), "", core.KindBill, core.Filter{})
	s.ErrorIs(err, core.ErrForbidden)

	_, err = s.svc.ListRecords(s.ctx(), "alice", core.Kind("users"), core.Filter{})
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *ServiceSuite) TestMonthOverviewIsCachedAndInvalidated() {
	lru := cache.NewLRUCache[core.MonthOverview](16, time.Minute)
	svc := s.newService(core.Policy{}, records.WithOverviewCache(lru))

	_, err := svc.CreateRecord(s.ctx(), "alice", core.KindTransaction, core.Fields{
		"amount": json.Number("1500"), "description": "salary", "type": "income", "category": "work", "date": "2025-06-01",
	})
	s.Require().NoError(err)
	_, err = svc.CreateRecord(s.ctx(), "alice", core.KindTransaction, core.Fields{
		"amount": json.Number("-400"), "description": "rent", "type": "expense", "category": "housing", "date": "2025-06-02",
	})
	s.Require().NoError(err)
	_, err = svc.CreateRecord(s.ctx(), "bob", core.KindTransaction, core.Fields{
		"amount": json.Number("99"), "description": "other", "type": "income", "category": "work", "date": "2025-06-03",
	})
	s.Require().NoError(err)

	ov, err := svc.MonthOverview(s.ctx(), "alice", 2025, 6)
	s.Require().NoError(err)
	s.Equal("1500.00", ov.Income.String())
	s.Equal("400.00", ov.Expenses.String())
	s.Equal(1, lru.Size())

	_, err = svc.MonthOverview(s.ctx(), "alice", 2025, 6)
	s.Require().NoError(err)
	s.Equal(uint64(1), lru.Stats().Hits)

	_, err = svc.CreateRecord(s.ctx(), "alice", core.KindBill, core.Fields{
		"name": "Power", "dueDate": "2025-06-20", "amount": json.Number("60"),
	})
	s.Require().NoError(err)
	s.Equal(0, lru.Size(), "a write by the user drops their cached overviews")

	ov, err = svc.MonthOverview(s.ctx(), "alice", 2025, 6)
	s.Require().NoError(err)
	s.Len(ov.BillsDue, 1)
	s.Equal("60.00", ov.BillsTotal.String())
}

func (s *ServiceSuite) TestMonthOverviewValidatesMonth() {
	_, err := s.svc.MonthOverview(s.ctx(), "alice", 2025, 13)
	var verr *core.ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Contains(verr.Problems, "month")
}

func TestServiceMemory(t *testing.T) {
	suite.Run(t, &ServiceSuite{NewStore: func(*testing.T) storage.RecordStore { return memory.New() }})
}

func TestServiceSQLite(t *testing.T) {
	suite.Run(t, &ServiceSuite{NewStore: func(t *testing.T) storage.RecordStore {
		repo, err := storage.NewSQLiteRepository(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		return repo
	}})
}

func TestStoreFailureIsPersistenceError(t *testing.T) {
	store := memory.New()
	svc := records.NewService(store)
	store.FailWith = errors.New("disk on fire")

	_, err := svc.ListRecords(context.Background(), "alice", core.KindBill, core.Filter{})
	var perr *core.PersistenceError
	assert.True(t, errors.As(err, &perr), "expected PersistenceError, got %v", err)
}

// interleavingStore runs onList once, right after the first transactions
// read returns, so a write lands between an overview's reads and its cache
// store.
type interleavingStore struct {
	storage.RecordStore
	once   sync.Once
	onList func()
}

func (s *interleavingStore) ListRecords(ctx context.Context, userID string, kind core.Kind, f core.Filter) ([]core.Record, error) {
	recs, err := s.RecordStore.ListRecords(ctx, userID, kind, f)
	if kind == core.KindTransaction {
		s.once.Do(s.onList)
	}
	return recs, err
}

func TestMonthOverviewNotCachedAcrossConcurrentWrite(t *testing.T) {
	store := &interleavingStore{RecordStore: memory.New()}
	lru := cache.NewLRUCache[core.MonthOverview](16, time.Minute)
	svc := records.NewService(store,
		records.WithClock(func() time.Time { return now }),
		records.WithOverviewCache(lru))

	store.onList = func() {
		_, err := svc.CreateRecord(context.Background(), "alice", core.KindTransaction, core.Fields{
			"amount": json.Number("100"), "description": "refund", "type": "income", "category": "misc", "date": "2025-06-05",
		})
		assert.NoError(t, err)
	}

	first, err := svc.MonthOverview(context.Background(), "alice", 2025, 6)
	require.NoError(t, err)
	assert.Equal(t, "0.00", first.Income.String())
	assert.Equal(t, 0, lru.Size(), "an overview read before a write must not be cached")

	second, err := svc.MonthOverview(context.Background(), "alice", 2025, 6)
	require.NoError(t, err)
	assert.Equal(t, "100.00", second.Income.String())
	assert.Equal(t, 1, lru.Size())
}
