// Package memory is an in-process Store for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	records  map[core.Kind]map[string]core.Record
	users    map[string]core.User
	sessions map[string]core.Session

	// FailWith, when set, is returned by every operation. Tests use it to
	// simulate an unreachable backend.
	FailWith error
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		records:  map[core.Kind]map[string]core.Record{},
		users:    map[string]core.User{},
		sessions: map[string]core.Session{},
	}
	for _, k := range core.Kinds() {
		s.records[k] = map[string]core.Record{}
	}
	return s
}

func (s *Store) fail(op string) error {
	if s.FailWith != nil {
		return core.Persistence(op, s.FailWith)
	}
	return nil
}

func (s *Store) InsertRecord(_ context.Context, rec core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("insert"); err != nil {
		return err
	}
	s.records[rec.Kind()][rec.Header().ID] = clone(rec)
	return nil
}

func (s *Store) GetRecord(_ context.Context, kind core.Kind, id string) (core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("get"); err != nil {
		return nil, err
	}
	rec, ok := s.records[kind][id]
	if !ok {
		return nil, &core.NotFoundError{Kind: string(kind), ID: id}
	}
	return clone(rec), nil
}

func (s *Store) ListRecords(_ context.Context, userID string, kind core.Kind, f core.Filter) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("list"); err != nil {
		return nil, err
	}
	all := make([]core.Record, 0, len(s.records[kind]))
	for _, rec := range s.records[kind] {
		all = append(all, clone(rec))
	}
	return f.Apply(userID, all), nil
}

func (s *Store) ReplaceRecord(_ context.Context, rec core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("replace"); err != nil {
		return err
	}
	h := rec.Header()
	cur, ok := s.records[rec.Kind()][h.ID]
	if !ok || cur.Header().UserID != h.UserID {
		return &core.NotFoundError{Kind: string(rec.Kind()), ID: h.ID}
	}
	next := clone(rec)
	next.Header().CreatedAt = cur.Header().CreatedAt
	s.records[rec.Kind()][h.ID] = next
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, userID string, kind core.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("delete"); err != nil {
		return err
	}
	cur, ok := s.records[kind][id]
	if !ok || cur.Header().UserID != userID {
		return &core.NotFoundError{Kind: string(kind), ID: id}
	}
	delete(s.records[kind], id)
	return nil
}

func (s *Store) ListBillsDueBefore(_ context.Context, before time.Time) ([]*core.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("list due bills"); err != nil {
		return nil, err
	}
	out := []*core.Bill{}
	for _, rec := range s.records[core.KindBill] {
		b := clone(rec).(*core.Bill)
		if !b.DueDate.After(before) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("create user"); err != nil {
		return err
	}
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return storage.ErrUsernameTaken
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("get user"); err != nil {
		return core.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return core.User{}, &core.NotFoundError{Kind: "user", ID: id}
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("get user"); err != nil {
		return core.User{}, err
	}
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, &core.NotFoundError{Kind: "user", ID: username}
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("list users"); err != nil {
		return nil, err
	}
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SetUserRole(_ context.Context, id string, role core.Role, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("set user role"); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return &core.NotFoundError{Kind: "user", ID: id}
	}
	u.Role = role
	u.UpdatedAt = now.UTC()
	s.users[id] = u
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("create session"); err != nil {
		return err
	}
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("get session"); err != nil {
		return core.Session{}, err
	}
	sess, ok := s.sessions[token]
	if !ok {
		return core.Session{}, &core.NotFoundError{Kind: "session", ID: "(redacted)"}
	}
	return sess, nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fail("ping")
}

func (s *Store) Close() error { return nil }

// clone copies a record so callers never share memory with the store.
func clone(rec core.Record) core.Record {
	switch r := rec.(type) {
	case *core.Transaction:
		c := *r
		return &c
	case *core.SavingsGoal:
		c := *r
		return &c
	case *core.Bill:
		c := *r
		return &c
	}
	return rec
}
