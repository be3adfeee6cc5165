// Package bolt is a single-file embedded Store on top of bbolt. Values are
// JSON documents keyed by id.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	bolt "go.etcd.io/bbolt"
)

var (
	usersBucketName     = []byte("users")
	usernamesBucketName = []byte("usernames")
	sessionsBucketName  = []byte("sessions")
)

type Store struct {
	db *bolt.DB
}

var _ storage.Store = (*Store)(nil)

// userDoc is the persisted user. core.User hides the hash from JSON.
type userDoc struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Role         core.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates the buckets the store needs on an open database.
func New(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		names := [][]byte{usersBucketName, usernamesBucketName, sessionsBucketName}
		for _, k := range core.Kinds() {
			names = append(names, []byte(k))
		}
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(context.Context) error {
	return core.Persistence("ping", s.db.View(func(*bolt.Tx) error { return nil }))
}

func (s *Store) InsertRecord(_ context.Context, rec core.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return core.Persistence("encode record", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(rec.Kind())).Put([]byte(rec.Header().ID), raw)
	})
	return core.Persistence("insert "+string(rec.Kind()), err)
}

func (s *Store) GetRecord(_ context.Context, kind core.Kind, id string) (core.Record, error) {
	var rec core.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(kind)).Get([]byte(id))
		if raw == nil {
			return &core.NotFoundError{Kind: string(kind), ID: id}
		}
		var err error
		rec, err = decodeRecord(kind, raw)
		return err
	})
	if err != nil {
		return nil, core.Persistence("get "+string(kind), err)
	}
	return rec, nil
}

func (s *Store) ListRecords(_ context.Context, userID string, kind core.Kind, f core.Filter) ([]core.Record, error) {
	var all []core.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kind)).ForEach(func(_, v []byte) error {
			rec, err := decodeRecord(kind, v)
			if err != nil {
				return err
			}
			all = append(all, rec)
			return nil
		})
	})
	if err != nil {
		return nil, core.Persistence("list "+string(kind), err)
	}
	return f.Apply(userID, all), nil
}

func (s *Store) ReplaceRecord(_ context.Context, rec core.Record) error {
	h := rec.Header()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(rec.Kind()))
		raw := b.Get([]byte(h.ID))
		if raw == nil {
			return &core.NotFoundError{Kind: string(rec.Kind()), ID: h.ID}
		}
		cur, err := decodeRecord(rec.Kind(), raw)
		if err != nil {
			return err
		}
		if cur.Header().UserID != h.UserID {
			return &core.NotFoundError{Kind: string(rec.Kind()), ID: h.ID}
		}
		h.CreatedAt = cur.Header().CreatedAt
		next, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(h.ID), next)
	})
	return core.Persistence("update "+string(rec.Kind()), err)
}

func (s *Store) DeleteRecord(_ context.Context, userID string, kind core.Kind, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		raw := b.Get([]byte(id))
		if raw == nil {
			return &core.NotFoundError{Kind: string(kind), ID: id}
		}
		cur, err := decodeRecord(kind, raw)
		if err != nil {
			return err
		}
		if cur.Header().UserID != userID {
			return &core.NotFoundError{Kind: string(kind), ID: id}
		}
		return b.Delete([]byte(id))
	})
	return core.Persistence("delete "+string(kind), err)
}

func (s *Store) ListBillsDueBefore(_ context.Context, before time.Time) ([]*core.Bill, error) {
	bills := []*core.Bill{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(core.KindBill)).ForEach(func(_, v []byte) error {
			var b core.Bill
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if !b.DueDate.After(before) {
				bills = append(bills, &b)
			}
			return nil
		})
	})
	if err != nil {
		return nil, core.Persistence("list due bills", err)
	}
	sort.Slice(bills, func(i, j int) bool {
		if bills[i].DueDate.Equal(bills[j].DueDate) {
			return bills[i].ID < bills[j].ID
		}
		return bills[i].DueDate.Before(bills[j].DueDate)
	})
	return bills, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	raw, err := json.Marshal(userDoc(u))
	if err != nil {
		return core.Persistence("encode user", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(usernamesBucketName)
		if names.Get([]byte(u.Username)) != nil {
			return storage.ErrUsernameTaken
		}
		if err := names.Put([]byte(u.Username), []byte(u.ID)); err != nil {
			return err
		}
		return tx.Bucket(usersBucketName).Put([]byte(u.ID), raw)
	})
	return core.Persistence("create user", err)
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	var u core.User
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		u, err = getUser(tx, id)
		return err
	})
	return u, core.Persistence("get user", err)
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	var u core.User
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(usernamesBucketName).Get([]byte(username))
		if id == nil {
			return &core.NotFoundError{Kind: "user", ID: username}
		}
		var err error
		u, err = getUser(tx, string(id))
		return err
	})
	return u, core.Persistence("get user", err)
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	users := []core.User{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(usersBucketName).ForEach(func(_, v []byte) error {
			var d userDoc
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			users = append(users, core.User(d))
			return nil
		})
	})
	if err != nil {
		return nil, core.Persistence("list users", err)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) SetUserRole(_ context.Context, id string, role core.Role, now time.Time) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		u, err := getUser(tx, id)
		if err != nil {
			return err
		}
		u.Role = role
		u.UpdatedAt = now.UTC()
		raw, err := json.Marshal(userDoc(u))
		if err != nil {
			return err
		}
		return tx.Bucket(usersBucketName).Put([]byte(id), raw)
	})
	return core.Persistence("set user role", err)
}

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return core.Persistence("encode session", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucketName).Put([]byte(sess.Token), raw)
	})
	return core.Persistence("create session", err)
}

func (s *Store) GetSession(_ context.Context, token string) (core.Session, error) {
	var sess core.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(sessionsBucketName).Get([]byte(token))
		if raw == nil {
			return &core.NotFoundError{Kind: "session", ID: "(redacted)"}
		}
		return json.Unmarshal(raw, &sess)
	})
	return sess, core.Persistence("get session", err)
}

func getUser(tx *bolt.Tx, id string) (core.User, error) {
	raw := tx.Bucket(usersBucketName).Get([]byte(id))
	if raw == nil {
		return core.User{}, &core.NotFoundError{Kind: "user", ID: id}
	}
	var d userDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return core.User{}, err
	}
	return core.User(d), nil
}

func decodeRecord(kind core.Kind, raw []byte) (core.Record, error) {
	rec, err := core.NewRecord(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return rec, nil
}
