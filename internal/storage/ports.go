// Package storage defines the persistence ports shared by every backend and
// implements the default SQLite backend.
package storage

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// RecordStore persists transactions, savings goals and bills.
//
// Lookups by id are not scoped; every mutation is conditioned on the owning
// user id and reports a *core.NotFoundError when no row matched.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec core.Record) error
	GetRecord(ctx context.Context, kind core.Kind, id string) (core.Record, error)
	ListRecords(ctx context.Context, userID string, kind core.Kind, f core.Filter) ([]core.Record, error)
	ReplaceRecord(ctx context.Context, rec core.Record) error
	DeleteRecord(ctx context.Context, userID string, kind core.Kind, id string) error
	// ListBillsDueBefore returns the bills of every user due at or before t,
	// earliest first.
	ListBillsDueBefore(ctx context.Context, t time.Time) ([]*core.Bill, error)
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) error
	GetUser(ctx context.Context, id string) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	// ListUsers returns every user, newest account first.
	ListUsers(ctx context.Context) ([]core.User, error)
	SetUserRole(ctx context.Context, id string, role core.Role, now time.Time) error
}

// SessionStore resolves session tokens. Sessions are written by the identity
// component that issues them.
type SessionStore interface {
	CreateSession(ctx context.Context, s core.Session) error
	GetSession(ctx context.Context, token string) (core.Session, error)
}

// Store is the full set of operations a backend provides.
type Store interface {
	RecordStore
	UserStore
	SessionStore
	Ping(ctx context.Context) error
	Close() error
}

// ErrUsernameTaken is returned by CreateUser when the username exists.
var ErrUsernameTaken = &core.ValidationError{Problems: map[string]string{"username": "already taken"}}
