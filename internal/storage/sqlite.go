package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository is the default Store, backed by a single SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

// Timestamps are stored as fixed-width UTC text so that string comparison in
// SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations. ":memory:" gives a private in-memory database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	inMemory := dbPath == ":memory:"
	dsn := dbPath
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return core.Persistence("ping", r.db.PingContext(ctx))
}

// CreateUser inserts u. A duplicate username yields ErrUsernameTaken.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, string(u.Role), formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	return core.Persistence("create user", err)
}

const userColumns = `id, username, password_hash, role, created_at, updated_at`

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.oneUser(row, id)
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return r.oneUser(row, username)
}

func (r *SQLiteRepository) oneUser(row *sql.Row, key string) (core.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, &core.NotFoundError{Kind: "user", ID: key}
	}
	if err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, core.Persistence("list users", err)
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, core.Persistence("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list users", err)
	}
	return users, nil
}

func (r *SQLiteRepository) SetUserRole(ctx context.Context, id string, role core.Role, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), formatTime(now), id)
	return affectedOne(res, err, "set user role", "user", id)
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		s.Token, s.UserID, formatTime(s.ExpiresAt))
	return core.Persistence("create session", err)
}

func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (core.Session, error) {
	var (
		s       core.Session
		expires string
	)
	err := r.db.QueryRowContext(ctx, `SELECT token, user_id, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, &core.NotFoundError{Kind: "session", ID: "(redacted)"}
	}
	if err != nil {
		return core.Session{}, core.Persistence("get session", err)
	}
	ts := timeScan{}
	s.ExpiresAt = ts.parse(expires)
	if err := ts.err(); err != nil {
		return core.Session{}, core.Persistence("get session", err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (core.User, error) {
	var (
		u                core.User
		created, updated string
	)
	if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &created, &updated); err != nil {
		return core.User{}, err
	}
	ts := timeScan{}
	u.CreatedAt = ts.parse(created)
	u.UpdatedAt = ts.parse(updated)
	return u, ts.err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timeScan parses stored timestamps and remembers the first failures.
type timeScan struct {
	errs []error
}

func (ts *timeScan) parse(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		ts.errs = append(ts.errs, fmt.Errorf("parse timestamp %q: %w", s, err))
	}
	return t
}

func (ts *timeScan) err() error {
	return errors.Join(ts.errs...)
}

// affectedOne turns "no row matched" into a NotFoundError.
func affectedOne(res sql.Result, err error, op, kind, id string) error {
	if err != nil {
		return core.Persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence(op, err)
	}
	if n == 0 {
		return &core.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch code := serr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case code&0xff == sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(serr.Error(), "UNIQUE")
		}
	}
	return false
}
