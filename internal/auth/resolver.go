package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// SessionCookieName is the cookie a browser session token travels in.
const SessionCookieName = "session"

var (
	// ErrUnauthenticated means the caller presented no usable session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnavailable means identity could not be checked at all. Callers must
	// deny the request.
	ErrUnavailable = errors.New("auth backend unavailable")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Username string
	Role     core.Role
}

// Resolver turns session tokens into principals.
type Resolver struct {
	sessions storage.SessionStore
	users    storage.UserStore
	now      func() time.Time
}

func NewResolver(sessions storage.SessionStore, users storage.UserStore) *Resolver {
	return &Resolver{sessions: sessions, users: users, now: time.Now}
}

// WithClock replaces the time source used for expiry checks.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve returns the principal owning token.
func (r *Resolver) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}

	sess, err := r.sessions.GetSession(ctx, token)
	if errors.Is(err, core.ErrNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("%w: get session: %v", ErrUnavailable, err)
	}
	if sess.Expired(r.now()) {
		return Principal{}, ErrUnauthenticated
	}

	u, err := r.users.GetUser(ctx, sess.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("%w: get user: %v", ErrUnavailable, err)
	}

	return Principal{UserID: u.ID, Username: u.Username, Role: u.Role}, nil
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
