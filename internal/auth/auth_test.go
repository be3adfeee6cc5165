package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, core.User{ID: "u1", Username: "ada", Role: core.RoleUser, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.CreateUser(ctx, core.User{ID: "a1", Username: "root", Role: core.RoleAdmin, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.CreateSession(ctx, core.Session{Token: "good", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.CreateSession(ctx, core.Session{Token: "old", UserID: "u1", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.CreateSession(ctx, core.Session{Token: "orphan", UserID: "gone", ExpiresAt: now.Add(time.Hour)}))
	return store
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "battery staple"))

	_, err = HashPassword("   ")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestResolve(t *testing.T) {
	store := seed(t)
	r := NewResolver(store, store).WithClock(func() time.Time { return now })
	ctx := context.Background()

	p, err := r.Resolve(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u1", Username: "ada", Role: core.RoleUser}, p)

	for _, token := range []string{"", "unknown", "old", "orphan"} {
		_, err := r.Resolve(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthenticated, token)
	}

	store.FailWith = errors.New("connection reset")
	_, err = r.Resolve(ctx, "good")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie"})
	assert.Equal(t, "", TokenFromRequest(r), "a non-bearer header is not replaced by the cookie")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie"})
	assert.Equal(t, "cookie", TokenFromRequest(r))
}

func TestRoleAuthorizer(t *testing.T) {
	store := seed(t)
	authz := NewRoleAuthorizer(store)
	ctx := context.Background()

	assert.NoError(t, authz.Authorize(ctx, Principal{UserID: "a1"}, core.RoleAdmin))
	assert.NoError(t, authz.Authorize(ctx, Principal{UserID: "a1"}, core.RoleUser))
	assert.ErrorIs(t, authz.Authorize(ctx, Principal{UserID: "u1"}, core.RoleAdmin), core.ErrForbidden)
	assert.ErrorIs(t, authz.Authorize(ctx, Principal{UserID: "gone"}, core.RoleAdmin), core.ErrForbidden)

	// Role held in the principal is ignored; the stored role decides.
	require.NoError(t, store.SetUserRole(ctx, "a1", core.RoleUser, now))
	assert.ErrorIs(t, authz.Authorize(ctx, Principal{UserID: "a1", Role: core.RoleAdmin}, core.RoleAdmin), core.ErrForbidden)

	store.FailWith = errors.New("timeout")
	assert.ErrorIs(t, authz.Authorize(ctx, Principal{UserID: "a1"}, core.RoleAdmin), ErrUnavailable)
}

func TestMiddlewareChain(t *testing.T) {
	store := seed(t)
	resolver := NewResolver(store, store).WithClock(func() time.Time { return now })

	var failed error
	fail := func(w http.ResponseWriter, _ *http.Request, err error) {
		failed = err
		w.WriteHeader(http.StatusTeapot)
	}

	reached := false
	h := Middleware(resolver, fail)(RequireRole(NewRoleAuthorizer(store), core.RoleAdmin, fail)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			p, ok := PrincipalFrom(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "u1", p.UserID)
		})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, reached)
	assert.ErrorIs(t, failed, core.ErrForbidden)

	require.NoError(t, store.SetUserRole(context.Background(), "u1", core.RoleAdmin, now))
	failed = nil
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, reached)
	assert.NoError(t, failed)

	reached = false
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, reached)
	assert.ErrorIs(t, failed, ErrUnauthenticated)
}
