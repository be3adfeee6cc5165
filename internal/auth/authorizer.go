package auth

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Authorizer decides whether a principal holds a role. Any error denies.
type Authorizer interface {
	Authorize(ctx context.Context, p Principal, role core.Role) error
}

// RoleAuthorizer checks the role currently stored for the user rather than
// the one captured when the session was resolved, so a demotion takes effect
// immediately.
type RoleAuthorizer struct {
	users storage.UserStore
}

func NewRoleAuthorizer(users storage.UserStore) *RoleAuthorizer {
	return &RoleAuthorizer{users: users}
}

func (a *RoleAuthorizer) Authorize(ctx context.Context, p Principal, role core.Role) error {
	if p.UserID == "" {
		return ErrUnauthenticated
	}
	u, err := a.users.GetUser(ctx, p.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return &core.AuthorizationError{UserID: p.UserID, Reason: "unknown user"}
	}
	if err != nil {
		return fmt.Errorf("%w: get user: %v", ErrUnavailable, err)
	}
	if !satisfies(u.Role, role) {
		return &core.AuthorizationError{UserID: p.UserID, Reason: "requires role " + string(role)}
	}
	return nil
}

// satisfies reports whether have grants want. Admins hold every role.
func satisfies(have, want core.Role) bool {
	return have == want || have == core.RoleAdmin
}
