// Package admin implements the cross-user, admin-only queries. Callers are
// expected to have passed a role check before reaching it.
package admin

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type Service struct {
	users  storage.UserStore
	now    func() time.Time
	logger *log.Logger
}

func NewService(users storage.UserStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		users:  users,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentAdmin),
	}
}

// ListAllUsers returns every user, newest first, without credentials.
func (s *Service) ListAllUsers(ctx context.Context) ([]core.UserView, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	views := make([]core.UserView, len(users))
	for i, u := range users {
		views[i] = u.View()
	}
	return views, nil
}

// SetUserRole changes the role of userID. An admin may not demote itself,
// which keeps at least the acting admin in place.
func (s *Service) SetUserRole(ctx context.Context, actorID, userID string, role core.Role) (core.UserView, error) {
	if !role.IsValid() {
		return core.UserView{}, &core.ValidationError{Problems: map[string]string{
			"role": fmt.Sprintf("%v: must be %q or %q", core.ErrInvalidEnum, core.RoleUser, core.RoleAdmin),
		}}
	}
	if actorID == userID && role != core.RoleAdmin {
		return core.UserView{}, &core.AuthorizationError{UserID: actorID, Reason: "cannot demote yourself"}
	}

	if err := s.users.SetUserRole(ctx, userID, role, s.now()); err != nil {
		return core.UserView{}, fmt.Errorf("set user role: %w", err)
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return core.UserView{}, fmt.Errorf("get user: %w", err)
	}

	s.logger.InfoContext(ctx, "User role changed",
		log.FieldUserID, userID,
		log.FieldRole, role,
		"actor_id", actorID)
	return u.View(), nil
}
