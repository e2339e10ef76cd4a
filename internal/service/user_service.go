package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-admin-auth/internal/model"
	"go-admin-auth/internal/rbac"
	"go-admin-auth/pkg/apierror"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	Create(ctx context.Context, user model.User) error
	Update(ctx context.Context, user model.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.User, error)
	Count(ctx context.Context) (int, error)
}

type UserService struct {
	store UserStore
	audit *AuditService
	now   func() time.Time
}

func NewUserService(store UserStore, audit *AuditService) *UserService {
	return &UserService{store: store, audit: audit, now: time.Now}
}

func (s *UserService) List(ctx context.Context) (model.UserList, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return model.UserList{}, err
	}

	records := make([]model.UserRecord, 0, len(users))
	for _, user := range users {
		records = append(records, user.Record())
	}
	return model.UserList{Users: records}, nil
}

func (s *UserService) Get(ctx context.Context, id string) (model.UserRecord, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return model.UserRecord{}, err
	}
	return user.Record(), nil
}

func (s *UserService) Create(ctx context.Context, actor model.AuditActor, req model.CreateUserRequest) (model.UserRecord, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return model.UserRecord{}, err
	}
	if len(req.Password) < minPasswordLength {
		return model.UserRecord{}, apierror.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength), "password")
	}
	roles, err := parseRoles(req.Roles)
	if err != nil {
		return model.UserRecord{}, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return model.UserRecord{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, user); err != nil {
		s.audit.Record(ctx, model.AuditEntry{Action: model.AuditUserCreate, Actor: actor, Status: model.AuditFailure, Resource: email, Error: err.Error()})
		return model.UserRecord{}, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditUserCreate,
		Actor:    actor,
		Status:   model.AuditSuccess,
		Resource: user.ID,
		Details:  map[string]any{"email": email, "roles": user.RoleSet().Strings()},
	})
	return user.Record(), nil
}

// Update changes roles and/or the active flag. Callers cannot deactivate
// themselves or drop their own admin role.
func (s *UserService) Update(ctx context.Context, actor model.AuditActor, id string, req model.UpdateUserRequest) (model.UserRecord, error) {
	if req.Roles == nil && req.Active == nil {
		return model.UserRecord{}, apierror.Validation("nothing to update", "roles,active")
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return model.UserRecord{}, err
	}
	before := user.Record()

	if req.Roles != nil {
		roles, err := parseRoles(req.Roles)
		if err != nil {
			return model.UserRecord{}, err
		}
		if actor.UserID == user.ID && user.RoleSet().Has(rbac.RoleAdmin) && !rbac.NewRoleSet(roles...).Has(rbac.RoleAdmin) {
			return model.UserRecord{}, apierror.Forbidden("cannot remove your own admin role")
		}
		user.Roles = roles
	}

	if req.Active != nil {
		if actor.UserID == user.ID && !*req.Active {
			return model.UserRecord{}, apierror.Forbidden("cannot deactivate your own account")
		}
		user.Active = *req.Active
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return model.UserRecord{}, err
	}

	after := user.Record()
	s.audit.Record(ctx, model.AuditEntry{
		Action:   model.AuditUserUpdate,
		Actor:    actor,
		Status:   model.AuditSuccess,
		Resource: user.ID,
		Details: map[string]any{
			"before": map[string]any{"roles": before.Roles, "active": before.Active},
			"after":  map[string]any{"roles": after.Roles, "active": after.Active},
		},
	})
	return after, nil
}

func (s *UserService) Delete(ctx context.Context, actor model.AuditActor, id string) error {
	if actor.UserID == id {
		return apierror.Forbidden("cannot delete your own account")
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.Record(ctx, model.AuditEntry{Action: model.AuditUserDelete, Actor: actor, Status: model.AuditSuccess, Resource: id})
	return nil
}

// SeedAdmin creates an admin identity when the store is empty.
func (s *UserService) SeedAdmin(ctx context.Context, email string, password string) error {
	count, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	record, err := s.Create(ctx, model.AuditActor{Email: "system"}, model.CreateUserRequest{
		Email:    email,
		Password: password,
		Roles:    []string{string(rbac.RoleAdmin)},
	})
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	slog.Info("seeded admin user", "user_id", record.ID, "email", record.Email)
	return nil
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", apierror.Validation("a valid email address is required", "email")
	}
	return strings.ToLower(addr.Address), nil
}

// parseRoles is strict: unlike stored rows, requests may not carry unknown
// roles.
func parseRoles(raw []string) ([]rbac.Role, error) {
	if len(raw) == 0 {
		return nil, apierror.Validation("at least one role is required", "roles")
	}

	for _, value := range raw {
		if _, ok := rbac.ParseRole(value); !ok {
			return nil, apierror.Validation(fmt.Sprintf("unknown role %q", value), "roles")
		}
	}
	return rbac.ParseRoleSet(raw).Roles(), nil
}
