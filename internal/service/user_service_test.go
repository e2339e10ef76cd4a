package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-admin-auth/internal/model"
	"go-admin-auth/internal/rbac"
	"go-admin-auth/internal/repository"
	"go-admin-auth/pkg/apierror"
)

func newUserFixture(t *testing.T) (*UserService, *repository.MockUserRepository, *repository.MockAuditRepository) {
	t.Helper()

	store := new(repository.MockUserRepository)
	audit := new(repository.MockAuditRepository)
	audit.On("Log", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewUserService(store, NewAuditService(audit)), store, audit
}

func TestUserService_Create(t *testing.T) {
	actor := model.AuditActor{UserID: "admin-id", Email: "admin@example.com"}

	t.Run("creates an active user with a bcrypt hash", func(t *testing.T) {
		svc, store, audit := newUserFixture(t)
		store.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
			return u.Email == "editor@example.com" &&
				u.Active &&
				bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct horse")) == nil
		})).Return(nil)

		record, err := svc.Create(context.Background(), actor, model.CreateUserRequest{
			Email:    "Editor@Example.com",
			Password: "correct horse",
			Roles:    []string{"EDITOR", "viewer"},
		})
		require.NoError(t, err)

		assert.NotEmpty(t, record.ID)
		assert.Equal(t, "editor@example.com", record.Email)
		assert.Equal(t, []string{"editor", "viewer"}, record.Roles)
		store.AssertExpectations(t)
		audit.AssertCalled(t, "Log", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
			return e.Action == model.AuditUserCreate && e.Status == model.AuditSuccess && e.Resource == record.ID
		}))
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name  string
			req   model.CreateUserRequest
			field string
		}{
			{name: "bad email", req: model.CreateUserRequest{Email: "nope", Password: "long enough", Roles: []string{"viewer"}}, field: "email"},
			{name: "display name email", req: model.CreateUserRequest{Email: "Ann <ann@example.com>", Password: "long enough", Roles: []string{"viewer"}}, field: "email"},
			{name: "short password", req: model.CreateUserRequest{Email: "a@example.com", Password: "short", Roles: []string{"viewer"}}, field: "password"},
			{name: "no roles", req: model.CreateUserRequest{Email: "a@example.com", Password: "long enough"}, field: "roles"},
			{name: "unknown role", req: model.CreateUserRequest{Email: "a@example.com", Password: "long enough", Roles: []string{"owner"}}, field: "roles"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc, store, _ := newUserFixture(t)

				_, err := svc.Create(context.Background(), actor, tt.req)
				apiErr := requireAPIError(t, err, apierror.CodeValidation, http.StatusBadRequest)
				assert.Equal(t, tt.field, apiErr.Details)
				store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("duplicate email surfaces the store error", func(t *testing.T) {
		svc, store, _ := newUserFixture(t)
		store.On("Create", mock.Anything, mock.Anything).Return(model.ErrUserAlreadyExists)

		_, err := svc.Create(context.Background(), actor, model.CreateUserRequest{
			Email: "dup@example.com", Password: "long enough", Roles: []string{"viewer"},
		})
		require.ErrorIs(t, err, model.ErrUserAlreadyExists)
	})
}

func TestUserService_Update(t *testing.T) {
	active := true
	inactive := false

	existing := model.User{ID: "user-2", Email: "editor@example.com", Roles: []rbac.Role{rbac.RoleEditor}, Active: true}
	self := model.User{ID: "admin-id", Email: "admin@example.com", Roles: []rbac.Role{rbac.RoleAdmin}, Active: true}
	actor := model.AuditActor{UserID: self.ID, Email: self.Email}

	t.Run("changes roles and active flag", func(t *testing.T) {
		svc, store, _ := newUserFixture(t)
		store.On("FindByID", mock.Anything, existing.ID).Return(existing, nil)
		store.On("Update", mock.Anything, mock.MatchedBy(func(u model.User) bool {
			return !u.Active && len(u.Roles) == 1 && u.Roles[0] == rbac.RoleReviewer
		})).Return(nil)

		record, err := svc.Update(context.Background(), actor, existing.ID, model.UpdateUserRequest{
			Roles:  []string{"reviewer"},
			Active: &inactive,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"reviewer"}, record.Roles)
		assert.False(t, record.Active)
	})

	t.Run("cannot lock yourself out", func(t *testing.T) {
		svc, store, _ := newUserFixture(t)
		store.On("FindByID", mock.Anything, self.ID).Return(self, nil)

		_, err := svc.Update(context.Background(), actor, self.ID, model.UpdateUserRequest{Active: &inactive})
		requireAPIError(t, err, apierror.CodeForbidden, http.StatusForbidden)

		_, err = svc.Update(context.Background(), actor, self.ID, model.UpdateUserRequest{Roles: []string{"viewer"}})
		requireAPIError(t, err, apierror.CodeForbidden, http.StatusForbidden)

		store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("empty patch is rejected", func(t *testing.T) {
		svc, _, _ := newUserFixture(t)

		_, err := svc.Update(context.Background(), actor, existing.ID, model.UpdateUserRequest{})
		requireAPIError(t, err, apierror.CodeValidation, http.StatusBadRequest)
	})

	t.Run("missing user", func(t *testing.T) {
		svc, store, _ := newUserFixture(t)
		store.On("FindByID", mock.Anything, "missing").Return(model.User{}, model.ErrUserNotFound)

		_, err := svc.Update(context.Background(), actor, "missing", model.UpdateUserRequest{Active: &active})
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})
}

func TestUserService_Delete(t *testing.T) {
	actor := model.AuditActor{UserID: "admin-id"}

	svc, store, _ := newUserFixture(t)
	store.On("Delete", mock.Anything, "user-2").Return(nil)

	require.NoError(t, svc.Delete(context.Background(), actor, "user-2"))

	err := svc.Delete(context.Background(), actor, "admin-id")
	requireAPIError(t, err, apierror.CodeForbidden, http.StatusForbidden)
	store.AssertNumberOfCalls(t, "Delete", 1)
}

func TestUserService_SeedAdmin(t *testing.T) {
	t.Run("creates an admin on an empty store", func(t *testing.T) {
		svc, store, _ := newUserFixture(t)
		store.On("Count", mock.Anything).Return(0, nil)
		store.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
			return u.Email == "root@example.com" && u.RoleSet().Has(rbac.RoleAdmin)
		})).Return(nil)

		require.NoError(t, svc.SeedAdmin(context.Background(), "root@example.com", "bootstrap-pass"))
		store.AssertExpectations(t)
	})

	t.Run("leaves a populated store alone", func(t *testing.T) {
		svc, store, _ := newUserFixture(t)
		store.On("Count", mock.Anything).Return(3, nil)

		require.NoError(t, svc.SeedAdmin(context.Background(), "root@example.com", "bootstrap-pass"))
		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}
