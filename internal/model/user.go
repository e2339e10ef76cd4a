package model

import (
	"time"

	"go-admin-auth/internal/rbac"
)

// User is an identity as held by the credential store. The auth core only
// reads it.
type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Roles        []rbac.Role `json:"roles"`
	Active       bool        `json:"active"`
	LastLoginAt  *time.Time  `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (u User) RoleSet() rbac.RoleSet {
	return rbac.NewRoleSet(u.Roles...)
}

func (u User) Public() AuthUser {
	return AuthUser{ID: u.ID, Email: u.Email, Roles: u.RoleSet().Strings()}
}

type AuthUser struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// UserRecord is the administrative view of an identity.
type UserRecord struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Roles       []string   `json:"roles"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (u User) Record() UserRecord {
	return UserRecord{
		ID:          u.ID,
		Email:       u.Email,
		Roles:       u.RoleSet().Strings(),
		Active:      u.Active,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type UserList struct {
	Users []UserRecord `json:"users"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type LoginResult struct {
	TokenPair
	User AuthUser `json:"user"`
}

type PermissionCheck struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Allowed  bool   `json:"allowed"`
}
