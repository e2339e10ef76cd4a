package model

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type CreateUserRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

// UpdateUserRequest leaves fields that are nil untouched.
type UpdateUserRequest struct {
	Roles  []string `json:"roles,omitempty"`
	Active *bool    `json:"active,omitempty"`
}
