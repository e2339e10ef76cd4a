package model

import "errors"

// Credential store errors. Authentication outcomes are reported as
// apierror values by the services.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)
