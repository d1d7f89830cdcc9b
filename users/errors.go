package users

import "errors"

var (
	// ErrNotFound reports that no user matched.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateEmail reports that another user already has the email.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrDuplicateUsername reports that another profile already has the username.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrInvalidInput reports input that failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRole reports a role outside the defined set.
	ErrInvalidRole = errors.New("invalid user role")

	// ErrInvalidCredentials reports an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
