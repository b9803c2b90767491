package services

import "errors"

var (
	// ErrInvalidSession means the token does not name a usable session. It is
	// the normal "not logged in" outcome, not a fault.
	ErrInvalidSession = errors.New("invalid or expired session")

	// ErrInvalidCredentials covers unknown identifiers, inactive accounts and
	// wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user with this username, email or service number already exists")
)
