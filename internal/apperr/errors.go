// Package apperr holds the error kinds surfaced by namespace, session and
// provisioning operations. Callers match them with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuth             = errors.New("authentication failed")
	ErrNotAuthenticated = errors.New("session is not authenticated")
	ErrNoFile           = errors.New("no such file")
	ErrInvalidFile      = errors.New("invalid file reference")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidResponse  = errors.New("invalid response")
	ErrConfig           = errors.New("configuration error")
	ErrDirNotEmpty      = errors.New("directory not empty")
	ErrInvalidPath      = errors.New("invalid path")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrNoUser           = errors.New("no such user")

	// Both provisioning collisions and a second login on one client are
	// also ErrAlreadyExists.
	ErrUserExists      = fmt.Errorf("user %w", ErrAlreadyExists)
	ErrRoleExists      = fmt.Errorf("role %w", ErrAlreadyExists)
	ErrAlreadyLoggedIn = fmt.Errorf("session %w", ErrAlreadyExists)
)
