package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write collided with a uniqueness constraint,
	// such as a duplicate email or username.
	ErrConflict = errors.New("record conflict")
)
