package chat

import "errors"

var (
	// ErrNotFound signals that no checkpoint or session exists for the given
	// id. It is a normal outcome, not a storage failure.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrValidation covers missing identity fields and empty message lists.
	// Requests failing validation never touch storage.
	ErrValidation = errors.New("invalid request")
)
