// Package store holds the verification request ledger.
package store

import "errors"

var (
	// ErrNotFound is returned when no request exists for the given id.
	ErrNotFound = errors.New("request not found")
	// ErrAlreadySubmitted is returned when a proof was already recorded
	// for the request.
	ErrAlreadySubmitted = errors.New("proof already submitted")
	// ErrAlreadyCompleted is returned on any write against a completed
	// request.
	ErrAlreadyCompleted = errors.New("request already completed")
)
