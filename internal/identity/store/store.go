package store

import (
	pkgerrors "attestor/pkg/domain-errors"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested record does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "identity record not found")
