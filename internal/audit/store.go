package audit

import (
	"context"

	"attestor/pkg/domain"
	pkgerrors "attestor/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
)

type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIdentity(ctx context.Context, identity domain.Address) ([]Event, error)
}
