package catalog

import (
	"context"
	"errors"
)

// ErrNotFound indicates the content item does not exist in the catalog.
var ErrNotFound = errors.New("content not found")

// Catalog is the narrow contract to the external content metadata system.
// Implementations must return sources already ordered as authored; callers
// apply the priority sort themselves.
type Catalog interface {
	// Sources returns the candidate origins for a content item, or
	// ErrNotFound when the item is unknown.
	Sources(ctx context.Context, ref ContentRef) ([]StreamSource, error)

	// Entitlement reports the current entitlement of a user.
	Entitlement(ctx context.Context, userID string) (Entitlement, error)

	// IsPremium reports whether a content item requires premium entitlement.
	IsPremium(ctx context.Context, ref ContentRef) (bool, error)
}
