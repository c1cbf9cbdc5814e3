package repository

import (
	"context"

	"github.com/rownie/vc-module-cart/internal/domain"
)

// CartRepository defines the persistence operations the cart service needs.
type CartRepository interface {
	// GetByIDs retrieves carts by their ids. Missing ids are skipped, not
	// errors; the result may be shorter than the input.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Cart, error)

	// GetByOwner retrieves the cart belonging to the given owner tuple.
	// Returns apperrors.ErrNotFound if no such cart exists.
	GetByOwner(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error)

	// Save persists the given carts as one atomic call per cart,
	// overwriting any existing state.
	Save(ctx context.Context, carts ...*domain.Cart) error

	// Delete removes carts by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Search returns all carts matching the criteria together with the
	// total match count. Offset/limit slice the result for paging.
	Search(ctx context.Context, criteria domain.SearchCriteria, offset, limit int) ([]*domain.Cart, int, error)
}
