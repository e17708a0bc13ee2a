package inventory

import (
	"context"
	"errors"
)

// Common errors returned by the ledger
var (
	ErrProductNotFound = errors.New("product not found in ledger")
)

// Stock holds the tracked count for a product.
type Stock struct {
	ProductID int64
	Count     int
}

// Ledger is the atomic per-product stock counter. Decrements floor at zero:
// overselling is tolerated here, shortfall detection belongs to cart
// validation.
type Ledger interface {
	// Get returns the current stock count for a product.
	Get(ctx context.Context, productID int64) (int, error)

	// SetStock sets the stock level for a product (seeding / restock).
	SetStock(ctx context.Context, productID int64, count int) error

	// Decrement subtracts qty from stock, flooring at zero, and returns the
	// new count. Unknown products are not tracked and return ErrProductNotFound.
	Decrement(ctx context.Context, productID int64, qty int) (int, error)

	// Increment adds qty back (compensation after a failed order insert).
	Increment(ctx context.Context, productID int64, qty int) error
}
