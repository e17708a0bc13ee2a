// Package catalog is the boundary to the product store. The fulfillment
// engine only reads from it: current price, sellable status and whether the
// product tracks inventory.
package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Active         bool            `json:"active"`
	TrackInventory bool            `json:"track_inventory"`
}

type Catalog interface {
	GetProduct(ctx context.Context, productID int64) (*Product, error)
}

// MemoryCatalog is a map-backed Catalog for tests and local runs.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[int64]Product
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[int64]Product)}
}

func (c *MemoryCatalog) Put(product Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ID] = product
}

func (c *MemoryCatalog) GetProduct(_ context.Context, productID int64) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, exists := c.products[productID]
	if !exists {
		return nil, ErrProductNotFound
	}
	return &product, nil
}
