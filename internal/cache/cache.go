package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_fulfill/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// CartCache keys by cart id (cart:{id}).
type CartCache interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Set(ctx context.Context, cartID string, cart *domain.Cart) error
	Delete(ctx context.Context, cartID string) error
}

// OrderCache keys by order id (order:{id}) and order number
// (order:number:{orderNumber}). Both entries are written and invalidated
// together.
type OrderCache interface {
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	Set(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, orderID, orderNumber string) error
}
