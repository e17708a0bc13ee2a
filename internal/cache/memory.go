package cache

import (
	"context"
	"sync"

	"github.com/fjod/go_fulfill/internal/domain"
)

// MemoryCartCache is a map-backed CartCache for tests and cache-less runs.
type MemoryCartCache struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryCartCache() *MemoryCartCache {
	return &MemoryCartCache{carts: make(map[string]*domain.Cart)}
}

func (m *MemoryCartCache) Get(_ context.Context, cartID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cart, exists := m.carts[cartID]
	if !exists {
		return nil, ErrCacheMiss
	}
	return cart, nil
}

func (m *MemoryCartCache) Set(_ context.Context, cartID string, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cartID] = cart
	return nil
}

func (m *MemoryCartCache) Delete(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, cartID)
	return nil
}

// MemoryOrderCache is a map-backed OrderCache for tests and cache-less runs.
type MemoryOrderCache struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Order
	byNumber map[string]*domain.Order
}

func NewMemoryOrderCache() *MemoryOrderCache {
	return &MemoryOrderCache{
		byID:     make(map[string]*domain.Order),
		byNumber: make(map[string]*domain.Order),
	}
}

func (m *MemoryOrderCache) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, exists := m.byID[orderID]
	if !exists {
		return nil, ErrCacheMiss
	}
	return order, nil
}

func (m *MemoryOrderCache) GetByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, exists := m.byNumber[orderNumber]
	if !exists {
		return nil, ErrCacheMiss
	}
	return order, nil
}

func (m *MemoryOrderCache) Set(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[order.ID.String()] = order
	m.byNumber[order.OrderNumber] = order
	return nil
}

func (m *MemoryOrderCache) Delete(_ context.Context, orderID, orderNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, orderID)
	delete(m.byNumber, orderNumber)
	return nil
}
