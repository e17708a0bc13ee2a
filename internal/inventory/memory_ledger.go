package inventory

import (
	"context"
	"sync"
)

// MemoryLedger implements Ledger with in-memory storage
type MemoryLedger struct {
	mu     sync.RWMutex
	stocks map[int64]int // productID -> count
}

// NewMemoryLedger creates a new in-memory inventory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		stocks: make(map[int64]int),
	}
}

func (l *MemoryLedger) Get(_ context.Context, productID int64) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count, exists := l.stocks[productID]
	if !exists {
		return 0, ErrProductNotFound
	}
	return count, nil
}

func (l *MemoryLedger) SetStock(_ context.Context, productID int64, count int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stocks[productID] = count
	return nil
}

// Decrement floors at zero. Two concurrent decrements against the same
// product serialize under the ledger lock, so stock never goes negative.
func (l *MemoryLedger) Decrement(_ context.Context, productID int64, qty int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, exists := l.stocks[productID]
	if !exists {
		return 0, ErrProductNotFound
	}

	count -= qty
	if count < 0 {
		count = 0
	}
	l.stocks[productID] = count
	return count, nil
}

func (l *MemoryLedger) Increment(_ context.Context, productID int64, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, exists := l.stocks[productID]
	if !exists {
		return ErrProductNotFound
	}
	l.stocks[productID] = count + qty
	return nil
}
