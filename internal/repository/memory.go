package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/inventory"
)

// MemoryCartRepository keeps carts in a map. Used by tests and single-node
// deployments without mongo.
type MemoryCartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: make(map[string]*domain.Cart)}
}

func (r *MemoryCartRepository) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, exists := r.carts[cartID]
	if !exists {
		return nil, ErrCartNotFound
	}
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (r *MemoryCartRepository) FindByOwner(_ context.Context, userID, sessionID, websiteID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cart := range r.carts {
		if cart.WebsiteID != websiteID {
			continue
		}
		if userID != "" && cart.UserID == userID {
			return copyCart(cart), nil
		}
		if userID == "" && sessionID != "" && cart.SessionID == sessionID {
			return copyCart(cart), nil
		}
	}
	return nil, ErrCartNotFound
}

func copyCart(cart *domain.Cart) *domain.Cart {
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	return &cp
}

func (r *MemoryCartRepository) UpsertCart(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	r.carts[cart.ID] = copyCart(cart)
	return nil
}

func (r *MemoryCartRepository) DeleteCart(_ context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.carts[cartID]; !exists {
		return ErrCartNotFound
	}
	delete(r.carts, cartID)
	return nil
}

func (r *MemoryCartRepository) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, cart := range r.carts {
		if !cart.ExpiresAt.IsZero() && now.After(cart.ExpiresAt) {
			delete(r.carts, id)
			purged++
		}
	}
	return purged, nil
}

// MemoryOrderRepository keeps orders in a map and performs the create-order
// inventory decrement through the shared ledger, compensating on failure so
// a failed insert leaves no stock mutation behind.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
	byNum  map[string]uuid.UUID

	outbox   []*OutboxEvent
	outboxID int64

	ledger inventory.Ledger

	// failCreate lets tests simulate a storage failure after the inventory
	// decrement has happened.
	failCreate error
}

func NewMemoryOrderRepository(ledger inventory.Ledger) *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[uuid.UUID]*domain.Order),
		byNum:  make(map[string]uuid.UUID),
		ledger: ledger,
	}
}

// FailNextCreate injects an error into the storage step of CreateOrder.
func (r *MemoryOrderRepository) FailNextCreate(err error) { r.failCreate = err }

func (r *MemoryOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byNum[order.OrderNumber]; exists {
		return ErrDuplicateOrderNumber
	}

	// Decrement tracked stock first; roll back on any later failure.
	decremented := make([]domain.OrderItem, 0, len(order.Items))
	rollback := func() {
		for _, item := range decremented {
			_ = r.ledger.Increment(ctx, item.ProductID, item.Quantity)
		}
	}

	for _, item := range order.Items {
		if !item.TrackInventory {
			continue
		}
		if _, err := r.ledger.Decrement(ctx, item.ProductID, item.Quantity); err != nil {
			if !errors.Is(err, inventory.ErrProductNotFound) {
				rollback()
				return err
			}
			continue // untracked in ledger, nothing to decrement
		}
		decremented = append(decremented, item)
	}

	if r.failCreate != nil {
		err := r.failCreate
		r.failCreate = nil
		rollback()
		return err
	}

	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	r.orders[order.ID] = &cp
	r.byNum[order.OrderNumber] = order.ID
	return nil
}

func (r *MemoryOrderRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (r *MemoryOrderRepository) GetByOrderNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byNum[orderNumber]
	if !exists {
		return nil, ErrOrderNotFound
	}
	return copyOrder(r.orders[id]), nil
}

func copyOrder(order *domain.Order) *domain.Order {
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	return &cp
}

func (r *MemoryOrderRepository) UpdateStatus(_ context.Context, id uuid.UUID, payment domain.PaymentStatus, shipping domain.ShippingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return ErrOrderNotFound
	}
	order.PaymentStatus = payment
	order.ShippingStatus = shipping
	order.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryOrderRepository) UpdateTracking(_ context.Context, id uuid.UUID, trackingNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return ErrOrderNotFound
	}
	order.TrackingNumber = trackingNumber
	order.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryOrderRepository) Stats(_ context.Context, websiteID string) (*OrderStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &OrderStats{ByShipping: make(map[string]int), Revenue: decimal.Zero}
	for _, order := range r.orders {
		if websiteID != "" && order.WebsiteID != websiteID {
			continue
		}
		stats.TotalOrders++
		switch order.PaymentStatus {
		case domain.PaymentStatusPending:
			stats.PendingPayment++
		case domain.PaymentStatusCompleted:
			stats.Completed++
			stats.Revenue = stats.Revenue.Add(order.Total)
		case domain.PaymentStatusCancelled:
			stats.Cancelled++
		}
		stats.ByShipping[string(order.ShippingStatus)]++
	}
	return stats, nil
}

func (r *MemoryOrderRepository) AppendOutboxEvent(_ context.Context, event *OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outboxID++
	event.ID = r.outboxID
	event.CreatedAt = time.Now()
	r.outbox = append(r.outbox, event)
	return nil
}

func (r *MemoryOrderRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]*OutboxEvent, 0, limit)
	for _, ev := range r.outbox {
		if len(events) == limit {
			break
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *MemoryOrderRepository) MarkEventAsProcessed(_ context.Context, eventID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, ev := range r.outbox {
		if ev.ID == eventID {
			r.outbox = append(r.outbox[:i], r.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

// MemoryPaymentRepository keeps payment attempts in a map with the
// (gateway, transaction id) uniqueness the schema enforces in postgres.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
	byTxn    map[string]uuid.UUID
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[uuid.UUID]*domain.Payment),
		byTxn:    make(map[string]uuid.UUID),
	}
}

func txnKey(gateway domain.GatewayKind, txnID string) string {
	return string(gateway) + ":" + txnID
}

func (r *MemoryPaymentRepository) CreatePayment(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := txnKey(payment.Gateway, payment.GatewayTransactionID)
	if _, exists := r.byTxn[key]; exists {
		return ErrDuplicateTransaction
	}

	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	cp := *payment
	r.payments[payment.ID] = &cp
	r.byTxn[key] = payment.ID
	return nil
}

func (r *MemoryPaymentRepository) GetPayment(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, exists := r.payments[id]
	if !exists {
		return nil, ErrPaymentNotFound
	}
	cp := *payment
	return &cp, nil
}

func (r *MemoryPaymentRepository) GetByGatewayTransactionID(_ context.Context, gateway domain.GatewayKind, txnID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byTxn[txnKey(gateway, txnID)]
	if !exists {
		return nil, ErrPaymentNotFound
	}
	cp := *r.payments[id]
	return &cp, nil
}

func (r *MemoryPaymentRepository) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Payment
	for _, payment := range r.payments {
		if payment.OrderID == orderID {
			cp := *payment
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryPaymentRepository) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.PaymentState, rawPayload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, exists := r.payments[id]
	if !exists {
		return ErrPaymentNotFound
	}
	if payment.Status != from {
		return ErrStaleStatus
	}
	payment.Status = to
	if rawPayload != nil {
		payment.RawPayload = rawPayload
	}
	payment.UpdatedAt = time.Now()
	return nil
}
