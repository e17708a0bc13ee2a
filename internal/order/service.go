// Package order implements the order engine: transactional order creation,
// the two-axis status state machine, and order read models.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_fulfill/internal/cache"
	"github.com/fjod/go_fulfill/internal/cart"
	"github.com/fjod/go_fulfill/internal/catalog"
	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/logistics"
	"github.com/fjod/go_fulfill/internal/repository"
)

var (
	ErrEmptyOrder = errors.New("order has no items")
	// ErrIllegalTransition means the requested status move is not in the
	// transition table. The current status is never overwritten.
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrNumberExhausted   = errors.New("could not generate a unique order number")
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"

	orderNumberRetries = 5
)

// CreateOrderInput describes one checkout. Exactly one of CartID / Items is
// set: CartID consumes (and deletes) an existing cart, Items places an order
// directly.
type CreateOrderInput struct {
	CartID string
	Items  []domain.OrderItem

	UserID    string
	WebsiteID string
	Currency  string

	ShippingAddress domain.Address
	BillingAddress  *domain.Address
}

// Quote is the result of CalculateOrderTotal: a preview priced from the
// current catalog, not from cart snapshots.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
	Carrier  string          `json:"carrier,omitempty"`
}

// QuoteLine is one line of a total preview request.
type QuoteLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type OrderService struct {
	repo    repository.OrderRepository
	cache   cache.OrderCache
	carts   *cart.CartService
	catalog catalog.Catalog
	quoter  logistics.RateQuoter
	logger  *zap.Logger

	sfg   singleflight.Group
	locks sync.Map // order id -> *sync.Mutex
}

func NewOrderService(
	repo repository.OrderRepository,
	orderCache cache.OrderCache,
	carts *cart.CartService,
	cat catalog.Catalog,
	quoter logistics.RateQuoter,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		repo:    repo,
		cache:   orderCache,
		carts:   carts,
		catalog: cat,
		quoter:  quoter,
		logger:  logger,
	}
}

func (s *OrderService) lockFor(orderID uuid.UUID) *sync.Mutex {
	actual, _ := s.locks.LoadOrStore(orderID.String(), &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// CreateOrder places an order. The order row, its items, and the inventory
// decrement for tracked items commit atomically; on any failure nothing is
// persisted. Order number collisions are retried with a fresh suffix.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	items := in.Items
	var sourceCart *domain.Cart
	if in.CartID != "" {
		c, err := s.carts.GetCart(ctx, in.CartID)
		if err != nil {
			return nil, err
		}
		sourceCart = c
		items, err = s.itemsFromCart(ctx, c)
		if err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	now := time.Now()
	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          in.UserID,
		WebsiteID:       in.WebsiteID,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		Currency:        in.Currency,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingStatus:  domain.ShippingStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	s.priceOrder(order, sourceCart)

	var err error
	for attempt := 0; attempt < orderNumberRetries; attempt++ {
		order.OrderNumber = newOrderNumber(now)
		err = s.repo.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
			return nil, err
		}
		s.logger.Warn("order number collision, retrying", zap.String("order_number", order.OrderNumber))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumberExhausted, err)
	}

	// The cart is consumed by the order. A failed delete only leaves a cart
	// behind until the expiry sweep.
	if sourceCart != nil {
		if err := s.carts.Delete(ctx, sourceCart.ID); err != nil {
			s.logger.Warn("delete cart after checkout",
				zap.String("cart_id", sourceCart.ID), zap.Error(err))
		}
	}

	s.emitEvent(ctx, order, EventOrderCreated)
	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.String()))
	return order, nil
}

// itemsFromCart copies cart lines into order items, keeping the cart's price
// snapshots. Product name and inventory tracking come from the catalog.
func (s *OrderService) itemsFromCart(ctx context.Context, c *domain.Cart) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(c.Items))
	for _, line := range c.Items {
		item := domain.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Variant:   line.Variant,
		}
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if !errors.Is(err, catalog.ErrProductNotFound) {
				return nil, err
			}
		} else {
			item.ProductName = product.Name
			item.TrackInventory = product.TrackInventory
		}
		items = append(items, item)
	}
	return items, nil
}

// priceOrder fills the money fields. A cart checkout carries the cart's
// already computed totals; a direct order is priced from its lines with the
// same policy.
func (s *OrderService) priceOrder(order *domain.Order, sourceCart *domain.Cart) {
	if sourceCart != nil {
		order.Subtotal = sourceCart.Subtotal
		order.Tax = sourceCart.Tax
		order.Shipping = sourceCart.Shipping
		order.Discount = sourceCart.Discount
		order.Total = sourceCart.Total
		return
	}

	subtotal := decimal.Zero
	for _, item := range order.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	order.Subtotal = subtotal
	order.Tax = subtotal.Mul(domain.TaxRate)
	order.Shipping = domain.ShippingFee(subtotal)
	order.Discount = decimal.Zero
	order.Total = order.Subtotal.Add(order.Tax).Add(order.Shipping).Sub(order.Discount)
}

func newOrderNumber(now time.Time) string {
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), hex.EncodeToString(suffix))
}

// FindByID is cache-aside with singleflight, mirroring cart reads.
func (s *OrderService) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	v, err, _ := s.sfg.Do("id:"+id.String(), func() (interface{}, error) {
		order, err := s.cache.GetByID(ctx, id.String())
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("order cache get error", zap.Error(err))
		}

		order, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.fillCache(order)
		return order, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Order), nil
}

func (s *OrderService) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	v, err, _ := s.sfg.Do("number:"+orderNumber, func() (interface{}, error) {
		order, err := s.cache.GetByNumber(ctx, orderNumber)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("order cache get error", zap.Error(err))
		}

		order, err = s.repo.GetByOrderNumber(ctx, orderNumber)
		if err != nil {
			return nil, err
		}
		s.fillCache(order)
		return order, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Order), nil
}

// UpdatePaymentStatus moves the payment axis. A move to COMPLETED while
// shipping is still PENDING advances shipping to PROCESSING in the same
// write.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, to domain.PaymentStatus) (*domain.Order, error) {
	return s.transition(ctx, id, func(order *domain.Order) error {
		if !domain.CanTransitPayment(order.PaymentStatus, to) {
			return fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, order.PaymentStatus, to)
		}
		order.PaymentStatus = to
		if to == domain.PaymentStatusCompleted && order.ShippingStatus == domain.ShippingStatusPending {
			order.ShippingStatus = domain.ShippingStatusProcessing
		}
		return nil
	}, EventOrderStatusChanged)
}

func (s *OrderService) UpdateShippingStatus(ctx context.Context, id uuid.UUID, to domain.ShippingStatus) (*domain.Order, error) {
	return s.transition(ctx, id, func(order *domain.Order) error {
		if !domain.CanTransitShipping(order.ShippingStatus, to) {
			return fmt.Errorf("%w: shipping %s -> %s", ErrIllegalTransition, order.ShippingStatus, to)
		}
		order.ShippingStatus = to
		return nil
	}, EventOrderStatusChanged)
}

// Cancel sets both axes to CANCELLED. Orders are never deleted. Payment must
// still be PENDING and shipping must not have reached a terminal state.
func (s *OrderService) Cancel(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, id, func(order *domain.Order) error {
		if !domain.CanTransitPayment(order.PaymentStatus, domain.PaymentStatusCancelled) {
			return fmt.Errorf("%w: cancel with payment %s", ErrIllegalTransition, order.PaymentStatus)
		}
		if order.ShippingStatus != domain.ShippingStatusCancelled &&
			!domain.CanTransitShipping(order.ShippingStatus, domain.ShippingStatusCancelled) {
			return fmt.Errorf("%w: cancel with shipping %s", ErrIllegalTransition, order.ShippingStatus)
		}
		order.PaymentStatus = domain.PaymentStatusCancelled
		order.ShippingStatus = domain.ShippingStatusCancelled
		return nil
	}, EventOrderCancelled)
}

// MarkRefunded propagates a payment refund onto the order's payment axis.
func (s *OrderService) MarkRefunded(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.UpdatePaymentStatus(ctx, id, domain.PaymentStatusRefunded)
}

func (s *OrderService) transition(ctx context.Context, id uuid.UUID, apply func(*domain.Order) error, eventType string) (*domain.Order, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := apply(order); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, id, order.PaymentStatus, order.ShippingStatus); err != nil {
		return nil, fmt.Errorf("persist status: %w", err)
	}
	order.UpdatedAt = time.Now()

	s.emitEvent(ctx, order, eventType)
	s.invalidate(order)
	return order, nil
}

// AddTracking attaches a carrier tracking number. It does not move the
// shipping axis; callers advance to SHIPPED separately.
func (s *OrderService) AddTracking(ctx context.Context, id uuid.UUID, trackingNumber string) (*domain.Order, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateTracking(ctx, id, trackingNumber); err != nil {
		return nil, fmt.Errorf("persist tracking: %w", err)
	}
	order.TrackingNumber = trackingNumber
	order.UpdatedAt = time.Now()

	s.invalidate(order)
	return order, nil
}

// CalculateOrderTotal prices lines at current catalog prices and quotes
// shipping from the cheapest logistics rate. When no quoter is wired or no
// rates come back, the flat shipping policy applies.
func (s *OrderService) CalculateOrderTotal(ctx context.Context, lines []QuoteLine, address domain.Address, parcel logistics.Parcel) (*Quote, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, cart.ErrInvalidQuantity
		}
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		subtotal = subtotal.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	quote := &Quote{
		Subtotal: subtotal,
		Tax:      subtotal.Mul(domain.TaxRate),
		Shipping: domain.ShippingFee(subtotal),
	}

	if s.quoter != nil {
		rates, err := s.quoter.GetShippingRates(ctx, address, parcel)
		if err != nil && !errors.Is(err, logistics.ErrNoRates) {
			return nil, err
		}
		if best, err := logistics.Cheapest(rates); err == nil {
			quote.Shipping = best.Amount
			quote.Carrier = best.Carrier
		}
	}

	quote.Total = quote.Subtotal.Add(quote.Tax).Add(quote.Shipping)
	return quote, nil
}

func (s *OrderService) Stats(ctx context.Context, websiteID string) (*repository.OrderStats, error) {
	return s.repo.Stats(ctx, websiteID)
}

func (s *OrderService) emitEvent(ctx context.Context, order *domain.Order, eventType string) {
	payload, err := json.Marshal(map[string]string{
		"order_id":        order.ID.String(),
		"order_number":    order.OrderNumber,
		"payment_status":  string(order.PaymentStatus),
		"shipping_status": string(order.ShippingStatus),
	})
	if err != nil {
		s.logger.Error("marshal outbox event", zap.Error(err))
		return
	}
	event := &repository.OutboxEvent{
		AggregateID: order.ID.String(),
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.AppendOutboxEvent(ctx, event); err != nil {
		s.logger.Error("append outbox event",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

func (s *OrderService) fillCache(order *domain.Order) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Set(ctx, order); err != nil {
			s.logger.Warn("order cache set error", zap.Error(err))
		}
	}()
}

func (s *OrderService) invalidate(order *domain.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, order.ID.String(), order.OrderNumber); err != nil {
		s.logger.Warn("order cache invalidate error",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}
