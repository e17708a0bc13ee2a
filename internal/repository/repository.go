package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_fulfill/internal/domain"
)

var (
	ErrCartNotFound         = errors.New("cart not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrDuplicateTransaction = errors.New("gateway transaction id already exists")
	// ErrStaleStatus means the compare-and-set transition lost: the row is no
	// longer in the expected status.
	ErrStaleStatus = errors.New("payment status changed concurrently")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository persists carts. Mutations are serialized per cart id by the
// cart service, so UpsertCart is a plain replace.
type CartRepository interface {
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	// FindByOwner locates the live cart for a user or anonymous session within
	// one website. Returns ErrCartNotFound when none exists.
	FindByOwner(ctx context.Context, userID, sessionID, websiteID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, cartID string) error
	// DeleteExpired purges carts past their expiry and returns how many went.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// OrderStats is the read-model summary exposed to the route layer.
type OrderStats struct {
	TotalOrders    int             `json:"total_orders"`
	PendingPayment int             `json:"pending_payment"`
	Completed      int             `json:"completed"`
	Cancelled      int             `json:"cancelled"`
	Revenue        decimal.Decimal `json:"revenue"`
	ByShipping     map[string]int  `json:"by_shipping"`
}

// OutboxEvent is an order status change waiting to be published.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// OrderRepository persists orders. CreateOrder is the one multi-entity atomic
// operation: the order row, its item rows, and the inventory decrement for
// every tracked item commit together or not at all.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	// UpdateStatus persists both axes; legality is the order engine's job.
	UpdateStatus(ctx context.Context, id uuid.UUID, payment domain.PaymentStatus, shipping domain.ShippingStatus) error
	UpdateTracking(ctx context.Context, id uuid.UUID, trackingNumber string) error
	Stats(ctx context.Context, websiteID string) (*OrderStats, error)

	AppendOutboxEvent(ctx context.Context, event *OutboxEvent) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, eventID int64) error
}

// PaymentRepository persists payment attempts.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByGatewayTransactionID(ctx context.Context, gateway domain.GatewayKind, txnID string) (*domain.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error)
	// TransitionStatus is a compare-and-set: it moves the payment from the
	// expected status to the new one, or fails with ErrStaleStatus. The raw
	// gateway payload is stored alongside when non-nil.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentState, rawPayload []byte) error
}
