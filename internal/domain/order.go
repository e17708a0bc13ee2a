package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment axis of an order. Independent from the
// shipping axis except that a completed payment advances shipping
// PENDING -> PROCESSING.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// ShippingStatus is the fulfillment axis of an order.
type ShippingStatus string

const (
	ShippingStatusPending    ShippingStatus = "PENDING"
	ShippingStatusProcessing ShippingStatus = "PROCESSING"
	ShippingStatusShipped    ShippingStatus = "SHIPPED"
	ShippingStatusDelivered  ShippingStatus = "DELIVERED"
	ShippingStatusCancelled  ShippingStatus = "CANCELLED"
)

// paymentTransitions is the closed set of legal payment-axis moves. Anything
// not listed is rejected, never silently overwritten.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

var shippingTransitions = map[ShippingStatus][]ShippingStatus{
	ShippingStatusPending:    {ShippingStatusProcessing, ShippingStatusShipped, ShippingStatusCancelled},
	ShippingStatusProcessing: {ShippingStatusShipped, ShippingStatusCancelled},
	ShippingStatusShipped:    {ShippingStatusDelivered, ShippingStatusCancelled},
}

// CanTransitPayment reports whether from -> to is a legal payment-axis move.
func CanTransitPayment(from, to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitShipping reports whether from -> to is a legal shipping-axis move.
func CanTransitShipping(from, to ShippingStatus) bool {
	for _, allowed := range shippingTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalPayment reports whether no further payment-axis moves exist.
func IsTerminalPayment(s PaymentStatus) bool {
	return len(paymentTransitions[s]) == 0
}

type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// OrderItem carries a price snapshot taken at order-creation time; later
// catalog price changes never touch it.
type OrderItem struct {
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Variant        *Variant        `json:"variant,omitempty"`
	TrackInventory bool            `json:"track_inventory"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is created once per checkout and never hard-deleted; cancellation is
// a status transition on both axes.
type Order struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id,omitempty"`
	WebsiteID   string    `json:"website_id"`

	Items           []OrderItem `json:"items"`
	ShippingAddress Address     `json:"shipping_address"`
	BillingAddress  *Address    `json:"billing_address,omitempty"`

	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`

	PaymentStatus  PaymentStatus  `json:"payment_status"`
	ShippingStatus ShippingStatus `json:"shipping_status"`
	TrackingNumber string         `json:"tracking_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
