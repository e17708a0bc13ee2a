package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GatewayKind enumerates the supported payment rails. The set is closed:
// adding a rail means adding a new adapter variant, not runtime registration.
type GatewayKind string

const (
	GatewayCard         GatewayKind = "CARD"
	GatewayWalletA      GatewayKind = "WALLET_A"
	GatewayWalletB      GatewayKind = "WALLET_B"
	GatewayBankTransfer GatewayKind = "BANK_TRANSFER"
	GatewayCOD          GatewayKind = "COD"
)

// Valid reports whether g is a known rail.
func (g GatewayKind) Valid() bool {
	switch g {
	case GatewayCard, GatewayWalletA, GatewayWalletB, GatewayBankTransfer, GatewayCOD:
		return true
	}
	return false
}

// PaymentState is the lifecycle of a single payment attempt. A payment
// transitions COMPLETED at most once; refund requires prior COMPLETED.
type PaymentState string

const (
	PaymentPending   PaymentState = "PENDING"
	PaymentCompleted PaymentState = "COMPLETED"
	PaymentFailed    PaymentState = "FAILED"
	PaymentRefunded  PaymentState = "REFUNDED"
)

// IsTerminal reports whether a webhook for this payment is a redelivery.
func (s PaymentState) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentRefunded
}

// Payment records one gateway attempt. Retries create new rows; a failed
// payment is never mutated back to pending.
type Payment struct {
	ID                   uuid.UUID       `json:"id"`
	OrderID              uuid.UUID       `json:"order_id"`
	Gateway              GatewayKind     `json:"gateway"`
	GatewayTransactionID string          `json:"gateway_transaction_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Status               PaymentState    `json:"status"`

	// RawPayload keeps the gateway response opaque for audit and replay.
	RawPayload []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
