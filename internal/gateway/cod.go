package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_fulfill/internal/domain"
)

// CODAdapter records the intent and waits for the merchant to confirm or
// decline on delivery. No refund path: a declined COD order is cancelled.
type CODAdapter struct{}

func NewCODAdapter() *CODAdapter { return &CODAdapter{} }

func (a *CODAdapter) Kind() domain.GatewayKind { return domain.GatewayCOD }

func (a *CODAdapter) SupportsPartialRefund() bool { return false }

func (a *CODAdapter) Initiate(_ context.Context, _ InitiateRequest) PaymentResult {
	return PaymentResult{
		Success:       true,
		TransactionID: "COD-" + uuid.New().String(),
	}
}

// Confirm is the explicit merchant action: "confirmed" true/false.
func (a *CODAdapter) Confirm(_ context.Context, _ *domain.Payment, data ConfirmData) (bool, error) {
	switch data["confirmed"] {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, ErrManualConfirmRequired
	}
}

func (a *CODAdapter) Refund(_ context.Context, _ *domain.Payment, amount decimal.Decimal, _ string) RefundResult {
	return RefundResult{
		Success: false,
		Amount:  amount,
		Error:   ErrRefundUnsupported.Error(),
	}
}
