// Package payment orchestrates payment attempts against the gateway rails
// and keeps payment state in step with the owning order.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/gateway"
	"github.com/fjod/go_fulfill/internal/order"
	"github.com/fjod/go_fulfill/internal/repository"
)

var (
	// ErrPaymentConflict means the payment is not in a state that allows the
	// requested operation (confirm on a terminal payment, second refund).
	ErrPaymentConflict = errors.New("payment state conflict")
	// ErrInvalidRefundAmount rejects a refund above the captured amount or not
	// above zero.
	ErrInvalidRefundAmount = errors.New("invalid refund amount")
	// ErrRefundFailed wraps a gateway-reported refund rejection.
	ErrRefundFailed = errors.New("gateway refund failed")
)

type PaymentService struct {
	payments repository.PaymentRepository
	orders   *order.OrderService
	gateways *gateway.Set
	logger   *zap.Logger
}

func NewPaymentService(payments repository.PaymentRepository, orders *order.OrderService, gateways *gateway.Set, logger *zap.Logger) *PaymentService {
	return &PaymentService{payments: payments, orders: orders, gateways: gateways, logger: logger}
}

// CreatePaymentIntent starts a payment attempt on the chosen rail. Every call
// creates a fresh Payment row; a retry after a failed attempt never reuses the
// old transaction id. A remote gateway failure is not an error here: the row
// is stored PENDING with the failure recorded in the result.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, kind domain.GatewayKind, customerEmail string, metadata map[string]string) (*domain.Payment, *gateway.PaymentResult, error) {
	adapter, err := s.gateways.For(kind)
	if err != nil {
		return nil, nil, err
	}

	ord, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if ord.PaymentStatus != domain.PaymentStatusPending {
		return nil, nil, fmt.Errorf("%w: order payment status is %s", ErrPaymentConflict, ord.PaymentStatus)
	}

	result := adapter.Initiate(ctx, gateway.InitiateRequest{
		OrderID:       ord.ID.String(),
		OrderNumber:   ord.OrderNumber,
		Amount:        ord.Total,
		Currency:      ord.Currency,
		CustomerEmail: customerEmail,
		Metadata:      metadata,
	})

	now := time.Now()
	payment := &domain.Payment{
		ID:                   uuid.New(),
		OrderID:              ord.ID,
		Gateway:              kind,
		GatewayTransactionID: result.TransactionID,
		Amount:               ord.Total,
		Currency:             ord.Currency,
		Status:               domain.PaymentPending,
		RawPayload:           result.Raw,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if payment.GatewayTransactionID == "" {
		// The gateway never issued an id; keep the row unique anyway.
		payment.GatewayTransactionID = "local-" + payment.ID.String()
	}

	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("store payment: %w", err)
	}

	if !result.Success {
		s.logger.Warn("gateway initiate failed",
			zap.String("order_id", ord.ID.String()),
			zap.String("gateway", string(kind)),
			zap.String("error", result.Error))
	}
	return payment, &result, nil
}

// ConfirmPayment settles a pending payment from gateway confirmation data. A
// gateway-confirmed success moves the payment to COMPLETED and the order's
// payment axis with it; an explicit failure moves it to FAILED. A COD decline
// cancels the order outright.
func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentID uuid.UUID, data gateway.ConfirmData) (*domain.Payment, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, payment, data)
}

func (s *PaymentService) confirm(ctx context.Context, payment *domain.Payment, data gateway.ConfirmData) (*domain.Payment, error) {
	if payment.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: payment already %s", ErrPaymentConflict, payment.Status)
	}

	adapter, err := s.gateways.For(payment.Gateway)
	if err != nil {
		return nil, err
	}

	ok, err := adapter.Confirm(ctx, payment, data)
	if err != nil {
		// Signature mismatches, manual-confirm rails without a decision, and
		// transport trouble all land here. The payment stays PENDING.
		return nil, err
	}

	if ok {
		return s.settle(ctx, payment, domain.PaymentCompleted)
	}
	return s.decline(ctx, payment)
}

func (s *PaymentService) settle(ctx context.Context, payment *domain.Payment, to domain.PaymentState) (*domain.Payment, error) {
	if err := s.payments.TransitionStatus(ctx, payment.ID, domain.PaymentPending, to, payment.RawPayload); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		}
		return nil, err
	}
	payment.Status = to
	payment.UpdatedAt = time.Now()

	if to == domain.PaymentCompleted {
		if _, err := s.orders.UpdatePaymentStatus(ctx, payment.OrderID, domain.PaymentStatusCompleted); err != nil {
			s.logger.Error("propagate completed payment to order",
				zap.String("order_id", payment.OrderID.String()), zap.Error(err))
		}
	}

	s.logger.Info("payment settled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("status", string(to)))
	return payment, nil
}

func (s *PaymentService) decline(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	if err := s.payments.TransitionStatus(ctx, payment.ID, domain.PaymentPending, domain.PaymentFailed, payment.RawPayload); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		}
		return nil, err
	}
	payment.Status = domain.PaymentFailed
	payment.UpdatedAt = time.Now()

	if payment.Gateway == domain.GatewayCOD {
		// A declined cash-on-delivery order has no retry path; cancel it.
		if _, err := s.orders.Cancel(ctx, payment.OrderID); err != nil {
			s.logger.Error("cancel order after cod decline",
				zap.String("order_id", payment.OrderID.String()), zap.Error(err))
		}
	} else {
		if _, err := s.orders.UpdatePaymentStatus(ctx, payment.OrderID, domain.PaymentStatusFailed); err != nil {
			s.logger.Error("propagate failed payment to order",
				zap.String("order_id", payment.OrderID.String()), zap.Error(err))
		}
	}
	return payment, nil
}

// ProcessRefund refunds a COMPLETED payment. No amount (zero) means a full
// refund. A full refund moves the payment to REFUNDED and the order with it;
// a partial refund leaves the payment COMPLETED so the remainder can still be
// refunded later. Partial amounts are rejected on rails that only refund in
// full.
func (s *PaymentService) ProcessRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, reason string) (*gateway.RefundResult, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentCompleted {
		return nil, fmt.Errorf("%w: refund requires COMPLETED, payment is %s", ErrPaymentConflict, payment.Status)
	}

	if amount.IsZero() {
		amount = payment.Amount
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(payment.Amount) {
		return nil, fmt.Errorf("%w: %s of %s", ErrInvalidRefundAmount, amount, payment.Amount)
	}

	adapter, err := s.gateways.For(payment.Gateway)
	if err != nil {
		return nil, err
	}

	full := amount.Equal(payment.Amount)
	if !full && !adapter.SupportsPartialRefund() {
		return nil, gateway.ErrPartialRefundUnsupported
	}

	result := adapter.Refund(ctx, payment, amount, reason)
	if !result.Success && !result.Pending {
		return nil, fmt.Errorf("%w: %s", ErrRefundFailed, result.Error)
	}

	if full {
		if err := s.payments.TransitionStatus(ctx, payment.ID, domain.PaymentCompleted, domain.PaymentRefunded, nil); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return nil, fmt.Errorf("%w: %v", ErrPaymentConflict, err)
			}
			return nil, err
		}
		if _, err := s.orders.MarkRefunded(ctx, payment.OrderID); err != nil {
			s.logger.Error("propagate refund to order",
				zap.String("order_id", payment.OrderID.String()), zap.Error(err))
		}
	}

	s.logger.Info("refund processed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", amount.String()),
		zap.Bool("full", full),
		zap.Bool("pending", result.Pending))
	return &result, nil
}

// ApplyGatewayResult settles a payment from an outcome the gateway already
// decided, as delivered by a verified webhook. No adapter call is made.
func (s *PaymentService) ApplyGatewayResult(ctx context.Context, payment *domain.Payment, success bool) (*domain.Payment, error) {
	if payment.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: payment already %s", ErrPaymentConflict, payment.Status)
	}
	if success {
		return s.settle(ctx, payment, domain.PaymentCompleted)
	}
	return s.decline(ctx, payment)
}

// ConfirmByTransaction settles the payment identified by a gateway
// transaction id. This is the webhook path: the payment must already exist,
// and a terminal payment means the delivery is a duplicate.
func (s *PaymentService) ConfirmByTransaction(ctx context.Context, kind domain.GatewayKind, txnID string, data gateway.ConfirmData) (*domain.Payment, error) {
	payment, err := s.payments.GetByGatewayTransactionID(ctx, kind, txnID)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, payment, data)
}

// FindByTransaction looks a payment up by its gateway correlation key.
func (s *PaymentService) FindByTransaction(ctx context.Context, kind domain.GatewayKind, txnID string) (*domain.Payment, error) {
	return s.payments.GetByGatewayTransactionID(ctx, kind, txnID)
}

func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.payments.GetPayment(ctx, id)
}

func (s *PaymentService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	return s.payments.ListByOrder(ctx, orderID)
}
