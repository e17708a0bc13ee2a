// Package webhook ingests asynchronous gateway notifications. Every inbound
// event is verified before any lookup, applied at most once, and never
// creates payment records.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/gateway"
	"github.com/fjod/go_fulfill/internal/payment"
	"github.com/fjod/go_fulfill/internal/signature"
)

// ErrSignatureInvalid is the single rejection error for every signature
// problem. Callers respond identically whatever the underlying mismatch was.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// Outcome reports what an accepted delivery did.
type Outcome string

const (
	// OutcomeProcessed means the payment transitioned.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate means the payment was already terminal; the delivery is
	// acknowledged with no side effects.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the event type is not one we act on.
	OutcomeIgnored Outcome = "ignored"
)

const (
	cardEventSucceeded = "payment_intent.succeeded"
	cardEventFailed    = "payment_intent.payment_failed"
)

// WalletCallback is the inbound POST body both wallet rails send.
type WalletCallback struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	Signature     string `json:"signature"`
}

// Secrets holds the per-rail webhook verification keys.
type Secrets struct {
	Card    string
	WalletA string
	WalletB string
}

type Ingestor struct {
	payments *payment.PaymentService
	secrets  Secrets
	logger   *zap.Logger
}

func NewIngestor(payments *payment.PaymentService, secrets Secrets, logger *zap.Logger) *Ingestor {
	return &Ingestor{payments: payments, secrets: secrets, logger: logger}
}

type cardEvent struct {
	Type string `json:"type"`
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// HandleCardEvent processes one card-processor webhook delivery. The raw body
// is verified against the signature header exactly as received; only then is
// it parsed.
func (i *Ingestor) HandleCardEvent(ctx context.Context, body []byte, sig string) (Outcome, error) {
	if !signature.Verify(string(body), sig, i.secrets.Card) {
		return "", ErrSignatureInvalid
	}

	var event cardEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return "", fmt.Errorf("decode card event: %w", err)
	}

	var success bool
	switch event.Type {
	case cardEventSucceeded:
		success = true
	case cardEventFailed:
		success = false
	default:
		i.logger.Debug("ignoring card event", zap.String("type", event.Type))
		return OutcomeIgnored, nil
	}

	p, err := i.payments.FindByTransaction(ctx, domain.GatewayCard, event.Data.ID)
	if err != nil {
		return "", err
	}
	if p.Status.IsTerminal() {
		i.logger.Info("duplicate card webhook",
			zap.String("transaction_id", event.Data.ID),
			zap.String("status", string(p.Status)))
		return OutcomeDuplicate, nil
	}

	if _, err := i.payments.ApplyGatewayResult(ctx, p, success); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// HandleWalletCallback processes one wallet callback. The signature is
// verified over the callback's own fields before any lookup, then again by
// the wallet adapter against the stored payment, which also catches a
// tampered amount or order id.
func (i *Ingestor) HandleWalletCallback(ctx context.Context, kind domain.GatewayKind, cb WalletCallback) (Outcome, error) {
	var secret string
	switch kind {
	case domain.GatewayWalletA:
		secret = i.secrets.WalletA
	case domain.GatewayWalletB:
		secret = i.secrets.WalletB
	default:
		return "", fmt.Errorf("%w: %q", gateway.ErrUnsupportedGateway, kind)
	}

	payload := signature.WalletCallbackPayload(cb.TransactionID, cb.OrderID, cb.Amount, cb.Status)
	if !signature.Verify(payload, cb.Signature, secret) {
		return "", ErrSignatureInvalid
	}

	p, err := i.payments.FindByTransaction(ctx, kind, cb.TransactionID)
	if err != nil {
		return "", err
	}
	if p.Status.IsTerminal() {
		i.logger.Info("duplicate wallet callback",
			zap.String("transaction_id", cb.TransactionID),
			zap.String("status", string(p.Status)))
		return OutcomeDuplicate, nil
	}

	_, err = i.payments.ConfirmPayment(ctx, p.ID, gateway.ConfirmData{
		"status":    cb.Status,
		"signature": cb.Signature,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureMismatch) {
			return "", ErrSignatureInvalid
		}
		return "", err
	}
	return OutcomeProcessed, nil
}
