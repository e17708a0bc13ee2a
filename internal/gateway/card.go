package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/fjod/go_fulfill/internal/domain"
)

// CardConfig points the adapter at the card processor's intent API.
type CardConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	SecretKey string // webhook signing secret
}

// CardAdapter talks to the remote payment-intent API. All calls run behind a
// circuit breaker and an explicit timeout; a tripped breaker or timed-out
// initiate surfaces as a failed PaymentResult and the payment stays PENDING.
type CardAdapter struct {
	cfg     CardConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewCardAdapter(cfg CardConfig) *CardAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "card-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &CardAdapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

func (a *CardAdapter) Kind() domain.GatewayKind { return domain.GatewayCard }

func (a *CardAdapter) SupportsPartialRefund() bool { return true }

type cardIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

func (a *CardAdapter) Initiate(ctx context.Context, req InitiateRequest) PaymentResult {
	body := map[string]interface{}{
		"amount":   req.Amount.StringFixed(2),
		"currency": req.Currency,
		"metadata": map[string]string{
			"order_id":       req.OrderID,
			"order_number":   req.OrderNumber,
			"customer_email": req.CustomerEmail,
		},
	}
	for k, v := range req.Metadata {
		body["metadata"].(map[string]string)[k] = v
	}

	raw, err := a.post(ctx, "/v1/payment_intents", body)
	if err != nil {
		return failure(err)
	}

	var intent cardIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return failure(fmt.Errorf("decode payment intent: %w", err))
	}

	return PaymentResult{
		Success:       true,
		TransactionID: intent.ID,
		ClientSecret:  intent.ClientSecret,
		Raw:           raw,
	}
}

// Confirm queries the remote intent; only status "succeeded" confirms.
// "payment_failed" and "canceled" are explicit failures; anything else keeps
// the payment pending.
func (a *CardAdapter) Confirm(ctx context.Context, payment *domain.Payment, _ ConfirmData) (bool, error) {
	raw, err := a.get(ctx, "/v1/payment_intents/"+payment.GatewayTransactionID)
	if err != nil {
		return false, err
	}

	var intent cardIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return false, fmt.Errorf("decode payment intent: %w", err)
	}

	switch intent.Status {
	case "succeeded":
		return true, nil
	case "payment_failed", "canceled":
		return false, nil
	default:
		return false, fmt.Errorf("payment intent still %q", intent.Status)
	}
}

type cardRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (a *CardAdapter) Refund(ctx context.Context, payment *domain.Payment, amount decimal.Decimal, reason string) RefundResult {
	body := map[string]interface{}{
		"payment_intent": payment.GatewayTransactionID,
		"amount":         amount.StringFixed(2),
	}
	if reason != "" {
		body["reason"] = reason
	}

	raw, err := a.post(ctx, "/v1/refunds", body)
	if err != nil {
		return RefundResult{Success: false, Amount: amount, Error: err.Error()}
	}

	var refund cardRefund
	if err := json.Unmarshal(raw, &refund); err != nil {
		return RefundResult{Success: false, Amount: amount, Error: err.Error()}
	}
	if refund.Status != "succeeded" && refund.Status != "pending" {
		return RefundResult{Success: false, Amount: amount, Error: fmt.Sprintf("refund status %q", refund.Status)}
	}

	return RefundResult{
		Success:  true,
		Pending:  refund.Status == "pending",
		RefundID: refund.ID,
		Amount:   amount,
	}
}

func (a *CardAdapter) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return a.do(ctx, http.MethodPost, path, payload)
}

func (a *CardAdapter) get(ctx context.Context, path string) ([]byte, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

func (a *CardAdapter) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	return a.breaker.Execute(func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("card gateway call: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read gateway response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("card gateway returned %d: %s", resp.StatusCode, raw)
		}
		return raw, nil
	})
}
