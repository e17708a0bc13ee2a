package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_fulfill/internal/domain"
)

var (
	// ErrUnsupportedGateway is a configuration error, caught at initiate time.
	ErrUnsupportedGateway = errors.New("unsupported payment gateway")
	// ErrRefundUnsupported means the rail has no refund path at all (COD).
	ErrRefundUnsupported = errors.New("gateway does not support refunds")
	// ErrPartialRefundUnsupported rejects a partial amount on a rail that can
	// only refund in full, rather than silently refunding everything.
	ErrPartialRefundUnsupported = errors.New("gateway does not support partial refunds")
	// ErrSignatureMismatch means a wallet confirmation carried a bad signature.
	ErrSignatureMismatch = errors.New("gateway signature mismatch")
	// ErrManualConfirmRequired means the rail cannot be confirmed from data
	// alone; a human decision is missing.
	ErrManualConfirmRequired = errors.New("gateway requires manual confirmation")
)

// InitiateRequest carries everything an adapter needs to start a payment.
type InitiateRequest struct {
	OrderID       string
	OrderNumber   string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
}

// BankDetails are the static instructions returned by the bank-transfer rail.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	Reference     string `json:"reference"`
}

// PaymentResult is the outcome of Initiate. A transient remote failure comes
// back as Success=false with Error set; the payment record stays PENDING.
type PaymentResult struct {
	Success       bool         `json:"success"`
	TransactionID string       `json:"transaction_id,omitempty"`
	ClientSecret  string       `json:"client_secret,omitempty"`
	RedirectURL   string       `json:"redirect_url,omitempty"`
	BankDetails   *BankDetails `json:"bank_details,omitempty"`
	Raw           []byte       `json:"-"`
	Error         string       `json:"error,omitempty"`
}

// RefundResult reports a refund attempt. Pending means the rail only refunds
// out-of-band and a human has to finish the job.
type RefundResult struct {
	Success  bool            `json:"success"`
	Pending  bool            `json:"pending"`
	RefundID string          `json:"refund_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Error    string          `json:"error,omitempty"`
}

// ConfirmData is the gateway-specific confirmation input: wallet callbacks
// carry "status" and "signature", COD carries "confirmed", bank transfer
// carries "approved". The card rail ignores it and asks the remote API.
type ConfirmData map[string]string

// Adapter is the common capability set every rail implements. Confirm returns
// (false, nil) only for an explicit gateway-reported failure; transport or
// validation trouble returns an error and leaves the payment PENDING.
type Adapter interface {
	Kind() domain.GatewayKind
	Initiate(ctx context.Context, req InitiateRequest) PaymentResult
	Confirm(ctx context.Context, payment *domain.Payment, data ConfirmData) (bool, error)
	Refund(ctx context.Context, payment *domain.Payment, amount decimal.Decimal, reason string) RefundResult
	SupportsPartialRefund() bool
}

// Set holds one adapter per rail. Dispatch is a closed switch: a new rail
// means a new field and a new case, because the order engine has to know its
// confirmation semantics.
type Set struct {
	card    Adapter
	walletA Adapter
	walletB Adapter
	bank    Adapter
	cod     Adapter
}

func NewSet(card, walletA, walletB, bank, cod Adapter) *Set {
	return &Set{card: card, walletA: walletA, walletB: walletB, bank: bank, cod: cod}
}

func (s *Set) For(kind domain.GatewayKind) (Adapter, error) {
	switch kind {
	case domain.GatewayCard:
		return s.card, nil
	case domain.GatewayWalletA:
		return s.walletA, nil
	case domain.GatewayWalletB:
		return s.walletB, nil
	case domain.GatewayBankTransfer:
		return s.bank, nil
	case domain.GatewayCOD:
		return s.cod, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGateway, kind)
	}
}

func failure(err error) PaymentResult {
	return PaymentResult{Success: false, Error: err.Error()}
}
