package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_fulfill/internal/domain"
)

// BankTransferConfig is the static account the customer wires money to.
type BankTransferConfig struct {
	BankName      string
	AccountName   string
	AccountNumber string
}

/// BankTransferAdapter makes no remote calls: initiate hands out the bank
// details and a reference, confirmation is always a human decision.
type BankTransferAdapter struct {
	cfg BankTransferConfig
}

func NewBankTransferAdapter(cfg BankTransferConfig) *BankTransferAdapter {
	return &BankTransferAdapter{cfg: cfg}
}

func (a *BankTransferAdapter) Kind() domain.GatewayKind { return domain.GatewayBankTransfer }

func (a *BankTransferAdapter) SupportsPartialRefund() bool { return false }

func (a *BankTransferAdapter) Initiate(_ context.Context, req InitiateRequest) PaymentResult {
	transactionID := "BT-" + uuid.New().String()
	return PaymentResult{
		Success:       true,
		TransactionID: transactionID,
		BankDetails: &BankDetails{
			BankName:      a.cfg.BankName,
			AccountName:   a.cfg.AccountName,
			AccountNumber: a.cfg.AccountNumber,
			Reference:     req.OrderNumber,
		},
	}
}

// Confirm requires an explicit reviewed decision ("approved": true/false);
// anything else means the transfer has not been reviewed yet.
func (a *BankTransferAdapter) Confirm(_ context.Context, _ *domain.Payment, data ConfirmData) (bool, error) {
	switch data["approved"] {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, ErrManualConfirmRequired
	}
}

func (a *BankTransferAdapter) Refund(_ context.Context, _ *domain.Payment, amount decimal.Decimal, _ string) RefundResult {
	return RefundResult{
		Success:  true,
		Pending:  true,
		RefundID: "manual-" + uuid.New().String(),
		Amount:   amount,
	}
}
