package gateway

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/signature"
)

// WalletConfig configures one mobile-wallet rail. Both wallets share the
// redirect protocol; they differ in endpoint, merchant id and secret.
type WalletConfig struct {
	Kind       domain.GatewayKind
	Endpoint   string
	MerchantID string
	Secret     string
}

// WalletAdapter builds a locally signed redirect payload on initiate and
// verifies caller-supplied status+signature on confirm. No remote calls.
type WalletAdapter struct {
	cfg WalletConfig
}

func NewWalletAdapter(cfg WalletConfig) *WalletAdapter {
	return &WalletAdapter{cfg: cfg}
}

func (a *WalletAdapter) Kind() domain.GatewayKind { return a.cfg.Kind }

// Refunds on the wallet rails are out-of-band only.
func (a *WalletAdapter) SupportsPartialRefund() bool { return false }

func (a *WalletAdapter) Initiate(_ context.Context, req InitiateRequest) PaymentResult {
	transactionID := fmt.Sprintf("%s-%s", a.cfg.MerchantID, uuid.New().String())
	amount := req.Amount.StringFixed(2)

	payload := signature.WalletRedirectPayload(transactionID, req.OrderID, amount, req.Currency)
	sig := signature.Sign(payload, a.cfg.Secret)

	q := url.Values{}
	q.Set("merchant_id", a.cfg.MerchantID)
	q.Set("transaction_id", transactionID)
	q.Set("order_id", req.OrderID)
	q.Set("amount", amount)
	q.Set("currency", req.Currency)
	q.Set("signature", sig)

	return PaymentResult{
		Success:       true,
		TransactionID: transactionID,
		RedirectURL:   a.cfg.Endpoint + "?" + q.Encode(),
	}
}

// Confirm checks that the supplied status+signature were produced for this
// exact transaction. A bad signature is ErrSignatureMismatch and must cause
// no state change upstream.
func (a *WalletAdapter) Confirm(_ context.Context, payment *domain.Payment, data ConfirmData) (bool, error) {
	status := data["status"]
	sig := data["signature"]
	if status == "" || sig == "" {
		return false, fmt.Errorf("wallet confirmation missing status or signature")
	}

	payload := signature.WalletCallbackPayload(
		payment.GatewayTransactionID,
		payment.OrderID.String(),
		payment.Amount.StringFixed(2),
		status,
	)
	if !signature.Verify(payload, sig, a.cfg.Secret) {
		return false, ErrSignatureMismatch
	}

	switch status {
	case "success":
		return true, nil
	case "failed":
		return false, nil
	default:
		return false, fmt.Errorf("unknown wallet status %q", status)
	}
}

// Refund is manual for wallets: the result comes back pending and a human
// settles it with the wallet provider.
func (a *WalletAdapter) Refund(_ context.Context, _ *domain.Payment, amount decimal.Decimal, _ string) RefundResult {
	return RefundResult{
		Success:  true,
		Pending:  true,
		RefundID: "manual-" + uuid.New().String(),
		Amount:   amount,
	}
}
