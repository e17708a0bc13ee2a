package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/go_fulfill/internal/cache"
	"github.com/fjod/go_fulfill/internal/cart"
	"github.com/fjod/go_fulfill/internal/catalog"
	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/gateway"
	"github.com/fjod/go_fulfill/internal/inventory"
	"github.com/fjod/go_fulfill/internal/order"
	"github.com/fjod/go_fulfill/internal/repository"
	"github.com/fjod/go_fulfill/internal/signature"
)

const walletSecret = "wallet-test-secret"

// cardServer fakes the card processor's intent API.
type cardServer struct {
	mu           sync.Mutex
	intentStatus string
	refundStatus string
}

func (c *cardServer) setIntentStatus(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intentStatus = s
}

func (c *cardServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id": "pi_test_1", "client_secret": "cs_test_1", "status": "requires_payment_method",
		})
	})
	mux.HandleFunc("/v1/payment_intents/", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		status := c.intentStatus
		c.mu.Unlock()
		id := strings.TrimPrefix(r.URL.Path, "/v1/payment_intents/")
		json.NewEncoder(w).Encode(map[string]string{"id": id, "status": status})
	})
	mux.HandleFunc("/v1/refunds", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		status := c.refundStatus
		c.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "re_test_1", "status": status})
	})
	return mux
}

type fixture struct {
	svc      *PaymentService
	orders   *order.OrderService
	payments *repository.MemoryPaymentRepository
	repo     *repository.MemoryOrderRepository
	card     *cardServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	card := &cardServer{intentStatus: "requires_payment_method", refundStatus: "succeeded"}
	srv := httptest.NewServer(card.handler())
	t.Cleanup(srv.Close)
	return newFixtureWithCardURL(t, card, srv.URL)
}

func newFixtureWithCardURL(t *testing.T, card *cardServer, cardURL string) *fixture {
	t.Helper()
	cat := catalog.NewMemoryCatalog()
	cat.Put(catalog.Product{ID: 1, Name: "Mug", Price: decimal.NewFromInt(10), Active: true})
	ledger := inventory.NewMemoryLedger()
	repo := repository.NewMemoryOrderRepository(ledger)

	carts := cart.NewCartService(
		repository.NewMemoryCartRepository(), cache.NewMemoryCartCache(), cat, ledger, zap.NewNop())
	orders := order.NewOrderService(repo, cache.NewMemoryOrderCache(), carts, cat, nil, zap.NewNop())

	gateways := gateway.NewSet(
		gateway.NewCardAdapter(gateway.CardConfig{BaseURL: cardURL, APIKey: "sk_test"}),
		gateway.NewWalletAdapter(gateway.WalletConfig{
			Kind: domain.GatewayWalletA, Endpoint: "https://wallet-a.test/pay",
			MerchantID: "m-a", Secret: walletSecret,
		}),
		gateway.NewWalletAdapter(gateway.WalletConfig{
			Kind: domain.GatewayWalletB, Endpoint: "https://wallet-b.test/pay",
			MerchantID: "m-b", Secret: walletSecret,
		}),
		gateway.NewBankTransferAdapter(gateway.BankTransferConfig{
			BankName: "First Test", AccountName: "Fulfill Co", AccountNumber: "000111",
		}),
		gateway.NewCODAdapter(),
	)

	payments := repository.NewMemoryPaymentRepository()
	return &fixture{
		svc:      NewPaymentService(payments, orders, gateways, zap.NewNop()),
		orders:   orders,
		payments: payments,
		repo:     repo,
		card:     card,
	}
}

func (f *fixture) placedOrder(t *testing.T) *domain.Order {
	t.Helper()
	ord, err := f.orders.CreateOrder(context.Background(), order.CreateOrderInput{
		Items: []domain.OrderItem{{
			ProductID: 1, ProductName: "Mug", Quantity: 10, UnitPrice: decimal.NewFromInt(10),
		}},
		WebsiteID:       "site-1",
		ShippingAddress: domain.Address{Line1: "1 Main St", City: "Springfield", Country: "US"},
	})
	require.NoError(t, err)
	return ord
}

func TestCreatePaymentIntentCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)

	payment, result, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "pat@example.com", nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "pi_test_1", payment.GatewayTransactionID)
	assert.Equal(t, "cs_test_1", result.ClientSecret)
	assert.Equal(t, domain.PaymentPending, payment.Status)
	assert.True(t, payment.Amount.Equal(ord.Total))
}

func TestCreatePaymentIntentStoresPendingRowOnGatewayFailure(t *testing.T) {
	card := &cardServer{}
	// Nothing listens here; the remote call fails but the attempt is recorded.
	f := newFixtureWithCardURL(t, card, "http://127.0.0.1:1")
	ctx := context.Background()
	ord := f.placedOrder(t)

	payment, result, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, domain.PaymentPending, payment.Status)
	assert.True(t, strings.HasPrefix(payment.GatewayTransactionID, "local-"))

	stored, err := f.payments.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.Status)
}

func TestRetryCreatesNewPaymentRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)

	first, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayWalletA, "", nil)
	require.NoError(t, err)
	second, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayWalletA, "", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.GatewayTransactionID, second.GatewayTransactionID)

	attempts, err := f.svc.ListByOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestCreatePaymentIntentRejectsUnknownGateway(t *testing.T) {
	f := newFixture(t)
	ord := f.placedOrder(t)
	_, _, err := f.svc.CreatePaymentIntent(context.Background(), ord.ID, domain.GatewayKind("CRYPTO"), "", nil)
	assert.ErrorIs(t, err, gateway.ErrUnsupportedGateway)
}

func TestCreatePaymentIntentRejectsSettledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	_, err := f.orders.UpdatePaymentStatus(ctx, ord.ID, domain.PaymentStatusCompleted)
	require.NoError(t, err)

	_, _, err = f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	assert.ErrorIs(t, err, ErrPaymentConflict)
}

func TestConfirmCardPaymentCompletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	require.NoError(t, err)

	f.card.setIntentStatus("succeeded")
	confirmed, err := f.svc.ConfirmPayment(ctx, payment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, confirmed.Status)

	got, err := f.repo.GetByID(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, domain.ShippingStatusProcessing, got.ShippingStatus)
}

func TestConfirmCardPaymentStillProcessingStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	require.NoError(t, err)

	f.card.setIntentStatus("requires_payment_method")
	_, err = f.svc.ConfirmPayment(ctx, payment.ID, nil)
	require.Error(t, err)

	stored, err := f.payments.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.Status)
}

func TestConfirmTerminalPaymentIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	require.NoError(t, err)

	f.card.setIntentStatus("succeeded")
	_, err = f.svc.ConfirmPayment(ctx, payment.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, payment.ID, nil)
	assert.ErrorIs(t, err, ErrPaymentConflict)
}

func TestWalletConfirmVerifiesSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayWalletA, "", nil)
	require.NoError(t, err)

	payload := signature.WalletCallbackPayload(
		payment.GatewayTransactionID, payment.OrderID.String(),
		payment.Amount.StringFixed(2), "success")
	sig := signature.Sign(payload, walletSecret)

	confirmed, err := f.svc.ConfirmPayment(ctx, payment.ID, gateway.ConfirmData{
		"status": "success", "signature": sig,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, confirmed.Status)
}

func TestWalletConfirmBadSignatureChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayWalletA, "", nil)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, payment.ID, gateway.ConfirmData{
		"status": "success", "signature": "deadbeef",
	})
	assert.ErrorIs(t, err, gateway.ErrSignatureMismatch)

	stored, err := f.payments.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.Status)
	got, err := f.repo.GetByID(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
}

func TestCODDeclineCancelsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCOD, "", nil)
	require.NoError(t, err)

	declined, err := f.svc.ConfirmPayment(ctx, payment.ID, gateway.ConfirmData{"confirmed": "false"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, declined.Status)

	got, err := f.repo.GetByID(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, got.PaymentStatus)
	assert.Equal(t, domain.ShippingStatusCancelled, got.ShippingStatus)
}

func TestCODConfirmWithoutDecisionStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCOD, "", nil)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, payment.ID, gateway.ConfirmData{})
	assert.ErrorIs(t, err, gateway.ErrManualConfirmRequired)

	stored, err := f.payments.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.Status)
}

func TestFullRefundDefaultsToFullAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	require.NoError(t, err)
	f.card.setIntentStatus("succeeded")
	_, err = f.svc.ConfirmPayment(ctx, payment.ID, nil)
	require.NoError(t, err)

	result, err := f.svc.ProcessRefund(ctx, payment.ID, decimal.Zero, "requested_by_customer")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Amount.Equal(payment.Amount))

	stored, err := f.payments.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, stored.Status)

	got, err := f.repo.GetByID(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, got.PaymentStatus)

	// A second refund on the same payment is a conflict.
	_, err = f.svc.ProcessRefund(ctx, payment.ID, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrPaymentConflict)
}

func TestPartialRefundKeepsPaymentCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	require.NoError(t, err)
	f.card.setIntentStatus("succeeded")
	_, err = f.svc.ConfirmPayment(ctx, payment.ID, nil)
	require.NoError(t, err)

	result, err := f.svc.ProcessRefund(ctx, payment.ID, decimal.NewFromInt(10), "")
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, err := f.payments.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, stored.Status)
}

func TestPartialRefundRejectedOnFullOnlyRail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayWalletA, "", nil)
	require.NoError(t, err)

	payload := signature.WalletCallbackPayload(
		payment.GatewayTransactionID, payment.OrderID.String(),
		payment.Amount.StringFixed(2), "success")
	_, err = f.svc.ConfirmPayment(ctx, payment.ID, gateway.ConfirmData{
		"status": "success", "signature": signature.Sign(payload, walletSecret),
	})
	require.NoError(t, err)

	_, err = f.svc.ProcessRefund(ctx, payment.ID, decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, gateway.ErrPartialRefundUnsupported)
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	require.NoError(t, err)

	_, err = f.svc.ProcessRefund(ctx, payment.ID, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrPaymentConflict)
}

func TestRefundAmountAboveCaptureRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCard, "", nil)
	require.NoError(t, err)
	f.card.setIntentStatus("succeeded")
	_, err = f.svc.ConfirmPayment(ctx, payment.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.ProcessRefund(ctx, payment.ID, payment.Amount.Add(decimal.NewFromInt(1)), "")
	assert.ErrorIs(t, err, ErrInvalidRefundAmount)
}

func TestCODRefundFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.placedOrder(t)
	payment, _, err := f.svc.CreatePaymentIntent(ctx, ord.ID, domain.GatewayCOD, "", nil)
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, payment.ID, gateway.ConfirmData{"confirmed": "true"})
	require.NoError(t, err)

	_, err = f.svc.ProcessRefund(ctx, payment.ID, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrRefundFailed)
}
