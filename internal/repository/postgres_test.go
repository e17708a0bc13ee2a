package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/inventory"
)

func setupTestDB(t *testing.T) (*PostgresRepository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../../migrations",
	}

	repo, err := NewPostgresRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func newTestOrder() *domain.Order {
	return &domain.Order{
		ID:          uuid.New(),
		OrderNumber: fmt.Sprintf("ORD-TEST-%s", uuid.NewString()[:8]),
		UserID:      "user-123",
		WebsiteID:   "shop-main",
		Items: []domain.OrderItem{
			{ProductID: 1, ProductName: "Laptop", Quantity: 1, UnitPrice: decimal.NewFromInt(40), TrackInventory: true},
			{ProductID: 2, ProductName: "Warranty", Quantity: 1, UnitPrice: decimal.NewFromInt(4)},
		},
		ShippingAddress: domain.Address{
			FullName:   "Test Buyer",
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		Subtotal:       decimal.NewFromInt(44),
		Tax:            decimal.NewFromFloat(4.40),
		Shipping:       decimal.NewFromInt(5),
		Discount:       decimal.Zero,
		Total:          decimal.NewFromFloat(53.40),
		Currency:       "USD",
		PaymentStatus:  domain.PaymentStatusPending,
		ShippingStatus: domain.ShippingStatusPending,
	}
}

func TestCreateOrder_RoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder()
	billing := domain.Address{FullName: "Bill Payer", Line1: "2 Side St", City: "Springfield", PostalCode: "12345", Country: "US"}
	order.BillingAddress = &billing

	require.NoError(t, repo.SetStock(ctx, 1, 10))
	require.NoError(t, repo.CreateOrder(ctx, order))

	fetched, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)
	assert.Equal(t, order.OrderNumber, fetched.OrderNumber)
	assert.Equal(t, order.UserID, fetched.UserID)
	assert.Equal(t, order.ShippingAddress, fetched.ShippingAddress)
	require.NotNil(t, fetched.BillingAddress)
	assert.Equal(t, billing, *fetched.BillingAddress)
	assert.True(t, order.Total.Equal(fetched.Total), "total %s != %s", order.Total, fetched.Total)
	assert.Equal(t, domain.PaymentStatusPending, fetched.PaymentStatus)
	require.Len(t, fetched.Items, 2)
	assert.Equal(t, int64(1), fetched.Items[0].ProductID)
	assert.True(t, fetched.Items[0].TrackInventory)
	assert.False(t, fetched.Items[1].TrackInventory)
}

func TestCreateOrder_DecrementsTrackedStock(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.SetStock(ctx, 1, 10))

	order := newTestOrder()
	order.Items[0].Quantity = 3
	require.NoError(t, repo.CreateOrder(ctx, order))

	count, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	// Product 2 is untracked and never had a stock row.
	_, err = repo.Get(ctx, 2)
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestCreateOrder_StockFloorsAtZero(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.SetStock(ctx, 1, 2))

	order := newTestOrder()
	order.Items[0].Quantity = 5
	require.NoError(t, repo.CreateOrder(ctx, order))

	count, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCreateOrder_DuplicateOrderNumberRollsBack(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.SetStock(ctx, 1, 10))

	first := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, first))

	second := newTestOrder()
	second.OrderNumber = first.OrderNumber
	err := repo.CreateOrder(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateOrderNumber)

	// The failed insert must not leave a stock decrement behind.
	count, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 9, count)

	_, err = repo.GetByID(ctx, second.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestGetByOrderNumber(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, order))

	fetched, err := repo.GetByOrderNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)

	_, err = repo.GetByOrderNumber(ctx, "ORD-NOPE")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatusAndTracking(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, order))

	err := repo.UpdateStatus(ctx, order.ID, domain.PaymentStatusCompleted, domain.ShippingStatusProcessing)
	require.NoError(t, err)
	err = repo.UpdateTracking(ctx, order.ID, "TRK-9000")
	require.NoError(t, err)

	fetched, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, fetched.PaymentStatus)
	assert.Equal(t, domain.ShippingStatusProcessing, fetched.ShippingStatus)
	assert.Equal(t, "TRK-9000", fetched.TrackingNumber)

	err = repo.UpdateStatus(ctx, uuid.New(), domain.PaymentStatusCompleted, domain.ShippingStatusProcessing)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func newTestPayment(orderID uuid.UUID) *domain.Payment {
	return &domain.Payment{
		ID:                   uuid.New(),
		OrderID:              orderID,
		Gateway:              domain.GatewayCard,
		GatewayTransactionID: fmt.Sprintf("pi_%s", uuid.NewString()[:8]),
		Amount:               decimal.NewFromFloat(53.40),
		Currency:             "USD",
		Status:               domain.PaymentPending,
	}
}

func TestCreatePayment_DuplicateTransaction(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, order))

	payment := newTestPayment(order.ID)
	require.NoError(t, repo.CreatePayment(ctx, payment))

	dup := newTestPayment(order.ID)
	dup.GatewayTransactionID = payment.GatewayTransactionID
	err := repo.CreatePayment(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	fetched, err := repo.GetByGatewayTransactionID(ctx, domain.GatewayCard, payment.GatewayTransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, fetched.ID)
}

func TestTransitionStatus_CompareAndSet(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, order))

	payment := newTestPayment(order.ID)
	require.NoError(t, repo.CreatePayment(ctx, payment))

	err := repo.TransitionStatus(ctx, payment.ID, domain.PaymentPending, domain.PaymentCompleted, []byte(`{"status":"succeeded"}`))
	require.NoError(t, err)

	fetched, err := repo.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, fetched.Status)
	assert.JSONEq(t, `{"status":"succeeded"}`, string(fetched.RawPayload))

	// The row is no longer PENDING, so a second identical transition loses.
	err = repo.TransitionStatus(ctx, payment.ID, domain.PaymentPending, domain.PaymentCompleted, nil)
	assert.ErrorIs(t, err, ErrStaleStatus)

	err = repo.TransitionStatus(ctx, uuid.New(), domain.PaymentPending, domain.PaymentCompleted, nil)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestListByOrder(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, order))

	first := newTestPayment(order.ID)
	require.NoError(t, repo.CreatePayment(ctx, first))

	// Small sleep to ensure different created_at timestamps
	time.Sleep(10 * time.Millisecond)

	second := newTestPayment(order.ID)
	second.Gateway = domain.GatewayWalletA
	require.NoError(t, repo.CreatePayment(ctx, second))

	payments, err := repo.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, first.ID, payments[0].ID)
	assert.Equal(t, second.ID, payments[1].ID)
}

func TestOutboxLifecycle(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	event := &OutboxEvent{
		AggregateID: uuid.NewString(),
		EventType:   "order.created",
		Payload:     []byte(`{"order_number":"ORD-1"}`),
	}
	require.NoError(t, repo.AppendOutboxEvent(ctx, event))
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AggregateID, events[0].AggregateID)
	assert.Equal(t, "order.created", events[0].EventType)

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))

	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStockLedger(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.SetStock(ctx, 7, 5))

	count, err := repo.Decrement(ctx, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, repo.Increment(ctx, 7, 4))
	count, err = repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	_, err = repo.Decrement(ctx, 999, 1)
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
	err = repo.Increment(ctx, 999, 1)
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestStats(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	completed := newTestOrder()
	completed.PaymentStatus = domain.PaymentStatusCompleted
	completed.ShippingStatus = domain.ShippingStatusProcessing
	require.NoError(t, repo.CreateOrder(ctx, completed))

	pending := newTestOrder()
	require.NoError(t, repo.CreateOrder(ctx, pending))

	other := newTestOrder()
	other.WebsiteID = "shop-other"
	require.NoError(t, repo.CreateOrder(ctx, other))

	stats, err := repo.Stats(ctx, "shop-main")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.PendingPayment)
	assert.True(t, stats.Revenue.Equal(completed.Total))
	assert.Equal(t, 1, stats.ByShipping[string(domain.ShippingStatusProcessing)])

	all, err := repo.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.TotalOrders)
}
