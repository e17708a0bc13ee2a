package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/inventory"
)

// PostgresRepository implements OrderRepository, PaymentRepository and
// inventory.Ledger over one database so the create-order transaction can
// span order rows, item rows and the stock table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "fulfill_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// CreateOrder inserts the order, its items and decrements tracked stock in a
// single transaction. Stock floors at zero; products without a stock row are
// untracked and skipped.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order tx: %w", err)
	}
	defer tx.Rollback()

	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	var billingJSON []byte
	if order.BillingAddress != nil {
		if billingJSON, err = json.Marshal(order.BillingAddress); err != nil {
			return fmt.Errorf("marshal billing address: %w", err)
		}
	}

	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, website_id, shipping_address, billing_address,
		                    subtotal, tax, shipping, discount, total, currency,
		                    payment_status, shipping_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		order.ID, order.OrderNumber, order.UserID, order.WebsiteID, shippingJSON, billingJSON,
		order.Subtotal, order.Tax, order.Shipping, order.Discount, order.Total, order.Currency,
		order.PaymentStatus, order.ShippingStatus, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		variantJSON, e := domain.EncodeVariant(item.Variant)
		if e != nil {
			return fmt.Errorf("encode variant: %w", e)
		}
		_, e = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, variant, track_inventory)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, variantJSON, item.TrackInventory)
		if e != nil {
			return fmt.Errorf("insert order item: %w", e)
		}

		if item.TrackInventory {
			_, e = tx.ExecContext(ctx,
				`UPDATE stock SET count = GREATEST(count - $2, 0) WHERE product_id = $1`,
				item.ProductID, item.Quantity)
			if e != nil {
				return fmt.Errorf("decrement stock: %w", e)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create order tx: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getOrder(ctx, `WHERE order_number = $1`, orderNumber)
}

func (r *PostgresRepository) getOrder(ctx context.Context, where string, arg interface{}) (*domain.Order, error) {
	query := `SELECT id, order_number, user_id, website_id, shipping_address, billing_address,
	                 subtotal, tax, shipping, discount, total, currency,
	                 payment_status, shipping_status, COALESCE(tracking_number, ''), created_at, updated_at
	          FROM orders ` + where

	var order domain.Order
	var shippingJSON, billingJSON []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.WebsiteID, &shippingJSON, &billingJSON,
		&order.Subtotal, &order.Tax, &order.Shipping, &order.Discount, &order.Total, &order.Currency,
		&order.PaymentStatus, &order.ShippingStatus, &order.TrackingNumber, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if err := json.Unmarshal(shippingJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if len(billingJSON) > 0 {
		var billing domain.Address
		if err := json.Unmarshal(billingJSON, &billing); err != nil {
			return nil, fmt.Errorf("unmarshal billing address: %w", err)
		}
		order.BillingAddress = &billing
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price, variant, track_inventory
		FROM order_items WHERE order_id = $1 ORDER BY id`, order.ID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		var variantJSON []byte
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &variantJSON, &item.TrackInventory); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.Variant, err = domain.DecodeVariant(variantJSON); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return &order, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, payment domain.PaymentStatus, shipping domain.ShippingStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, shipping_status = $3, updated_at = NOW() WHERE id = $1`,
		id, payment, shipping)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return requireRow(result, ErrOrderNotFound)
}

func (r *PostgresRepository) UpdateTracking(ctx context.Context, id uuid.UUID, trackingNumber string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET tracking_number = $2, updated_at = NOW() WHERE id = $1`,
		id, trackingNumber)
	if err != nil {
		return fmt.Errorf("update tracking number: %w", err)
	}
	return requireRow(result, ErrOrderNotFound)
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context, websiteID string) (*OrderStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payment_status, shipping_status, total
		FROM orders WHERE ($1 = '' OR website_id = $1)`, websiteID)
	if err != nil {
		return nil, fmt.Errorf("query order stats: %w", err)
	}
	defer rows.Close()

	stats := &OrderStats{ByShipping: make(map[string]int)}
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.PaymentStatus, &order.ShippingStatus, &order.Total); err != nil {
			return nil, fmt.Errorf("scan order stats: %w", err)
		}
		stats.TotalOrders++
		switch order.PaymentStatus {
		case domain.PaymentStatusPending:
			stats.PendingPayment++
		case domain.PaymentStatusCompleted:
			stats.Completed++
			stats.Revenue = stats.Revenue.Add(order.Total)
		case domain.PaymentStatusCancelled:
			stats.Cancelled++
		}
		stats.ByShipping[string(order.ShippingStatus)]++
	}
	return stats, rows.Err()
}

func (r *PostgresRepository) AppendOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO order_outbox (aggregate_id, event_type, payload)
		VALUES ($1, $2, $3) RETURNING id, created_at`,
		event.AggregateID, event.EventType, event.Payload).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM order_outbox WHERE processed = FALSE ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) MarkEventAsProcessed(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE order_outbox SET processed = TRUE WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, gateway, gateway_transaction_id, amount, currency, status, raw_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		payment.ID, payment.OrderID, payment.Gateway, payment.GatewayTransactionID,
		payment.Amount, payment.Currency, payment.Status, payment.RawPayload,
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.getPayment(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByGatewayTransactionID(ctx context.Context, gateway domain.GatewayKind, txnID string) (*domain.Payment, error) {
	return r.getPayment(ctx, `WHERE gateway = $1 AND gateway_transaction_id = $2`, gateway, txnID)
}

func (r *PostgresRepository) getPayment(ctx context.Context, where string, args ...interface{}) (*domain.Payment, error) {
	query := `SELECT id, order_id, gateway, gateway_transaction_id, amount, currency, status, raw_payload, created_at, updated_at
	          FROM payments ` + where

	var payment domain.Payment
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&payment.ID, &payment.OrderID, &payment.Gateway, &payment.GatewayTransactionID,
		&payment.Amount, &payment.Currency, &payment.Status, &payment.RawPayload,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return &payment, nil
}

func (r *PostgresRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, gateway, gateway_transaction_id, amount, currency, status, raw_payload, created_at, updated_at
		FROM payments WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payments by order: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		var payment domain.Payment
		if err := rows.Scan(
			&payment.ID, &payment.OrderID, &payment.Gateway, &payment.GatewayTransactionID,
			&payment.Amount, &payment.Currency, &payment.Status, &payment.RawPayload,
			&payment.CreatedAt, &payment.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, &payment)
	}
	return payments, rows.Err()
}

// TransitionStatus moves the payment from the expected status to the new one.
// The WHERE clause is the compare-and-set; a lost race surfaces as
// ErrStaleStatus rather than a silent overwrite.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentState, rawPayload []byte) error {
	var result sql.Result
	var err error
	if rawPayload != nil {
		result, err = r.db.ExecContext(ctx,
			`UPDATE payments SET status = $3, raw_payload = $4, updated_at = NOW() WHERE id = $1 AND status = $2`,
			id, from, to, rawPayload)
	} else {
		result, err = r.db.ExecContext(ctx,
			`UPDATE payments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
			id, from, to)
	}
	if err != nil {
		return fmt.Errorf("transition payment status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.getPayment(ctx, `WHERE id = $1`, id); getErr != nil {
			return getErr
		}
		return ErrStaleStatus
	}
	return nil
}

// Ledger implementation backed by the stock table.

func (r *PostgresRepository) Get(ctx context.Context, productID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count FROM stock WHERE product_id = $1`, productID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) SetStock(ctx context.Context, productID int64, count int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stock (product_id, count) VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET count = EXCLUDED.count`,
		productID, count)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Decrement(ctx context.Context, productID int64, qty int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		UPDATE stock SET count = GREATEST(count - $2, 0)
		WHERE product_id = $1 RETURNING count`,
		productID, qty).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) Increment(ctx context.Context, productID int64, qty int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE stock SET count = count + $2 WHERE product_id = $1`, productID, qty)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return requireRow(result, inventory.ErrProductNotFound)
}
