package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/meta-conversions-relay/internal/model"
)

// OrderRepositoryImpl implements OrderRepository using PostgreSQL.
type OrderRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewOrderRepositoryImpl creates a new OrderRepository implementation.
func NewOrderRepositoryImpl(pool *pgxpool.Pool) OrderRepository {
	return &OrderRepositoryImpl{pool: pool}
}

// GetByID retrieves an order with its line items and tracking metadata.
func (r *OrderRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	const query = `
		SELECT id, status, billing_email, billing_phone, billing_first_name,
		       billing_last_name, billing_city, billing_state, billing_postcode,
		       billing_country, total, currency, payment_method, checkout_url,
		       fbp, fbc, fbclid, client_ip, client_user_agent,
		       completed_at, created_at, sent_at
		FROM orders
		WHERE id = $1`

	order := &model.Order{}

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&order.ID, &order.Status, &order.BillingEmail, &order.BillingPhone,
		&order.BillingFirstName, &order.BillingLastName, &order.BillingCity,
		&order.BillingState, &order.BillingPostcode, &order.BillingCountry,
		&order.Total, &order.Currency, &order.PaymentMethod, &order.CheckoutURL,
		&order.Tracking.FBP, &order.Tracking.FBC, &order.Tracking.FBCLID,
		&order.Tracking.ClientIP, &order.Tracking.ClientUserAgent,
		&order.CompletedAt, &order.CreatedAt, &order.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}

		return nil, fmt.Errorf("query order %d: %w", id, err)
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}

	order.Items = items

	return order, nil
}

func (r *OrderRepositoryImpl) listItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	const query = `
		SELECT product_id, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []model.OrderItem

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

// ListUnsentCompleted returns ids of completed orders without a sent marker,
// newest first, bounded by limit.
func (r *OrderRepositoryImpl) ListUnsentCompleted(ctx context.Context, limit int) ([]int64, error) {
	const query = `
		SELECT id
		FROM orders
		WHERE status = $1 AND sent_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, model.OrderStatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("query unsent completed orders: %w", err)
	}
	defer rows.Close()

	var ids []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// IsSent reports whether the order already carries the sent marker.
func (r *OrderRepositoryImpl) IsSent(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT sent_at IS NOT NULL FROM orders WHERE id = $1`

	var sent bool

	err := r.pool.QueryRow(ctx, query, id).Scan(&sent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, model.ErrOrderNotFound
		}

		return false, fmt.Errorf("query sent marker %d: %w", id, err)
	}

	return sent, nil
}

// MarkSent sets the sent marker. Idempotent: the first write wins, repeated
// calls are no-ops.
func (r *OrderRepositoryImpl) MarkSent(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE orders SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`

	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark order %d sent: %w", id, err)
	}

	return nil
}

// SetTracking attaches browser tracking metadata to an order. Empty fields
// leave the stored value untouched.
func (r *OrderRepositoryImpl) SetTracking(ctx context.Context, id int64, tracking *model.Tracking) error {
	const query = `
		UPDATE orders SET
			fbp = COALESCE(NULLIF($2, ''), fbp),
			fbc = COALESCE(NULLIF($3, ''), fbc),
			fbclid = COALESCE(NULLIF($4, ''), fbclid),
			client_ip = COALESCE(NULLIF($5, ''), client_ip),
			client_user_agent = COALESCE(NULLIF($6, ''), client_user_agent)
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id,
		tracking.FBP, tracking.FBC, tracking.FBCLID,
		tracking.ClientIP, tracking.ClientUserAgent,
	)
	if err != nil {
		return fmt.Errorf("set tracking on order %d: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}
