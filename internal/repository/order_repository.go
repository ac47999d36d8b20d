package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-agent/internal/domain"
)

// CancelCheck inspects the row-locked order. A non-nil error aborts the cancellation.
type CancelCheck func(ctx context.Context, order *domain.Order) error

// OrderRepository reads orders and performs the guarded cancel transition.
type OrderRepository interface {
	// FindByRef resolves a primary id or tracking id, preferring the primary id.
	FindByRef(ctx context.Context, ref string) (*domain.Order, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Order, error)
	// Cancel locks the order, runs check and moves it to cancelled in one transaction.
	Cancel(ctx context.Context, ref string, check CancelCheck) (*domain.Order, error)
}

type orderRepository struct {
	db DB
}

// NewOrderRepository instantiates repository.
func NewOrderRepository(db DB) OrderRepository {
	return &orderRepository{db: db}
}

const (
	orderColumns  = `id, store_id, customer_email, status, total_amount, order_date, delivery_date, shipping_address, tracking_id`
	orderByRefSQL = `SELECT ` + orderColumns + ` FROM orders
        WHERE id=$1 OR tracking_id=$1
        ORDER BY (id=$1) DESC LIMIT 1`
)

func (r *orderRepository) FindByRef(ctx context.Context, ref string) (*domain.Order, error) {
	var order domain.Order
	if err := scanOrder(r.db.QueryRow(ctx, orderByRefSQL, ref), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders
        WHERE LOWER(customer_email)=$1
        ORDER BY order_date DESC, id ASC`
	rows, err := r.db.Query(ctx, query, strings.ToLower(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, rows.Err()
}

func (r *orderRepository) Cancel(ctx context.Context, ref string, check CancelCheck) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback(ctx, tx)

	var order domain.Order
	if err := scanOrder(tx.QueryRow(ctx, orderByRefSQL+` FOR UPDATE`, ref), &order); err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(ctx, &order); err != nil {
			return nil, err
		}
	}

	const update = `UPDATE orders SET status=$1 WHERE id=$2`
	cmd, err := tx.Exec(ctx, update, domain.OrderStatusCancelled, order.ID)
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", order.ID, err)
	}
	if cmd.RowsAffected() != 1 {
		return nil, fmt.Errorf("cancel order %s: %d rows affected", order.ID, cmd.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("cancel order %s: commit: %w", order.ID, err)
	}
	order.Status = domain.OrderStatusCancelled
	return &order, nil
}

func scanOrder(row pgx.Row, order *domain.Order) error {
	return row.Scan(
		&order.ID,
		&order.StoreID,
		&order.CustomerEmail,
		&order.Status,
		&order.TotalAmount,
		&order.OrderDate,
		&order.DeliveryDate,
		&order.ShippingAddress,
		&order.TrackingID,
	)
}
