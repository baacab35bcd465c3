package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/db"
)

// Repository persists orders, their items and payment records. It runs on
// whatever Querier it is given, pool or transaction.
type Repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

const orderColumns = `
	id, user_id, address_id, status, total_amount, shipping_fee, payment_method,
	shipping_fullname, shipping_phone, shipping_street, shipping_district, shipping_city,
	created_at, updated_at`

func (r *Repository) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}

	queryOrder := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, queryOrder,
		o.ID,
		o.UserID,
		o.AddressID,
		string(o.Status),
		o.TotalAmount,
		o.ShippingFee,
		string(o.PaymentMethod),
		o.ShippingAddress.FullName,
		o.ShippingAddress.Phone,
		o.ShippingAddress.Street,
		o.ShippingAddress.District,
		o.ShippingAddress.City,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, variant_id, quantity, price, product_name, sku, color, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i := range o.Items {
		item := &o.Items[i]

		itemID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", err)
		}
		item.ID = itemID
		item.OrderID = o.ID

		_, err = r.db.Exec(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.VariantID,
			item.Quantity,
			item.Price,
			item.ProductName,
			item.SKU,
			item.Color,
			item.Size,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getByID(ctx, id, false)
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getByID(ctx, id, true)
}

func (r *Repository) getByID(ctx context.Context, orderID uuid.UUID, forUpdate bool) (*Order, error) {
	queryOrder := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		queryOrder += ` FOR UPDATE`
	}

	var o Order
	err := r.db.QueryRow(ctx, queryOrder, orderID).Scan(
		&o.ID,
		&o.UserID,
		&o.AddressID,
		&o.Status,
		&o.TotalAmount,
		&o.ShippingFee,
		&o.PaymentMethod,
		&o.ShippingAddress.FullName,
		&o.ShippingAddress.Phone,
		&o.ShippingAddress.Street,
		&o.ShippingAddress.District,
		&o.ShippingAddress.City,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	queryItems := `
		SELECT id, order_id, variant_id, quantity, price, product_name, sku, color, size
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_name, id
	`

	rows, err := r.db.Query(ctx, queryItems, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %s: %w", orderID, err)
	}
	defer rows.Close()

	o.Items = make([]Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.VariantID,
			&item.Quantity,
			&item.Price,
			&item.ProductName,
			&item.SKU,
			&item.Color,
			&item.Size,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %s: %w", orderID, err)
		}
		o.Items = append(o.Items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %s: %w", orderID, err)
	}

	return &o, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, string(newStatus), time.Now().UTC(), orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: order not found for status update")
		return ErrOrderNotFound
	}

	return nil
}

func (r *Repository) CreatePayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate payment ID: %w", err)
		}
		p.ID = id
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO payments (id, order_id, amount, method, transaction_id, status, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.OrderID,
		p.Amount,
		string(p.Method),
		p.TransactionID,
		string(p.Status),
		p.PaidAt,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert payment for order %s: %w", p.OrderID, err)
	}

	return nil
}

func (r *Repository) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	return r.getPayment(ctx, orderID, false)
}

func (r *Repository) GetPaymentByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	return r.getPayment(ctx, orderID, true)
}

func (r *Repository) getPayment(ctx context.Context, orderID uuid.UUID, forUpdate bool) (*Payment, error) {
	query := `
		SELECT id, order_id, amount, method, transaction_id, status, paid_at, created_at
		FROM payments
		WHERE order_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p Payment
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.Method,
		&p.TransactionID,
		&p.Status,
		&p.PaidAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment for order %s: %w", orderID, err)
	}

	return &p, nil
}

func (r *Repository) UpdatePayment(ctx context.Context, p *Payment) error {
	query := `
		UPDATE payments
		SET status = $1, transaction_id = $2, paid_at = $3
		WHERE id = $4
	`

	cmdTag, err := r.db.Exec(ctx, query, string(p.Status), p.TransactionID, p.PaidAt, p.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to update payment %s: %w", p.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}

	return nil
}
