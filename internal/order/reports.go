package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ReportRepository serves the paginated order listings and admin statistics.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where = append(where, fmt.Sprintf("o.user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM orders o `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT o.id, o.user_id, o.status, o.total_amount, o.shipping_fee, o.payment_method,
		       o.shipping_city, o.created_at, COALESCE(SUM(oi.quantity), 0) AS total_items
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		%s
		GROUP BY o.id
		ORDER BY o.created_at DESC, o.id
		LIMIT $%d OFFSET $%d
	`, clause, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.offset())

	orders := make([]Summary, 0)
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to list orders: %w", err)
	}

	return orders, total, nil
}

// Statistics counts orders per status. Revenue and average order value only
// include orders that were not cancelled.
func (r *ReportRepository) Statistics(ctx context.Context) (*Statistics, error) {
	query := `
		SELECT
			COUNT(*) AS total_orders,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending_orders,
			COUNT(*) FILTER (WHERE status = 'paid') AS paid_orders,
			COUNT(*) FILTER (WHERE status = 'shipping') AS shipping_orders,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed_orders,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled_orders,
			COALESCE(SUM(total_amount) FILTER (WHERE status <> 'cancelled'), 0)::BIGINT AS total_revenue,
			COALESCE(ROUND(AVG(total_amount) FILTER (WHERE status <> 'cancelled')), 0)::BIGINT AS average_order_value
		FROM orders
	`

	var stats Statistics
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("repository: failed to compute order statistics: %w", err)
	}

	return &stats, nil
}
