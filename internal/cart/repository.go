package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
	"github.com/vasiliy-maslov/fashion-store/internal/db"
)

type Repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

func (r *Repository) Lines(ctx context.Context, userID uuid.UUID) ([]Line, error) {
	query := `SELECT ci.id, ci.user_id, ci.quantity, ci.created_at, ` + catalog.VariantColumns() + `
		FROM cart_items ci
		JOIN product_variants v ON v.id = ci.variant_id
		JOIN products p ON p.id = v.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart for user %s: %w", userID, err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart line for user %s: %w", userID, err)
		}
		lines = append(lines, *line)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating cart for user %s: %w", userID, err)
	}

	return lines, nil
}

func (r *Repository) GetItem(ctx context.Context, userID, itemID uuid.UUID) (*Line, error) {
	query := `SELECT ci.id, ci.user_id, ci.quantity, ci.created_at, ` + catalog.VariantColumns() + `
		FROM cart_items ci
		JOIN product_variants v ON v.id = ci.variant_id
		JOIN products p ON p.id = v.product_id
		WHERE ci.id = $1 AND ci.user_id = $2
	`

	line, err := scanLine(r.db.QueryRow(ctx, query, itemID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart item %s: %w", itemID, err)
	}

	return line, nil
}

// AddItem inserts a line or, when the variant is already in the cart, adds
// qty to the existing line.
func (r *Repository) AddItem(ctx context.Context, userID, variantID uuid.UUID, qty int) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate cart item ID: %w", err)
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO cart_items (id, user_id, variant_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, variant_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.Exec(ctx, query, id, userID, variantID, qty, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return catalog.ErrVariantNotFound
		}
		return fmt.Errorf("repository: failed to add variant %s to cart of user %s: %w", variantID, userID, err)
	}

	return nil
}

func (r *Repository) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) error {
	query := `
		UPDATE cart_items
		SET quantity = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4
	`

	cmdTag, err := r.db.Exec(ctx, query, qty, time.Now().UTC(), itemID, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart item %s: %w", itemID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *Repository) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to remove cart item %s: %w", itemID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *Repository) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("repository: failed to clear cart of user %s: %w", userID, err)
	}
	return nil
}

func scanLine(row pgx.Row) (*Line, error) {
	var line Line
	targets := append([]any{&line.ID, &line.UserID, &line.Quantity, &line.CreatedAt}, line.Variant.ScanTargets()...)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return &line, nil
}
