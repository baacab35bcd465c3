package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/db"
)

var ErrVariantNotFound = errors.New("product variant not found")

const variantColumns = `
	v.id, v.product_id, p.name, v.sku, v.color, v.size, v.price, v.stock,
	v.is_on_sale, v.sale_price, v.sale_percent, v.sale_start, v.sale_end`

type Repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

func (r *Repository) GetVariant(ctx context.Context, id uuid.UUID) (*Variant, error) {
	query := `SELECT ` + variantColumns + `
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`

	v, err := ScanVariant(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVariantNotFound
		}
		return nil, fmt.Errorf("repository: failed to select variant %s: %w", id, err)
	}

	return v, nil
}

// DecreaseStock subtracts qty from the variant's stock only if enough units
// remain. It reports false, without error, when the stock is insufficient or
// the variant does not exist.
func (r *Repository) DecreaseStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	query := `
		UPDATE product_variants
		SET stock = stock - $1, updated_at = $2
		WHERE id = $3 AND stock >= $1
	`

	cmdTag, err := r.db.Exec(ctx, query, qty, time.Now().UTC(), variantID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return false, nil
		}
		return false, fmt.Errorf("repository: failed to decrease stock for variant %s: %w", variantID, err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

func (r *Repository) IncreaseStock(ctx context.Context, variantID uuid.UUID, qty int) error {
	query := `
		UPDATE product_variants
		SET stock = stock + $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, qty, time.Now().UTC(), variantID)
	if err != nil {
		return fmt.Errorf("repository: failed to increase stock for variant %s: %w", variantID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("variant_id", variantID).Msg("repository: variant not found for stock increase")
		return ErrVariantNotFound
	}

	return nil
}

func (r *Repository) LogInventory(ctx context.Context, entry *InventoryLog) error {
	if entry.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate inventory log ID: %w", err)
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO inventory_logs (id, variant_id, change_type, quantity, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.VariantID,
		string(entry.ChangeType),
		entry.Quantity,
		entry.Note,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert inventory log for variant %s: %w", entry.VariantID, err)
	}

	return nil
}

// ScanVariant reads a row selected with the variant column list.
func ScanVariant(row pgx.Row) (*Variant, error) {
	var v Variant
	if err := row.Scan(v.ScanTargets()...); err != nil {
		return nil, err
	}
	return &v, nil
}

// ScanTargets returns pointers matching VariantColumns, so callers joining
// extra columns can append them to a single Scan call.
func (v *Variant) ScanTargets() []any {
	return []any{
		&v.ID,
		&v.ProductID,
		&v.ProductName,
		&v.SKU,
		&v.Color,
		&v.Size,
		&v.Price,
		&v.Stock,
		&v.IsOnSale,
		&v.SalePrice,
		&v.SalePercent,
		&v.SaleStart,
		&v.SaleEnd,
	}
}

// VariantColumns is the select list ScanVariant expects, for tables aliased
// v (product_variants) and p (products).
func VariantColumns() string {
	return variantColumns
}
