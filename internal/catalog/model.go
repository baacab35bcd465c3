package catalog

import (
	"time"

	"github.com/gofrs/uuid"
)

// Variant is a purchasable product variant (color/size) with its own price
// and stock counter.
type Variant struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	ProductID   uuid.UUID  `json:"product_id" db:"product_id"`
	ProductName string     `json:"product_name" db:"product_name"`
	SKU         string     `json:"sku" db:"sku"`
	Color       string     `json:"color" db:"color"`
	Size        string     `json:"size" db:"size"`
	Price       int64      `json:"price" db:"price"`
	Stock       int        `json:"stock" db:"stock"`
	IsOnSale    bool       `json:"is_on_sale" db:"is_on_sale"`
	SalePrice   *int64     `json:"sale_price,omitempty" db:"sale_price"`
	SalePercent int        `json:"sale_percent" db:"sale_percent"`
	SaleStart   *time.Time `json:"sale_start,omitempty" db:"sale_start"`
	SaleEnd     *time.Time `json:"sale_end,omitempty" db:"sale_end"`
}

type ChangeType string

const (
	ChangeExport ChangeType = "export"
	ChangeImport ChangeType = "import"
)

func (c ChangeType) String() string {
	return string(c)
}

// InventoryLog is an append-only record of a stock movement.
type InventoryLog struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	VariantID  uuid.UUID  `json:"variant_id" db:"variant_id"`
	ChangeType ChangeType `json:"change_type" db:"change_type"`
	Quantity   int        `json:"quantity" db:"quantity"`
	Note       string     `json:"note" db:"note"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
