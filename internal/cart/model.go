package cart

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
)

// Line is a cart entry joined with the current state of its variant.
type Line struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Variant   catalog.Variant `json:"variant"`
	Quantity  int             `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
}

type Item struct {
	ID          uuid.UUID `json:"id"`
	VariantID   uuid.UUID `json:"variant_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	Color       string    `json:"color"`
	Size        string    `json:"size"`
	Quantity    int       `json:"quantity"`
	Stock       int       `json:"stock"`
	UnitPrice   int64     `json:"unit_price"`
	Subtotal    int64     `json:"subtotal"`
}

type Cart struct {
	Items       []Item `json:"items"`
	TotalItems  int    `json:"total_items"`
	TotalAmount int64  `json:"total_amount"`
}
