package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/fashion-store/internal/address"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipping  Status = "shipping"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

type Item struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	VariantID   uuid.UUID `json:"variant_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	Color       string    `json:"color"`
	Size        string    `json:"size"`
	Quantity    int       `json:"quantity"`
	Price       int64     `json:"price"` // unit price at checkout
}

// ShippingAddress is copied from the customer's address when the order is
// placed; later edits to the address do not change it.
type ShippingAddress struct {
	FullName string `json:"fullname"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	District string `json:"district"`
	City     string `json:"city"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	AddressID       uuid.UUID       `json:"address_id"`
	Status          Status          `json:"status"`
	TotalAmount     int64           `json:"total_amount"`
	ShippingFee     int64           `json:"shipping_fee"`
	PaymentMethod   payment.Method  `json:"payment_method"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Items           []Item          `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Payment struct {
	ID            uuid.UUID      `json:"id"`
	OrderID       uuid.UUID      `json:"order_id"`
	Amount        int64          `json:"amount"`
	Method        payment.Method `json:"method"`
	TransactionID *string        `json:"transaction_id,omitempty"`
	Status        payment.Status `json:"status"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type PreviewItem struct {
	CartItemID  uuid.UUID `json:"cart_item_id"`
	VariantID   uuid.UUID `json:"variant_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	Color       string    `json:"color"`
	Size        string    `json:"size"`
	Quantity    int       `json:"quantity"`
	Price       int64     `json:"price"`
	Subtotal    int64     `json:"subtotal"`
}

type CheckoutPreview struct {
	Items       []PreviewItem   `json:"items"`
	Subtotal    int64           `json:"subtotal"`
	ShippingFee int64           `json:"shipping_fee"`
	Total       int64           `json:"total"`
	Address     address.Address `json:"address"`
}

type CreateOrderInput struct {
	UserID         uuid.UUID
	AddressID      uuid.UUID
	PaymentMethod  payment.Method
	Card           *payment.CardData
	IdempotencyKey string
}

type PlacedOrder struct {
	Order    *Order         `json:"order"`
	Payment  payment.Result `json:"payment"`
	Replayed bool           `json:"replayed,omitempty"`
}

type PaymentConfirmation struct {
	OrderID       uuid.UUID
	Method        payment.Method
	TransactionID string
	Succeeded     bool
}

const (
	DefaultPage       = 1
	DefaultLimit      = 10
	DefaultAdminLimit = 20
	MaxLimit          = 100
)

type ListFilter struct {
	UserID *uuid.UUID
	Status *Status
	Page   int
	Limit  int
}

func (f ListFilter) normalize(defaultLimit int) ListFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

type Summary struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	UserID        uuid.UUID      `json:"user_id" db:"user_id"`
	Status        Status         `json:"status" db:"status"`
	TotalAmount   int64          `json:"total_amount" db:"total_amount"`
	ShippingFee   int64          `json:"shipping_fee" db:"shipping_fee"`
	PaymentMethod payment.Method `json:"payment_method" db:"payment_method"`
	ShippingCity  string         `json:"shipping_city" db:"shipping_city"`
	TotalItems    int            `json:"total_items" db:"total_items"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type Page struct {
	Orders     []Summary  `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

type Statistics struct {
	TotalOrders       int64 `json:"total_orders" db:"total_orders"`
	PendingOrders     int64 `json:"pending_orders" db:"pending_orders"`
	PaidOrders        int64 `json:"paid_orders" db:"paid_orders"`
	ShippingOrders    int64 `json:"shipping_orders" db:"shipping_orders"`
	CompletedOrders   int64 `json:"completed_orders" db:"completed_orders"`
	CancelledOrders   int64 `json:"cancelled_orders" db:"cancelled_orders"`
	TotalRevenue      int64 `json:"total_revenue" db:"total_revenue"`
	AverageOrderValue int64 `json:"average_order_value" db:"average_order_value"`
}
