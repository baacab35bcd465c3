package order

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/fashion-store/internal/address"
	"github.com/vasiliy-maslov/fashion-store/internal/cart"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
)

type CartStore interface {
	Lines(ctx context.Context, userID uuid.UUID) ([]cart.Line, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type InventoryStore interface {
	// DecreaseStock reports false when fewer than qty units are left.
	DecreaseStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	IncreaseStock(ctx context.Context, variantID uuid.UUID, qty int) error
	LogInventory(ctx context.Context, entry *catalog.InventoryLog) error
}

type AddressStore interface {
	GetForUser(ctx context.Context, addressID, userID uuid.UUID) (*address.Address, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetByIDForUpdate locks the order row until the surrounding
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	GetPaymentByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
}

// Stores groups the stores a unit of work hands to its callback. All of them
// share the same transaction.
type Stores struct {
	Carts     CartStore
	Inventory InventoryStore
	Addresses AddressStore
	Orders    OrderStore
	Payments  PaymentStore
}

// UnitOfWork runs fn atomically: every write made through the given Stores
// commits when fn returns nil and is discarded otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

type Reports interface {
	List(ctx context.Context, filter ListFilter) ([]Summary, int, error)
	Statistics(ctx context.Context) (*Statistics, error)
}

type Gateway interface {
	Charge(ctx context.Context, req payment.Request) (payment.Result, error)
}
