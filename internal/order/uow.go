package order

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/fashion-store/internal/address"
	"github.com/vasiliy-maslov/fashion-store/internal/cart"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
	"github.com/vasiliy-maslov/fashion-store/internal/db"
)

// NewStores binds every store to q.
func NewStores(q db.Querier) Stores {
	repo := NewRepository(q)
	return Stores{
		Carts:     cart.NewRepository(q),
		Inventory: catalog.NewRepository(q),
		Addresses: address.NewRepository(q),
		Orders:    repo,
		Payments:  repo,
	}
}

type postgresUnitOfWork struct {
	tx *db.Transactor
}

func NewUnitOfWork(tx *db.Transactor) UnitOfWork {
	return &postgresUnitOfWork{tx: tx}
}

func (u *postgresUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	return u.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewStores(tx))
	})
}
