package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/fashion-store/internal/address"
	"github.com/vasiliy-maslov/fashion-store/internal/cart"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
)

// preview prices the user's cart for delivery to addressID. It only reads
// from st, so it runs both on its own and inside order creation.
func (s *service) preview(ctx context.Context, st Stores, userID, addressID uuid.UUID, now time.Time) (*CheckoutPreview, error) {
	lines, err := st.Carts.Lines(ctx, userID)
	if err != nil {
		return nil, dependency("load cart", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	for _, l := range lines {
		if l.Quantity > l.Variant.Stock {
			return nil, outOfStock(l)
		}
	}

	addr, err := st.Addresses.GetForUser(ctx, addressID, userID)
	if err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, dependency("load address", err)
	}

	p := &CheckoutPreview{
		Items:   make([]PreviewItem, 0, len(lines)),
		Address: *addr,
	}
	for _, l := range lines {
		price := catalog.FinalPrice(l.Variant, now)
		item := PreviewItem{
			CartItemID:  l.ID,
			VariantID:   l.Variant.ID,
			ProductName: l.Variant.ProductName,
			SKU:         l.Variant.SKU,
			Color:       l.Variant.Color,
			Size:        l.Variant.Size,
			Quantity:    l.Quantity,
			Price:       price,
			Subtotal:    price * int64(l.Quantity),
		}
		p.Items = append(p.Items, item)
		p.Subtotal += item.Subtotal
	}

	p.ShippingFee = s.rates.Fee(addr.City)
	p.Total = p.Subtotal + p.ShippingFee

	return p, nil
}

func outOfStock(l cart.Line) error {
	return fmt.Errorf("%w: %s (%s/%s) only has %d items in stock",
		ErrInsufficientStock, l.Variant.ProductName, l.Variant.Color, l.Variant.Size, l.Variant.Stock)
}
