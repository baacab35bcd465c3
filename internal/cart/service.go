package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
)

var (
	ErrItemNotFound      = errors.New("cart item not found")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Store interface {
	Lines(ctx context.Context, userID uuid.UUID) ([]Line, error)
	GetItem(ctx context.Context, userID, itemID uuid.UUID) (*Line, error)
	AddItem(ctx context.Context, userID, variantID uuid.UUID, qty int) error
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type VariantReader interface {
	GetVariant(ctx context.Context, id uuid.UUID) (*catalog.Variant, error)
}

type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
	AddItem(ctx context.Context, userID, variantID uuid.UUID, qty int) (*Cart, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	store    Store
	variants VariantReader
	now      func() time.Time
}

func NewService(store Store, variants VariantReader) Service {
	return &service{
		store:    store,
		variants: variants,
		now:      time.Now,
	}
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	lines, err := s.store.Lines(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to load cart")
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}

	return Summarize(lines, s.now()), nil
}

func (s *service) AddItem(ctx context.Context, userID, variantID uuid.UUID, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	variant, err := s.variants.GetVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, catalog.ErrVariantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to load variant: %w", err)
	}

	lines, err := s.store.Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}

	inCart := 0
	for _, l := range lines {
		if l.Variant.ID == variantID {
			inCart = l.Quantity
			break
		}
	}

	if inCart+qty > variant.Stock {
		log.Warn().Stringer("user_id", userID).Stringer("variant_id", variantID).
			Int("requested", inCart+qty).Int("stock", variant.Stock).Msg("service: cart quantity exceeds stock")
		return nil, fmt.Errorf("%w: only %d items available in stock", ErrInsufficientStock, variant.Stock)
	}

	if err := s.store.AddItem(ctx, userID, variantID, qty); err != nil {
		if errors.Is(err, catalog.ErrVariantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to add cart item: %w", err)
	}

	return s.GetCart(ctx, userID)
}

// UpdateItem sets the quantity of a cart line. A quantity of zero removes it.
func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*Cart, error) {
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	if qty == 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}

	line, err := s.store.GetItem(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to load cart item: %w", err)
	}

	if qty > line.Quantity && qty > line.Variant.Stock {
		return nil, fmt.Errorf("%w: only %d items available in stock", ErrInsufficientStock, line.Variant.Stock)
	}

	if err := s.store.UpdateQuantity(ctx, userID, itemID, qty); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to update cart item: %w", err)
	}

	return s.GetCart(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*Cart, error) {
	if err := s.store.RemoveItem(ctx, userID, itemID); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to remove cart item: %w", err)
	}

	return s.GetCart(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("service: failed to clear cart: %w", err)
	}
	return nil
}

// Summarize prices lines at now and totals them.
func Summarize(lines []Line, now time.Time) *Cart {
	c := &Cart{Items: make([]Item, 0, len(lines))}
	for _, l := range lines {
		unit := catalog.FinalPrice(l.Variant, now)
		item := Item{
			ID:          l.ID,
			VariantID:   l.Variant.ID,
			ProductName: l.Variant.ProductName,
			SKU:         l.Variant.SKU,
			Color:       l.Variant.Color,
			Size:        l.Variant.Size,
			Quantity:    l.Quantity,
			Stock:       l.Variant.Stock,
			UnitPrice:   unit,
			Subtotal:    unit * int64(l.Quantity),
		}
		c.Items = append(c.Items, item)
		c.TotalItems += l.Quantity
		c.TotalAmount += item.Subtotal
	}
	return c
}
