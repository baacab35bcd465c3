package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
	"github.com/vasiliy-maslov/fashion-store/internal/events"
	"github.com/vasiliy-maslov/fashion-store/internal/idempotency"
	"github.com/vasiliy-maslov/fashion-store/internal/metrics"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
	"github.com/vasiliy-maslov/fashion-store/internal/shipping"
)

type Service interface {
	PreviewCheckout(ctx context.Context, userID, addressID uuid.UUID) (*CheckoutPreview, error)
	CreateOrder(ctx context.Context, in CreateOrderInput) (*PlacedOrder, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) (*Order, error)
	ConfirmPayment(ctx context.Context, in PaymentConfirmation) (*Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, filter ListFilter) (*Page, error)
	ListAllOrders(ctx context.Context, filter ListFilter) (*Page, error)
	Statistics(ctx context.Context) (*Statistics, error)
}

// Deps wires a Service. Reader serves non-transactional reads and is usually
// built on the connection pool; UnitOfWork serves every write.
type Deps struct {
	UnitOfWork UnitOfWork
	Reader     Stores
	Reports    Reports
	Gateway    Gateway
	Rates      shipping.Rates
	Events     events.Publisher
	Keys       idempotency.Store
	KeyTTL     time.Duration
	Metrics    *metrics.OrderMetrics
	Now        func() time.Time
}

type service struct {
	uow     UnitOfWork
	reader  Stores
	reports Reports
	gateway Gateway
	rates   shipping.Rates
	events  events.Publisher
	keys    idempotency.Store
	keyTTL  time.Duration
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

func NewService(d Deps) Service {
	s := &service{
		uow:     d.UnitOfWork,
		reader:  d.Reader,
		reports: d.Reports,
		gateway: d.Gateway,
		rates:   d.Rates,
		events:  d.Events,
		keys:    d.Keys,
		keyTTL:  d.KeyTTL,
		metrics: d.Metrics,
		now:     d.Now,
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.keyTTL <= 0 {
		s.keyTTL = 24 * time.Hour
	}
	if s.rates.Cities == nil {
		s.rates = shipping.DefaultRates()
	}
	return s
}

func (s *service) PreviewCheckout(ctx context.Context, userID, addressID uuid.UUID) (*CheckoutPreview, error) {
	p, err := s.preview(ctx, s.reader, userID, addressID, s.now())
	if err != nil {
		logFailure(err, "service: checkout preview rejected", userID, uuid.Nil)
		return nil, err
	}
	return p, nil
}

func (s *service) CreateOrder(ctx context.Context, in CreateOrderInput) (*PlacedOrder, error) {
	if !in.PaymentMethod.Valid() {
		log.Warn().Stringer("user_id", in.UserID).Str("payment_method", string(in.PaymentMethod)).Msg("service: invalid payment method")
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, in.PaymentMethod)
	}

	if in.IdempotencyKey == "" || s.keys == nil {
		return s.placeOrder(ctx, in)
	}
	return s.placeOrderOnce(ctx, in)
}

type idempotentResult struct {
	OrderID uuid.UUID      `json:"order_id"`
	Payment payment.Result `json:"payment"`
}

// placeOrderOnce deduplicates order creation by the caller's key: a retry
// after success returns the original order instead of placing another.
func (s *service) placeOrderOnce(ctx context.Context, in CreateOrderInput) (*PlacedOrder, error) {
	key := "order:" + in.UserID.String() + ":" + in.IdempotencyKey

	prior, err := s.keys.Reserve(ctx, key, s.keyTTL)
	if err != nil {
		if errors.Is(err, idempotency.ErrInProgress) {
			log.Warn().Stringer("user_id", in.UserID).Str("idempotency_key", in.IdempotencyKey).Msg("service: duplicate order request in flight")
			return nil, ErrRequestInProgress
		}
		return nil, dependency("reserve idempotency key", err)
	}

	if prior != "" {
		var rec idempotentResult
		if err := json.Unmarshal([]byte(prior), &rec); err != nil {
			return nil, dependency("decode idempotency record", err)
		}
		o, err := s.GetOrder(ctx, in.UserID, rec.OrderID)
		if err != nil {
			return nil, err
		}
		log.Info().Stringer("order_id", o.ID).Str("idempotency_key", in.IdempotencyKey).Msg("service: replaying order for repeated request")
		return &PlacedOrder{Order: o, Payment: rec.Payment, Replayed: true}, nil
	}

	// The key bookkeeping must finish even if the caller goes away.
	bg := context.WithoutCancel(ctx)

	placed, err := s.placeOrder(ctx, in)
	if err != nil {
		if relErr := s.keys.Release(bg, key); relErr != nil {
			log.Error().Err(relErr).Str("idempotency_key", in.IdempotencyKey).Msg("service: failed to release idempotency key")
		}
		return nil, err
	}

	rec, err := json.Marshal(idempotentResult{OrderID: placed.Order.ID, Payment: placed.Payment})
	if err == nil {
		err = s.keys.Complete(bg, key, string(rec), s.keyTTL)
	}
	if err != nil {
		log.Error().Err(err).Stringer("order_id", placed.Order.ID).Msg("service: failed to record idempotency key")
	}

	return placed, nil
}

func (s *service) placeOrder(ctx context.Context, in CreateOrderInput) (*PlacedOrder, error) {
	now := s.now().UTC()
	var placed *PlacedOrder

	err := s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		preview, err := s.preview(ctx, st, in.UserID, in.AddressID, now)
		if err != nil {
			return err
		}

		orderID, err := uuid.NewV4()
		if err != nil {
			return dependency("generate order id", err)
		}

		o := &Order{
			ID:              orderID,
			UserID:          in.UserID,
			AddressID:       in.AddressID,
			Status:          StatusPending,
			TotalAmount:     preview.Total,
			ShippingFee:     preview.ShippingFee,
			PaymentMethod:   in.PaymentMethod,
			ShippingAddress: snapshotAddress(preview),
			Items:           make([]Item, 0, len(preview.Items)),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, pi := range preview.Items {
			o.Items = append(o.Items, Item{
				VariantID:   pi.VariantID,
				ProductName: pi.ProductName,
				SKU:         pi.SKU,
				Color:       pi.Color,
				Size:        pi.Size,
				Quantity:    pi.Quantity,
				Price:       pi.Price,
			})
		}

		if err := st.Orders.Create(ctx, o); err != nil {
			return dependency("insert order", err)
		}

		for _, item := range o.Items {
			ok, err := st.Inventory.DecreaseStock(ctx, item.VariantID, item.Quantity)
			if err != nil {
				return dependency("decrease stock", err)
			}
			if !ok {
				s.metrics.StockConflict()
				return fmt.Errorf("%w: %s (%s/%s) does not have %d items left in stock",
					ErrInsufficientStock, item.ProductName, item.Color, item.Size, item.Quantity)
			}

			entry := &catalog.InventoryLog{
				VariantID:  item.VariantID,
				ChangeType: catalog.ChangeExport,
				Quantity:   item.Quantity,
				Note:       fmt.Sprintf("Order #%s - %s", o.ID, item.ProductName),
				CreatedAt:  now,
			}
			if err := st.Inventory.LogInventory(ctx, entry); err != nil {
				return dependency("log inventory", err)
			}
		}

		result, err := s.gateway.Charge(ctx, payment.Request{
			OrderID: o.ID,
			Amount:  o.TotalAmount,
			Method:  in.PaymentMethod,
			Card:    in.Card,
		})
		if err != nil {
			if errors.Is(err, payment.ErrUnsupportedMethod) {
				return fmt.Errorf("%w: %v", ErrInvalidPaymentMethod, err)
			}
			return dependency("payment gateway", err)
		}

		rec := &Payment{
			OrderID:   o.ID,
			Amount:    o.TotalAmount,
			Method:    in.PaymentMethod,
			Status:    result.Status,
			CreatedAt: now,
		}
		if result.TransactionID != "" {
			txn := result.TransactionID
			rec.TransactionID = &txn
		}
		if result.Status == payment.StatusSuccess {
			rec.PaidAt = &now
		}
		if err := st.Payments.CreatePayment(ctx, rec); err != nil {
			return dependency("insert payment", err)
		}

		if result.Status == payment.StatusSuccess {
			if err := st.Orders.UpdateStatus(ctx, o.ID, StatusPaid); err != nil {
				return dependency("mark order paid", err)
			}
			o.Status = StatusPaid
		}

		if err := st.Carts.Clear(ctx, in.UserID); err != nil {
			return dependency("clear cart", err)
		}

		placed = &PlacedOrder{Order: o, Payment: result}
		return nil
	})
	if err != nil {
		err = txError("create order", err)
		logFailure(err, "service: order creation failed", in.UserID, uuid.Nil)
		return nil, err
	}

	o := placed.Order
	s.metrics.OrderPlaced(string(o.PaymentMethod), string(placed.Payment.Status))
	s.publish(ctx, events.OrderEvent{
		Type:          events.OrderCreated,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount,
		PaymentMethod: string(o.PaymentMethod),
		OccurredAt:    now,
	})

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("user_id", o.UserID).
		Int64("total_amount", o.TotalAmount).
		Stringer("payment_status", placed.Payment.Status).
		Msg("service: order created successfully")

	return placed, nil
}

func (s *service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	now := s.now().UTC()
	var (
		cancelled *Order
		previous  Status
	)

	err := s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		o, err := st.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return err
			}
			return dependency("load order", err)
		}
		if o.UserID != userID {
			return ErrForbidden
		}
		if !Cancellable(o.Status) {
			return fmt.Errorf("%w: order cannot be cancelled in status %s", ErrInvalidTransition, o.Status)
		}

		if err := st.Orders.UpdateStatus(ctx, o.ID, StatusCancelled); err != nil {
			return dependency("update order status", err)
		}

		for _, item := range o.Items {
			if err := st.Inventory.IncreaseStock(ctx, item.VariantID, item.Quantity); err != nil {
				return dependency("restore stock", err)
			}
			entry := &catalog.InventoryLog{
				VariantID:  item.VariantID,
				ChangeType: catalog.ChangeImport,
				Quantity:   item.Quantity,
				Note:       fmt.Sprintf("Order #%s cancelled - Stock restored", o.ID),
				CreatedAt:  now,
			}
			if err := st.Inventory.LogInventory(ctx, entry); err != nil {
				return dependency("log inventory", err)
			}
		}

		previous = o.Status
		o.Status = StatusCancelled
		o.UpdatedAt = now
		cancelled = o
		return nil
	})
	if err != nil {
		err = txError("cancel order", err)
		logFailure(err, "service: order cancellation failed", userID, orderID)
		return nil, err
	}

	s.metrics.OrderCancelled()
	s.publish(ctx, events.OrderEvent{
		Type:           events.OrderCancelled,
		OrderID:        cancelled.ID,
		UserID:         cancelled.UserID,
		Status:         string(StatusCancelled),
		PreviousStatus: string(previous),
		TotalAmount:    cancelled.TotalAmount,
		OccurredAt:     now,
	})

	log.Info().Stringer("order_id", orderID).Stringer("old_status", previous).Msg("service: order cancelled, stock restored")
	return cancelled, nil
}

// UpdateOrderStatus is the administrative status write. It never touches
// inventory; customer cancellation goes through CancelOrder.
func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) (*Order, error) {
	if !newStatus.Valid() {
		return nil, invalidStatus(string(newStatus))
	}

	now := s.now().UTC()
	var (
		updated  *Order
		previous Status
	)

	err := s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		o, err := st.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return err
			}
			return dependency("load order", err)
		}

		if !CanTransition(o.Status, newStatus) {
			return invalidTransition(o.Status, newStatus)
		}

		if err := st.Orders.UpdateStatus(ctx, o.ID, newStatus); err != nil {
			return dependency("update order status", err)
		}

		previous = o.Status
		o.Status = newStatus
		o.UpdatedAt = now
		updated = o
		return nil
	})
	if err != nil {
		err = txError("update order status", err)
		logFailure(err, "service: order status update failed", uuid.Nil, orderID)
		return nil, err
	}

	s.metrics.StatusChanged(string(newStatus))
	s.publish(ctx, events.OrderEvent{
		Type:           events.OrderStatusChanged,
		OrderID:        updated.ID,
		UserID:         updated.UserID,
		Status:         string(newStatus),
		PreviousStatus: string(previous),
		TotalAmount:    updated.TotalAmount,
		OccurredAt:     now,
	})

	log.Info().Stringer("order_id", orderID).Stringer("old_status", previous).Stringer("new_status", newStatus).Msg("service: order status updated successfully")
	return updated, nil
}

// ConfirmPayment settles a pending wallet payment once the provider reports
// the outcome. A successful payment moves a pending order to paid.
func (s *service) ConfirmPayment(ctx context.Context, in PaymentConfirmation) (*Order, error) {
	now := s.now().UTC()
	var (
		confirmed *Order
		moved     bool
	)

	err := s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		o, err := st.Orders.GetByIDForUpdate(ctx, in.OrderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return err
			}
			return dependency("load order", err)
		}
		// Stock of a cancelled order is already restored; it cannot take money.
		if in.Succeeded && o.Status == StatusCancelled {
			return fmt.Errorf("%w: order %s is cancelled and cannot be paid", ErrInvalidTransition, in.OrderID)
		}

		p, err := st.Payments.GetPaymentByOrderForUpdate(ctx, in.OrderID)
		if err != nil {
			if errors.Is(err, ErrPaymentNotFound) {
				return err
			}
			return dependency("load payment", err)
		}
		if p.Status != payment.StatusPending {
			return fmt.Errorf("%w: payment for order %s is already %s", ErrPaymentNotPending, in.OrderID, p.Status)
		}
		if in.Method != "" && p.Method != in.Method {
			return fmt.Errorf("%w: order %s was not paid with %s", ErrForbidden, in.OrderID, in.Method)
		}
		if p.TransactionID != nil && in.TransactionID != "" && *p.TransactionID != in.TransactionID {
			return fmt.Errorf("%w: transaction id does not match order %s", ErrForbidden, in.OrderID)
		}

		if in.Succeeded {
			p.Status = payment.StatusSuccess
			p.PaidAt = &now
		} else {
			p.Status = payment.StatusFailed
		}
		if err := st.Payments.UpdatePayment(ctx, p); err != nil {
			return dependency("update payment", err)
		}

		if in.Succeeded && CanTransition(o.Status, StatusPaid) {
			if err := st.Orders.UpdateStatus(ctx, o.ID, StatusPaid); err != nil {
				return dependency("mark order paid", err)
			}
			o.Status = StatusPaid
			o.UpdatedAt = now
			moved = true
		}

		confirmed = o
		return nil
	})
	if err != nil {
		err = txError("confirm payment", err)
		logFailure(err, "service: payment confirmation failed", uuid.Nil, in.OrderID)
		return nil, err
	}

	if moved {
		s.metrics.StatusChanged(string(StatusPaid))
	}
	s.publish(ctx, events.OrderEvent{
		Type:          events.OrderPaymentConfirmed,
		OrderID:       confirmed.ID,
		UserID:        confirmed.UserID,
		Status:        string(confirmed.Status),
		TotalAmount:   confirmed.TotalAmount,
		PaymentMethod: string(confirmed.PaymentMethod),
		OccurredAt:    now,
	})

	log.Info().Stringer("order_id", in.OrderID).Bool("succeeded", in.Succeeded).Msg("service: payment confirmed")
	return confirmed, nil
}

func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	o, err := s.reader.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order by id in repository")
		return nil, dependency("load order", err)
	}

	if o.UserID != userID {
		log.Warn().Stringer("order_id", orderID).Stringer("user_id", userID).Msg("service: order belongs to another user")
		return nil, ErrForbidden
	}

	return o, nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, filter ListFilter) (*Page, error) {
	filter = filter.normalize(DefaultLimit)
	filter.UserID = &userID
	return s.list(ctx, filter)
}

func (s *service) ListAllOrders(ctx context.Context, filter ListFilter) (*Page, error) {
	return s.list(ctx, filter.normalize(DefaultAdminLimit))
}

func (s *service) list(ctx context.Context, filter ListFilter) (*Page, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, invalidStatus(string(*filter.Status))
	}

	orders, total, err := s.reports.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, dependency("list orders", err)
	}

	return &Page{
		Orders: orders,
		Pagination: Pagination{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(filter.Limit))),
		},
	}, nil
}

func (s *service) Statistics(ctx context.Context) (*Statistics, error) {
	stats, err := s.reports.Statistics(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to compute order statistics")
		return nil, dependency("order statistics", err)
	}
	return stats, nil
}

// publish emits e after the owning transaction committed. Delivery failures
// are logged and never undo the order change.
func (s *service) publish(ctx context.Context, e events.OrderEvent) {
	if err := s.events.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Error().Err(err).Stringer("order_id", e.OrderID).Str("event", string(e.Type)).Msg("service: failed to publish order event")
	}
}

func snapshotAddress(p *CheckoutPreview) ShippingAddress {
	return ShippingAddress{
		FullName: p.Address.FullName,
		Phone:    p.Address.Phone,
		Street:   p.Address.Street,
		District: p.Address.District,
		City:     p.Address.City,
	}
}

// txError keeps business errors as they are and marks anything else that
// escaped a unit of work (begin or commit failures) as a dependency failure.
func txError(op string, err error) error {
	if errors.Is(err, ErrDependency) || KindOf(err) != KindDependency {
		return err
	}
	return dependency(op, err)
}

func logFailure(err error, msg string, userID, orderID uuid.UUID) {
	ev := log.Warn()
	if KindOf(err) == KindDependency {
		ev = log.Error()
	}
	if userID != uuid.Nil {
		ev = ev.Stringer("user_id", userID)
	}
	if orderID != uuid.Nil {
		ev = ev.Stringer("order_id", orderID)
	}
	ev.Err(err).Str("kind", string(KindOf(err))).Msg(msg)
}
