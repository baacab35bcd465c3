package order_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/fashion-store/internal/address"
	"github.com/vasiliy-maslov/fashion-store/internal/cart"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
	"github.com/vasiliy-maslov/fashion-store/internal/events"
	"github.com/vasiliy-maslov/fashion-store/internal/order"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
)

var errInjected = errors.New("injected store failure")

type cartRow struct {
	ID        uuid.UUID
	VariantID uuid.UUID
	Quantity  int
	CreatedAt time.Time
}

type memState struct {
	variants  map[uuid.UUID]catalog.Variant
	carts     map[uuid.UUID][]cartRow
	addresses map[uuid.UUID]address.Address
	orders    map[uuid.UUID]order.Order
	payments  map[uuid.UUID]order.Payment
	logs      []catalog.InventoryLog
}

func newMemState() *memState {
	return &memState{
		variants:  make(map[uuid.UUID]catalog.Variant),
		carts:     make(map[uuid.UUID][]cartRow),
		addresses: make(map[uuid.UUID]address.Address),
		orders:    make(map[uuid.UUID]order.Order),
		payments:  make(map[uuid.UUID]order.Payment),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.variants {
		c.variants[k] = v
	}
	for k, rows := range s.carts {
		c.carts[k] = append([]cartRow(nil), rows...)
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, o := range s.orders {
		o.Items = append([]order.Item(nil), o.Items...)
		c.orders[k] = o
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.logs = append([]catalog.InventoryLog(nil), s.logs...)
	return c
}

// memDB is a transactional in-memory store. Units of work run one at a time
// on a copy of the state that replaces the committed state only on success.
type memDB struct {
	mu     sync.Mutex
	state  *memState
	failOn map[string]bool
}

func newMemDB() *memDB {
	return &memDB{state: newMemState(), failOn: make(map[string]bool)}
}

func (m *memDB) Do(ctx context.Context, fn func(ctx context.Context, s order.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, memStore{db: m, tx: work}.stores()); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memDB) reader() order.Stores {
	return memStore{db: m}.stores()
}

func (m *memDB) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memDB) addVariant(v catalog.Variant) catalog.Variant {
	if v.ID == uuid.Nil {
		v.ID = uuid.Must(uuid.NewV4())
	}
	if v.ProductID == uuid.Nil {
		v.ProductID = uuid.Must(uuid.NewV4())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.variants[v.ID] = v
	return v
}

func (m *memDB) updateVariant(id uuid.UUID, fn func(v *catalog.Variant)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.state.variants[id]
	fn(&v)
	m.state.variants[id] = v
}

func (m *memDB) addAddress(userID uuid.UUID, city string) address.Address {
	a := address.Address{
		ID:       uuid.Must(uuid.NewV4()),
		UserID:   userID,
		FullName: "Nguyen Van A",
		Phone:    "0900000000",
		Street:   "1 Trang Tien",
		District: "Hoan Kiem",
		City:     city,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.addresses[a.ID] = a
	return a
}

func (m *memDB) addToCart(userID, variantID uuid.UUID, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.carts[userID] = append(m.state.carts[userID], cartRow{
		ID:        uuid.Must(uuid.NewV4()),
		VariantID: variantID,
		Quantity:  qty,
		CreatedAt: time.Now(),
	})
}

func (m *memDB) putOrder(o order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.orders[o.ID] = o
}

func (m *memDB) stock(variantID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.variants[variantID].Stock
}

func (m *memDB) fail(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = true
}

// memStore implements every store port. Bound to tx it works on a unit of
// work's private copy; unbound it locks and reads the committed state.
type memStore struct {
	db *memDB
	tx *memState
}

func (s memStore) stores() order.Stores {
	return order.Stores{Carts: s, Inventory: s, Addresses: s, Orders: s, Payments: s}
}

func (s memStore) state() (*memState, func()) {
	if s.tx != nil {
		return s.tx, func() {}
	}
	s.db.mu.Lock()
	return s.db.state, s.db.mu.Unlock
}

func (s memStore) check(op string) error {
	if s.db.failOn[op] {
		return errInjected
	}
	return nil
}

func (s memStore) Lines(_ context.Context, userID uuid.UUID) ([]cart.Line, error) {
	st, done := s.state()
	defer done()
	if err := s.check("Lines"); err != nil {
		return nil, err
	}

	lines := make([]cart.Line, 0, len(st.carts[userID]))
	for _, row := range st.carts[userID] {
		lines = append(lines, cart.Line{
			ID:        row.ID,
			UserID:    userID,
			Variant:   st.variants[row.VariantID],
			Quantity:  row.Quantity,
			CreatedAt: row.CreatedAt,
		})
	}
	return lines, nil
}

func (s memStore) Clear(_ context.Context, userID uuid.UUID) error {
	st, done := s.state()
	defer done()
	if err := s.check("Clear"); err != nil {
		return err
	}
	delete(st.carts, userID)
	return nil
}

func (s memStore) DecreaseStock(_ context.Context, variantID uuid.UUID, qty int) (bool, error) {
	st, done := s.state()
	defer done()
	if err := s.check("DecreaseStock"); err != nil {
		return false, err
	}
	v, ok := st.variants[variantID]
	if !ok || v.Stock < qty {
		return false, nil
	}
	v.Stock -= qty
	st.variants[variantID] = v
	return true, nil
}

func (s memStore) IncreaseStock(_ context.Context, variantID uuid.UUID, qty int) error {
	st, done := s.state()
	defer done()
	if err := s.check("IncreaseStock"); err != nil {
		return err
	}
	v, ok := st.variants[variantID]
	if !ok {
		return catalog.ErrVariantNotFound
	}
	v.Stock += qty
	st.variants[variantID] = v
	return nil
}

func (s memStore) LogInventory(_ context.Context, entry *catalog.InventoryLog) error {
	st, done := s.state()
	defer done()
	if err := s.check("LogInventory"); err != nil {
		return err
	}
	entry.ID = uuid.Must(uuid.NewV4())
	st.logs = append(st.logs, *entry)
	return nil
}

func (s memStore) GetForUser(_ context.Context, addressID, userID uuid.UUID) (*address.Address, error) {
	st, done := s.state()
	defer done()
	a, ok := st.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, address.ErrNotFound
	}
	return &a, nil
}

func (s memStore) Create(_ context.Context, o *order.Order) error {
	st, done := s.state()
	defer done()
	if err := s.check("Create"); err != nil {
		return err
	}
	for i := range o.Items {
		o.Items[i].ID = uuid.Must(uuid.NewV4())
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = append([]order.Item(nil), o.Items...)
	st.orders[o.ID] = stored
	return nil
}

func (s memStore) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	st, done := s.state()
	defer done()
	o, ok := st.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o.Items = append([]order.Item(nil), o.Items...)
	return &o, nil
}

func (s memStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return s.GetByID(ctx, id)
}

func (s memStore) UpdateStatus(_ context.Context, id uuid.UUID, status order.Status) error {
	st, done := s.state()
	defer done()
	if err := s.check("UpdateStatus"); err != nil {
		return err
	}
	o, ok := st.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Status = status
	st.orders[id] = o
	return nil
}

func (s memStore) CreatePayment(_ context.Context, p *order.Payment) error {
	st, done := s.state()
	defer done()
	if err := s.check("CreatePayment"); err != nil {
		return err
	}
	p.ID = uuid.Must(uuid.NewV4())
	st.payments[p.OrderID] = *p
	return nil
}

func (s memStore) GetPaymentByOrder(_ context.Context, orderID uuid.UUID) (*order.Payment, error) {
	st, done := s.state()
	defer done()
	p, ok := st.payments[orderID]
	if !ok {
		return nil, order.ErrPaymentNotFound
	}
	return &p, nil
}

func (s memStore) GetPaymentByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*order.Payment, error) {
	return s.GetPaymentByOrder(ctx, orderID)
}

func (s memStore) UpdatePayment(_ context.Context, p *order.Payment) error {
	st, done := s.state()
	defer done()
	if _, ok := st.payments[p.OrderID]; !ok {
		return order.ErrPaymentNotFound
	}
	st.payments[p.OrderID] = *p
	return nil
}

// memReports implements order.Reports over the committed state.
type memReports struct {
	db *memDB
}

func (r memReports) List(_ context.Context, f order.ListFilter) ([]order.Summary, int, error) {
	st := r.db.snapshot()

	var all []order.Summary
	for _, o := range st.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		items := 0
		for _, it := range o.Items {
			items += it.Quantity
		}
		all = append(all, order.Summary{
			ID:            o.ID,
			UserID:        o.UserID,
			Status:        o.Status,
			TotalAmount:   o.TotalAmount,
			ShippingFee:   o.ShippingFee,
			PaymentMethod: o.PaymentMethod,
			ShippingCity:  o.ShippingAddress.City,
			TotalItems:    items,
			CreatedAt:     o.CreatedAt,
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r memReports) Statistics(context.Context) (*order.Statistics, error) {
	st := r.db.snapshot()
	var stats order.Statistics
	var counted int64
	for _, o := range st.orders {
		stats.TotalOrders++
		switch o.Status {
		case order.StatusPending:
			stats.PendingOrders++
		case order.StatusPaid:
			stats.PaidOrders++
		case order.StatusShipping:
			stats.ShippingOrders++
		case order.StatusCompleted:
			stats.CompletedOrders++
		case order.StatusCancelled:
			stats.CancelledOrders++
		}
		if o.Status != order.StatusCancelled {
			stats.TotalRevenue += o.TotalAmount
			counted++
		}
	}
	if counted > 0 {
		stats.AverageOrderValue = stats.TotalRevenue / counted
	}
	return &stats, nil
}

type gatewayFunc func(ctx context.Context, req payment.Request) (payment.Result, error)

func (f gatewayFunc) Charge(ctx context.Context, req payment.Request) (payment.Result, error) {
	return f(ctx, req)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
