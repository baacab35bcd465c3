//go:build integration

package order_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/vasiliy-maslov/fashion-store/internal/cart"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
	"github.com/vasiliy-maslov/fashion-store/internal/config"
	"github.com/vasiliy-maslov/fashion-store/internal/db"
	"github.com/vasiliy-maslov/fashion-store/internal/events"
	"github.com/vasiliy-maslov/fashion-store/internal/order"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
)

var (
	testPG *db.Postgres
	seedDB *sqlx.DB
)

func TestMain(m *testing.M) {
	os.Exit(runWithPostgres(m))
}

func runWithPostgres(m *testing.M) int {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("fashion_store"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start postgres container")
		return 1
	}
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Error().Err(err).Msg("Failed to terminate postgres container")
		}
	}()

	host, err := ctr.Host(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get container host")
		return 1
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Error().Err(err).Msg("Failed to get container port")
		return 1
	}

	cfg := config.PostgresConfig{
		Host:     host,
		Port:     port.Port(),
		User:     "postgres",
		Password: "postgres",
		DBName:   "fashion_store",
		SSLMode:  "disable",
		MaxConns: 25,
		MinConns: 1,
	}

	testPG, err = db.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to test database")
		return 1
	}
	defer testPG.Close()

	if err := db.ApplyMigrations(testPG.Pool, migrationsDir(), cfg.SSLMode); err != nil {
		log.Error().Err(err).Msg("Failed to apply migrations")
		return 1
	}

	seedDB, err = sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		log.Error().Err(err).Msg("Failed to open seed connection")
		return 1
	}
	defer seedDB.Close()

	return m.Run()
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func setupPostgres(t *testing.T) order.Service {
	t.Helper()

	truncate := func() {
		_, err := testPG.Pool.Exec(context.Background(), `
			TRUNCATE payments, order_items, orders, cart_items, inventory_logs,
			         addresses, product_variants, products CASCADE`)
		require.NoError(t, err, "Failed to truncate tables")
	}
	truncate()
	t.Cleanup(truncate)

	return order.NewService(order.Deps{
		UnitOfWork: order.NewUnitOfWork(db.NewTransactor(testPG.Pool)),
		Reader:     order.NewStores(testPG.Pool),
		Reports:    order.NewReportRepository(testPG.SQLX()),
		Gateway:    payment.NewProcessor(payment.StaticAuthorizer{Approve: true}),
		Events:     events.NopPublisher{},
	})
}

func seedVariant(t *testing.T, price int64, stock int) uuid.UUID {
	t.Helper()
	productID := uuid.Must(uuid.NewV4())
	variantID := uuid.Must(uuid.NewV4())

	seedDB.MustExec(`INSERT INTO products (id, name) VALUES ($1, $2)`, productID, "Linen Shirt")
	seedDB.MustExec(`
		INSERT INTO product_variants (id, product_id, sku, color, size, price, stock)
		VALUES ($1, $2, $3, 'white', 'M', $4, $5)`,
		variantID, productID, "LS-"+variantID.String()[:8], price, stock)
	return variantID
}

func seedAddress(t *testing.T, userID uuid.UUID, city string) uuid.UUID {
	t.Helper()
	id := uuid.Must(uuid.NewV4())
	seedDB.MustExec(`
		INSERT INTO addresses (id, user_id, fullname, phone, street, district, city)
		VALUES ($1, $2, 'Nguyen Van A', '0900000000', '1 Trang Tien', 'Hoan Kiem', $3)`,
		id, userID, city)
	return id
}

func seedCart(t *testing.T, userID, variantID uuid.UUID, qty int) {
	t.Helper()
	seedDB.MustExec(`INSERT INTO cart_items (id, user_id, variant_id, quantity) VALUES ($1, $2, $3, $4)`,
		uuid.Must(uuid.NewV4()), userID, variantID, qty)
}

func stockOf(t *testing.T, variantID uuid.UUID) int {
	t.Helper()
	var stock int
	require.NoError(t, seedDB.Get(&stock, `SELECT stock FROM product_variants WHERE id = $1`, variantID))
	return stock
}

func TestPostgres_OrderLifecycle(t *testing.T) {
	svc := setupPostgres(t)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	variantID := seedVariant(t, 100000, 5)
	addressID := seedAddress(t, userID, "Hanoi")
	seedCart(t, userID, variantID, 2)

	placed, err := svc.CreateOrder(ctx, order.CreateOrderInput{UserID: userID, AddressID: addressID, PaymentMethod: payment.MethodCOD})
	require.NoError(t, err)
	assert.Equal(t, int64(230000), placed.Order.TotalAmount)
	assert.Equal(t, 3, stockOf(t, variantID))

	var cartRows int
	require.NoError(t, seedDB.Get(&cartRows, `SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, userID))
	assert.Zero(t, cartRows)

	var paymentStatus string
	require.NoError(t, seedDB.Get(&paymentStatus, `SELECT status FROM payments WHERE order_id = $1`, placed.Order.ID))
	assert.Equal(t, "pending", paymentStatus)

	seedDB.MustExec(`UPDATE product_variants SET price = 150000 WHERE id = $1`, variantID)
	stored, err := svc.GetOrder(ctx, userID, placed.Order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, int64(100000), stored.Items[0].Price)
	assert.Equal(t, "Hanoi", stored.ShippingAddress.City)

	_, err = svc.CancelOrder(ctx, userID, placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, variantID))

	var logs []struct {
		ChangeType string `db:"change_type"`
		Quantity   int    `db:"quantity"`
	}
	require.NoError(t, seedDB.Select(&logs, `SELECT change_type, quantity FROM inventory_logs WHERE variant_id = $1 ORDER BY created_at`, variantID))
	require.Len(t, logs, 2)
	assert.Equal(t, "export", logs[0].ChangeType)
	assert.Equal(t, "import", logs[1].ChangeType)

	_, err = svc.CancelOrder(ctx, userID, placed.Order.ID)
	require.ErrorIs(t, err, order.ErrInvalidTransition)
	assert.Equal(t, 5, stockOf(t, variantID))
}

func TestPostgres_NoOversell(t *testing.T) {
	svc := setupPostgres(t)
	ctx := context.Background()
	variantID := seedVariant(t, 100000, 5)

	const buyers = 20
	type buyer struct{ user, address uuid.UUID }
	all := make([]buyer, buyers)
	for i := range all {
		userID := uuid.Must(uuid.NewV4())
		all[i] = buyer{user: userID, address: seedAddress(t, userID, "Da Nang")}
		seedCart(t, userID, variantID, 1)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, b := range all {
		wg.Add(1)
		go func(b buyer) {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, order.CreateOrderInput{UserID: b.user, AddressID: b.address, PaymentMethod: payment.MethodCOD})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, order.ErrInsufficientStock)
		}(b)
	}
	wg.Wait()

	assert.Equal(t, 5, successes)
	assert.Equal(t, 0, stockOf(t, variantID))

	var orders int
	require.NoError(t, seedDB.Get(&orders, `SELECT COUNT(*) FROM orders`))
	assert.Equal(t, 5, orders)
}

func TestPostgres_ConcurrentCancelRestoresOnce(t *testing.T) {
	svc := setupPostgres(t)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	variantID := seedVariant(t, 100000, 4)
	addressID := seedAddress(t, userID, "Hanoi")
	seedCart(t, userID, variantID, 4)

	placed, err := svc.CreateOrder(ctx, order.CreateOrderInput{UserID: userID, AddressID: addressID, PaymentMethod: payment.MethodCOD})
	require.NoError(t, err)
	require.Equal(t, 0, stockOf(t, variantID))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CancelOrder(ctx, userID, placed.Order.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 4, stockOf(t, variantID))
}

func TestPostgres_RollbackOnStockViolation(t *testing.T) {
	svc := setupPostgres(t)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	plenty := seedVariant(t, 50000, 10)
	scarce := seedVariant(t, 70000, 3)
	addressID := seedAddress(t, userID, "Hanoi")
	seedCart(t, userID, plenty, 2)
	seedCart(t, userID, scarce, 3)

	// Another checkout takes the scarce variant after this cart was filled.
	seedDB.MustExec(`UPDATE product_variants SET stock = 1 WHERE id = $1`, scarce)

	_, err := svc.CreateOrder(ctx, order.CreateOrderInput{UserID: userID, AddressID: addressID, PaymentMethod: payment.MethodCOD})
	require.ErrorIs(t, err, order.ErrInsufficientStock)

	assert.Equal(t, 10, stockOf(t, plenty))
	assert.Equal(t, 1, stockOf(t, scarce))

	var orders, logs int
	require.NoError(t, seedDB.Get(&orders, `SELECT COUNT(*) FROM orders`))
	require.NoError(t, seedDB.Get(&logs, `SELECT COUNT(*) FROM inventory_logs`))
	assert.Zero(t, orders)
	assert.Zero(t, logs)
}

func TestPostgres_Reports(t *testing.T) {
	svc := setupPostgres(t)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	variantID := seedVariant(t, 100000, 50)
	addressID := seedAddress(t, userID, "Hanoi")

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		seedCart(t, userID, variantID, i+1)
		placed, err := svc.CreateOrder(ctx, order.CreateOrderInput{UserID: userID, AddressID: addressID, PaymentMethod: payment.MethodCOD})
		require.NoError(t, err)
		ids = append(ids, placed.Order.ID)
		time.Sleep(5 * time.Millisecond)
	}
	_, err := svc.CancelOrder(ctx, userID, ids[0])
	require.NoError(t, err)
	_, err = svc.UpdateOrderStatus(ctx, ids[1], order.StatusPaid)
	require.NoError(t, err)

	page, err := svc.ListOrders(ctx, userID, order.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, order.Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, page.Pagination)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, ids[2], page.Orders[0].ID, "newest first")
	assert.Equal(t, 3, page.Orders[0].TotalItems)
	assert.Equal(t, "Hanoi", page.Orders[0].ShippingCity)

	paid := order.StatusPaid
	page, err = svc.ListAllOrders(ctx, order.ListFilter{Status: &paid})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, ids[1], page.Orders[0].ID)

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalOrders)
	assert.Equal(t, int64(1), stats.PendingOrders)
	assert.Equal(t, int64(1), stats.PaidOrders)
	assert.Equal(t, int64(1), stats.CancelledOrders)
	// 2 x 100000 + 30000 and 3 x 100000 + 30000; the cancelled order is excluded.
	assert.Equal(t, int64(560000), stats.TotalRevenue)
	assert.Equal(t, int64(280000), stats.AverageOrderValue)
}

func TestPostgres_CartRepositoryMergesQuantities(t *testing.T) {
	setupPostgres(t)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	variantID := seedVariant(t, 100000, 10)

	carts := cart.NewService(cart.NewRepository(testPG.Pool), catalog.NewRepository(testPG.Pool))

	_, err := carts.AddItem(ctx, userID, variantID, 2)
	require.NoError(t, err)
	c, err := carts.AddItem(ctx, userID, variantID, 3)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, int64(500000), c.TotalAmount)

	_, err = carts.AddItem(ctx, userID, uuid.Must(uuid.NewV4()), 1)
	require.ErrorIs(t, err, catalog.ErrVariantNotFound)
}
