package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/domain"
	"stockflow/internal/database"
	"stockflow/internal/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(ctx, db))
	return New(db)
}

func mustProduct(t *testing.T, s *Store, name, price string, stock int64) domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{
		Name:          name,
		PurchasePrice: decimal.RequireFromString(price).Div(decimal.NewFromInt(2)),
		SalePrice:     decimal.RequireFromString(price),
		StockQuantity: stock,
		MinimumStock:  2,
	})
	require.NoError(t, err)
	return p
}

func stockOf(t *testing.T, s *Store, id string) int64 {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestProductCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := mustProduct(t, s, "Arabica Coffee", "12.50", 10)
	require.NotEmpty(t, created.ID)

	got, err := s.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Arabica Coffee", got.Name)
	assert.True(t, got.SalePrice.Equal(decimal.RequireFromString("12.50")))
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)

	mustProduct(t, s, "Green Tea", "4", 3)
	found, err := s.ListProducts(ctx, "coffee")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)

	got.Name = "Robusta Coffee"
	got.SalePrice = decimal.RequireFromString("9.99")
	got.StockQuantity = 999
	updated, err := s.UpdateProduct(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Robusta Coffee", updated.Name)
	assert.Equal(t, int64(10), updated.StockQuantity, "update must not touch stock")

	require.NoError(t, s.DeleteProduct(ctx, created.ID))
	_, err = s.GetProduct(ctx, created.ID)
	assert.True(t, domain.IsProductNotFoundError(err))
	assert.True(t, domain.IsProductNotFoundError(s.DeleteProduct(ctx, created.ID)))
}

func TestCreateProductRejectsUnknownSupplier(t *testing.T) {
	s := newTestStore(t)
	missing := "nope"
	_, err := s.CreateProduct(context.Background(), domain.Product{Name: "Tea", SupplierID: &missing})
	assert.True(t, domain.IsValidationError(err))
}

func TestDecrementStockIsConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustProduct(t, s, "Tea", "4", 5)

	err := s.WithinTx(ctx, func(tx *Tx) error {
		return tx.DecrementStock(ctx, p.ID, 6)
	})
	var ise *domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(6), ise.Requested)
	assert.Equal(t, int64(5), ise.Available)
	assert.Equal(t, "Tea", ise.Name)
	assert.Equal(t, int64(5), stockOf(t, s, p.ID))

	require.NoError(t, s.WithinTx(ctx, func(tx *Tx) error {
		return tx.DecrementStock(ctx, p.ID, 5)
	}))
	assert.Equal(t, int64(0), stockOf(t, s, p.ID))

	err = s.WithinTx(ctx, func(tx *Tx) error {
		return tx.DecrementStock(ctx, "missing", 1)
	})
	assert.True(t, domain.IsProductNotFoundError(err))

	err = s.WithinTx(ctx, func(tx *Tx) error {
		return tx.DecrementStock(ctx, p.ID, 0)
	})
	assert.True(t, domain.IsValidationError(err))
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustProduct(t, s, "Tea", "4", 5)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx *Tx) error {
		require.NoError(t, tx.DecrementStock(ctx, p.ID, 3))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(5), stockOf(t, s, p.ID))
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustProduct(t, s, "Tea", "4", 5)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(tx *Tx) error {
			require.NoError(t, tx.DecrementStock(ctx, p.ID, 3))
			panic("interrupted")
		})
	})
	assert.Equal(t, int64(5), stockOf(t, s, p.ID))
}

func TestProductsByIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustProduct(t, s, "A", "1", 1)
	b := mustProduct(t, s, "B", "2", 2)

	require.NoError(t, s.WithinTx(ctx, func(tx *Tx) error {
		products, err := tx.ProductsByIDs(ctx, []string{b.ID, a.ID, b.ID, "missing"})
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Less(t, products[0].ID, products[1].ID)

		empty, err := tx.ProductsByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
		return nil
	}))
}

func TestAdjustStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustProduct(t, s, "Tea", "4", 5)

	got, err := s.AdjustStock(ctx, p.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.StockQuantity)

	_, err = s.AdjustStock(ctx, p.ID, -13)
	assert.True(t, domain.IsInsufficientStockError(err))
	assert.Equal(t, int64(12), stockOf(t, s, p.ID))

	_, err = s.AdjustStock(ctx, "missing", 1)
	assert.True(t, domain.IsProductNotFoundError(err))
}

func TestAdjustStockConcurrentNeverNegative(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustProduct(t, s, "Tea", "4", 5)

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AdjustStock(ctx, p.ID, -1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.True(t, domain.IsInsufficientStockError(err), err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, int64(0), stockOf(t, s, p.ID))
}

func insertSale(t *testing.T, s *Store, userID string, at time.Time, items domain.LineItems) domain.Sale {
	t.Helper()
	sale := domain.Sale{
		ID:            fmt.Sprintf("sale-%d", at.UnixNano()),
		UserID:        userID,
		Items:         items,
		TotalAmount:   items.Total(),
		Status:        domain.SaleStatusPaid,
		PaymentMethod: domain.PaymentCash,
		CreatedAt:     at.UTC(),
	}
	require.NoError(t, s.WithinTx(context.Background(), func(tx *Tx) error {
		return tx.InsertSale(context.Background(), sale)
	}))
	return sale
}

func line(productID string, qty int64, price string) domain.LineItem {
	p := decimal.RequireFromString(price)
	return domain.LineItem{ProductID: productID, Name: productID, Quantity: qty, UnitPrice: p, Subtotal: p.Mul(decimal.NewFromInt(qty))}
}

func TestSaleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	sale := insertSale(t, s, "u1", at, domain.LineItems{line("p1", 2, "10.00"), line("p2", 1, "0.10")})

	first, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	second, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, "u1", first.UserID)
	require.Len(t, first.Items, 2)
	assert.True(t, first.TotalAmount.Equal(decimal.RequireFromString("20.10")))
	assert.True(t, first.CreatedAt.Equal(at))
	require.NoError(t, first.Verify())

	_, err = s.GetSale(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListSalesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := insertSale(t, s, "u1", base, domain.LineItems{line("p", 1, "1")})
	newer := insertSale(t, s, "u2", base.Add(time.Hour), domain.LineItems{line("p", 1, "1")})

	all, err := s.ListSales(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)

	mine, err := s.ListSales(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, older.ID, mine[0].ID)
}

func TestSupplierLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sup, err := s.CreateSupplier(ctx, domain.Supplier{Name: " Acme ", Email: "Sales@Acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", sup.Name)
	assert.Equal(t, "sales@acme.test", sup.Email)

	_, err = s.CreateSupplier(ctx, domain.Supplier{Name: "Acme", Email: "other@acme.test"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	sup.Phone = "555-0100"
	updated, err := s.UpdateSupplier(ctx, sup)
	require.NoError(t, err)
	assert.Equal(t, "555-0100", updated.Phone)

	p, err := s.CreateProduct(ctx, domain.Product{Name: "Widget", SupplierID: &sup.ID, StockQuantity: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSupplier(ctx, sup.ID))
	orphan, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.SupplierID)

	assert.ErrorIs(t, s.DeleteSupplier(ctx, sup.ID), domain.ErrNotFound)
	_, err = s.UpdateSupplier(ctx, sup)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, domain.User{Name: "Ana", Email: "Ana@Shop.test", Password: "hash", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, u.Role)

	_, err = s.CreateUser(ctx, domain.User{Name: "Ana 2", Email: "ana@shop.test", Password: "hash"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	byEmail, err := s.UserByEmail(ctx, "ANA@shop.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.True(t, byEmail.IsActive)

	phone := "555-0199"
	updated, err := s.UpdateProfile(ctx, u.ID, ProfileUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "555-0199", updated.Phone)
	assert.Equal(t, "Ana", updated.Name)

	promoted, err := s.UpdateUserRole(ctx, u.ID, domain.RoleStocker)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStocker, promoted.Role)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.UserByID(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.UpdateUserRole(ctx, u.ID, domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sup, err := s.CreateSupplier(ctx, domain.Supplier{Name: "Acme", Email: "a@acme.test"})
	require.NoError(t, err)
	low, err := s.CreateProduct(ctx, domain.Product{
		Name: "Low", PurchasePrice: decimal.RequireFromString("1.50"), SalePrice: decimal.RequireFromString("4.00"),
		StockQuantity: 1, MinimumStock: 5, SupplierID: &sup.ID,
	})
	require.NoError(t, err)
	fine := mustProduct(t, s, "Fine", "2.00", 50)

	critical, err := s.CriticalStock(ctx)
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, low.ID, critical[0].ID)
	require.NotNil(t, critical[0].SupplierName)
	assert.Equal(t, "Acme", *critical[0].SupplierName)

	jan := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	insertSale(t, s, "u1", feb, domain.LineItems{line(fine.ID, 1, "2.00")})
	insertSale(t, s, "u1", jan, domain.LineItems{line(low.ID, 2, "4.00"), line("deleted", 1, "9.00")})
	insertSale(t, s, "u2", jan.Add(time.Hour), domain.LineItems{line(fine.ID, 3, "2.00")})

	all, err := s.SalesSummary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Count)
	assert.True(t, all.Total.Equal(decimal.RequireFromString("25.00")), all.Total.String())

	mine, err := s.SalesSummary(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Count)
	assert.True(t, mine.Total.Equal(decimal.RequireFromString("6")))

	profit, err := s.MonthlyProfit(ctx)
	require.NoError(t, err)
	require.Len(t, profit, 2)
	assert.Equal(t, "2026-01", profit[0].Month)
	assert.Equal(t, "2026-02", profit[1].Month)

	// January: Low 2 x (4.00 - 1.50) and Fine 3 x (2.00 - 1.00); the deleted product is skipped.
	assert.True(t, profit[0].Revenue.Equal(decimal.RequireFromString("14.00")), profit[0].Revenue.String())
	assert.True(t, profit[0].Cost.Equal(decimal.RequireFromString("6.00")), profit[0].Cost.String())
	assert.True(t, profit[0].Profit.Equal(decimal.RequireFromString("8.00")), profit[0].Profit.String())
	assert.Equal(t, int64(2), profit[0].TotalItems)
}

func TestClassify(t *testing.T) {
	plain := errors.New("disk full")
	assert.Same(t, plain, classify(plain))
	assert.Nil(t, classify(nil))

	for _, err := range []error{
		context.DeadlineExceeded,
		fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}),
		&pgconn.PgError{Code: "40P01"},
	} {
		assert.True(t, domain.IsTransactionConflictError(classify(err)), err)
	}
	assert.False(t, domain.IsTransactionConflictError(classify(&pgconn.PgError{Code: "23505"})))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))

	already := domain.NewTransactionConflictError(plain)
	assert.Same(t, already, classify(already))
}

func TestWithinTxTimeoutIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := s.WithinTx(ctx, func(tx *Tx) error { return nil })
	assert.True(t, domain.IsTransactionConflictError(err), err)
}

// TestPostgresRowLocking runs only against a real database.
func TestPostgresRowLocking(t *testing.T) {
	dsn := os.Getenv("STOCKFLOW_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("STOCKFLOW_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	db, err := database.Connect(ctx, "pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(ctx, db))
	s := New(db)

	p := mustProduct(t, s, fmt.Sprintf("pg-%d", time.Now().UnixNano()), "3.00", 5)
	t.Cleanup(func() { _ = s.DeleteProduct(ctx, p.ID) })

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(tx *Tx) error {
				if _, err := tx.ProductsByIDs(ctx, []string{p.ID}); err != nil {
					return err
				}
				return tx.DecrementStock(ctx, p.ID, 1)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, int64(0), stockOf(t, s, p.ID))
}
