package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"stockflow/domain"
	"stockflow/internal/database"
	"stockflow/internal/migrations"
	"stockflow/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(ctx, db))
	return store.New(db)
}

func TestLoadCatalog(t *testing.T) {
	st := newTestStore(t)
	csv := `name,description,purchase_price,sale_price,stock_quantity,minimum_stock
Arabica Coffee,1kg bag,8.00,12.50,40,5
Broken Row,missing columns
Green Tea,,1.10,2.35,8,10
Bad Price,thing,abc,1,1,1
Negative,thing,1,1,-3,1
`
	n, err := LoadCatalog(context.Background(), st.DB(), zaptest.NewLogger(t), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	products, err := st.ListProducts(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Arabica Coffee", products[0].Name)
	assert.True(t, products[0].SalePrice.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, int64(40), products[0].StockQuantity)
	assert.True(t, products[1].BelowMinimum())
}

func TestLoadCatalogEmpty(t *testing.T) {
	st := newTestStore(t)
	n, err := LoadCatalog(context.Background(), st.DB(), zaptest.NewLogger(t), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadCatalogFileMissing(t *testing.T) {
	st := newTestStore(t)
	_, err := LoadCatalogFile(context.Background(), st.DB(), zaptest.NewLogger(t), "does-not-exist.csv")
	assert.Error(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	require.NoError(t, EnsureAdmin(ctx, st, logger, "admin@stockflow.com", "123456"))
	require.NoError(t, EnsureAdmin(ctx, st, logger, "admin@stockflow.com", "other"))

	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, domain.RoleAdmin, users[0].Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users[0].Password), []byte("123456")))
}
