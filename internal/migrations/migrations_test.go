package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/database"
)

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Run(ctx, db))
	require.NoError(t, Run(ctx, db))

	var tables []string
	require.NoError(t, db.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`))
	assert.Equal(t, []string{"products", "sales", "suppliers", "users"}, tables)
}

func TestStockCheckConstraint(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Run(ctx, db))

	_, err = db.Exec(`INSERT INTO products (id, name, purchase_price, sale_price, stock_quantity) VALUES ('p1', 'Tea', '1', '2', -1)`)
	assert.Error(t, err)
}
