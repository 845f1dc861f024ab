package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockflow/domain"
)

// LoadCatalogFile opens csvPath and loads it with LoadCatalog.
func LoadCatalogFile(ctx context.Context, db *sqlx.DB, logger *zap.Logger, csvPath string) (int, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open product catalog %s: %w", csvPath, err)
	}
	defer file.Close()
	return LoadCatalog(ctx, db, logger, file)
}

// LoadCatalog inserts products from CSV rows of
// name,description,purchase_price,sale_price,stock_quantity,minimum_stock.
// The header is skipped, malformed rows are logged and skipped, and the whole
// load is one transaction. It returns the number of inserted products.
func LoadCatalog(ctx context.Context, db *sqlx.DB, logger *zap.Logger, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("read catalog header: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("start catalog transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO products
        (id, name, description, purchase_price, sale_price, stock_quantity, minimum_stock, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("prepare product insert: %w", err)
	}
	defer stmt.Close()

	rows := 0
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("unable to read catalog row", zap.Int("line", line), zap.Error(err))
			continue
		}
		p, err := parseProduct(record)
		if err != nil {
			logger.Warn("skipping catalog row", zap.Int("line", line), zap.Error(err))
			continue
		}

		now := time.Now().UTC()
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), p.Name, p.Description, p.PurchasePrice, p.SalePrice,
			p.StockQuantity, p.MinimumStock, now, now); err != nil {
			return 0, fmt.Errorf("insert product %s: %w", p.Name, err)
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit catalog: %w", err)
	}
	logger.Info("seeded product catalog", zap.Int("rows", rows))
	return rows, nil
}

func parseProduct(record []string) (domain.Product, error) {
	if len(record) < 6 {
		return domain.Product{}, fmt.Errorf("expected 6 columns, got %d", len(record))
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	purchase, err := decimal.NewFromString(record[2])
	if err != nil {
		return domain.Product{}, fmt.Errorf("purchase_price: %w", err)
	}
	sale, err := decimal.NewFromString(record[3])
	if err != nil {
		return domain.Product{}, fmt.Errorf("sale_price: %w", err)
	}
	stock, err := strconv.ParseInt(record[4], 10, 64)
	if err != nil {
		return domain.Product{}, fmt.Errorf("stock_quantity: %w", err)
	}
	minimum, err := strconv.ParseInt(record[5], 10, 64)
	if err != nil {
		return domain.Product{}, fmt.Errorf("minimum_stock: %w", err)
	}

	p := domain.Product{
		Name:          record[0],
		Description:   record[1],
		PurchasePrice: purchase,
		SalePrice:     sale,
		StockQuantity: stock,
		MinimumStock:  minimum,
	}
	return p, domain.ValidateProduct(p)
}
