package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stockflow/domain"
)

type SalesSummary struct {
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"sales_count"`
}

// SalesSummary totals the sales of userID, or of everyone when userID is empty.
func (s *Store) SalesSummary(ctx context.Context, userID string) (SalesSummary, error) {
	query := `SELECT total_amount FROM sales`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	var totals []decimal.Decimal
	if err := s.db.SelectContext(ctx, &totals, s.db.Rebind(query), args...); err != nil {
		return SalesSummary{}, fmt.Errorf("sum sales: %w", err)
	}
	summary := SalesSummary{Total: decimal.Zero, Count: int64(len(totals))}
	for _, t := range totals {
		summary.Total = summary.Total.Add(t)
	}
	return summary, nil
}

// CriticalProduct is a product whose stock has dropped below its minimum.
type CriticalProduct struct {
	ID            string  `db:"id" json:"id"`
	Name          string  `db:"name" json:"name"`
	StockQuantity int64   `db:"stock_quantity" json:"stock_quantity"`
	MinimumStock  int64   `db:"minimum_stock" json:"minimum_stock"`
	SupplierID    *string `db:"supplier_id" json:"supplier_id,omitempty"`
	SupplierName  *string `db:"supplier_name" json:"supplier_name,omitempty"`
}

func (s *Store) CriticalStock(ctx context.Context) ([]CriticalProduct, error) {
	products := []CriticalProduct{}
	err := s.db.SelectContext(ctx, &products, `SELECT p.id, p.name, p.stock_quantity, p.minimum_stock, p.supplier_id, s.name AS supplier_name
        FROM products p
        LEFT JOIN suppliers s ON s.id = p.supplier_id
        WHERE p.stock_quantity < p.minimum_stock
        ORDER BY p.stock_quantity, p.name`)
	if err != nil {
		return nil, fmt.Errorf("critical stock report: %w", err)
	}
	return products, nil
}

// MonthlyProfit is one month of the profit report.
type MonthlyProfit struct {
	Month      string          `json:"month"`
	Revenue    decimal.Decimal `json:"total_revenue"`
	Cost       decimal.Decimal `json:"total_cost"`
	Profit     decimal.Decimal `json:"total_profit"`
	TotalItems int64           `json:"total_sales"`
}

// MonthlyProfit groups sold line items by UTC month. Cost uses the current
// purchase price of each product; items of deleted products are left out.
func (s *Store) MonthlyProfit(ctx context.Context) ([]MonthlyProfit, error) {
	var sales []struct {
		Items     domain.LineItems `db:"items"`
		CreatedAt time.Time        `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &sales, `SELECT items, created_at FROM sales`); err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	var prices []struct {
		ID            string          `db:"id"`
		PurchasePrice decimal.Decimal `db:"purchase_price"`
	}
	if err := s.db.SelectContext(ctx, &prices, `SELECT id, purchase_price FROM products`); err != nil {
		return nil, fmt.Errorf("load purchase prices: %w", err)
	}
	cost := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		cost[p.ID] = p.PurchasePrice
	}

	months := map[string]*MonthlyProfit{}
	for _, sale := range sales {
		key := sale.CreatedAt.UTC().Format("2006-01")
		for _, item := range sale.Items {
			price, ok := cost[item.ProductID]
			if !ok {
				continue
			}
			m := months[key]
			if m == nil {
				m = &MonthlyProfit{Month: key, Revenue: decimal.Zero, Cost: decimal.Zero, Profit: decimal.Zero}
				months[key] = m
			}
			itemCost := price.Mul(decimal.NewFromInt(item.Quantity))
			m.Revenue = m.Revenue.Add(item.Subtotal)
			m.Cost = m.Cost.Add(itemCost)
			m.Profit = m.Profit.Add(item.Subtotal.Sub(itemCost))
			m.TotalItems++
		}
	}

	report := make([]MonthlyProfit, 0, len(months))
	for _, m := range months {
		report = append(report, *m)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].Month < report[j].Month })
	return report, nil
}
