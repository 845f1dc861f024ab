// Package sales checks out carts: it validates the requested lines, prices
// them from the catalog, deducts stock and records the sale as one unit of work.
package sales

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stockflow/domain"
	"stockflow/internal/store"
)

// Store opens the unit of work a checkout runs in.
type Store interface {
	WithinSaleTx(ctx context.Context, fn func(tx store.SaleTx) error) error
}

// Item is one requested cart line.
type Item struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type Config struct {
	// MaxRetries is how many extra attempts a conflicting checkout gets.
	MaxRetries int
	// TxTimeout bounds each attempt.
	TxTimeout time.Duration
}

type Service struct {
	store      Store
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string
	retryDelay time.Duration
}

// NewService creates a Service. A nil logger disables logging.
func NewService(st Store, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Service{
		store:      st,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer("stockflow/internal/sales"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		retryDelay: 20 * time.Millisecond,
	}
}

// CreateSale validates items, then deducts stock and records a Paid sale for
// callerID atomically. On failure nothing is written. Transaction conflicts
// are retried up to Config.MaxRetries times; all other failures are returned
// at once.
func (s *Service) CreateSale(ctx context.Context, callerID string, items []Item, method domain.PaymentMethod) (domain.Sale, error) {
	ctx, span := s.tracer.Start(ctx, "sales.CreateSale", trace.WithAttributes(
		attribute.String("sale.user_id", callerID),
		attribute.Int("sale.lines", len(items)),
	))
	defer span.End()

	pm, err := validate(callerID, items, method)
	if err != nil {
		return domain.Sale{}, s.fail(span, err)
	}

	var (
		sale     domain.Sale
		attempts int
	)
	for {
		attempts++
		sale, err = s.attempt(ctx, callerID, items, pm)
		if err == nil || !domain.IsTransactionConflictError(err) {
			break
		}
		if attempts > s.cfg.MaxRetries || ctx.Err() != nil {
			var tce *domain.TransactionConflictError
			errors.As(err, &tce)
			err = &domain.TransactionConflictError{Attempts: attempts, Err: tce.Err}
			break
		}
		s.logger.Warn("sale transaction conflict, retrying",
			zap.String("user_id", callerID), zap.Int("attempt", attempts), zap.Error(err))
		if !s.wait(ctx, attempts) {
			err = &domain.TransactionConflictError{Attempts: attempts, Err: ctx.Err()}
			break
		}
	}
	span.SetAttributes(attribute.Int("sale.attempts", attempts))
	if err != nil {
		return domain.Sale{}, s.fail(span, err)
	}

	span.SetAttributes(attribute.String("sale.id", sale.ID), attribute.String("sale.total", sale.TotalAmount.String()))
	s.logger.Info("sale created",
		zap.String("sale_id", sale.ID),
		zap.String("user_id", callerID),
		zap.String("total", sale.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(sale.Items)),
		zap.Int("attempts", attempts))
	return sale, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, domain.Kind(err))
	if domain.Kind(err) == domain.KindInternal || domain.IsTransactionConflictError(err) {
		s.logger.Error("sale failed", zap.String("kind", domain.Kind(err)), zap.Error(err))
	} else {
		s.logger.Info("sale rejected", zap.String("kind", domain.Kind(err)), zap.Error(err))
	}
	return err
}

func (s *Service) wait(ctx context.Context, attempt int) bool {
	if s.retryDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(time.Duration(attempt) * s.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func validate(callerID string, items []Item, method domain.PaymentMethod) (domain.PaymentMethod, error) {
	if strings.TrimSpace(callerID) == "" {
		return "", domain.NewValidationError("callerId", "is required")
	}
	if len(items) == 0 {
		return "", domain.NewValidationError("items", "cart cannot be empty")
	}
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return "", domain.NewValidationError("productId", "is required")
		}
		if item.Quantity <= 0 {
			return "", domain.NewValidationError("quantity", "must be a positive integer")
		}
	}
	return domain.ParsePaymentMethod(string(method))
}

// attempt runs one bounded unit of work.
func (s *Service) attempt(ctx context.Context, callerID string, items []Item, method domain.PaymentMethod) (domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "sales.attempt")
	defer span.End()

	var sale domain.Sale
	err := s.store.WithinSaleTx(ctx, func(tx store.SaleTx) error {
		ids := make([]string, len(items))
		for i, item := range items {
			ids[i] = item.ProductID
		}
		products, err := tx.ProductsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]domain.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		lines := make(domain.LineItems, 0, len(items))
		deductions := make(map[string]int64, len(products))
		total := decimal.Zero
		for _, item := range items {
			p, ok := byID[item.ProductID]
			if !ok {
				return domain.NewProductNotFoundError(item.ProductID)
			}
			// Repeated lines for one product are checked against the stock together.
			requested := deductions[p.ID] + item.Quantity
			if requested > p.StockQuantity {
				return domain.NewInsufficientStockError(p.ID, p.Name, requested, p.StockQuantity)
			}
			deductions[p.ID] = requested

			subtotal := p.SalePrice.Mul(decimal.NewFromInt(item.Quantity))
			lines = append(lines, domain.LineItem{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  item.Quantity,
				UnitPrice: p.SalePrice,
				Subtotal:  subtotal,
			})
			total = total.Add(subtotal)
		}

		productIDs := make([]string, 0, len(deductions))
		for id := range deductions {
			productIDs = append(productIDs, id)
		}
		sort.Strings(productIDs)
		for _, id := range productIDs {
			if err := tx.DecrementStock(ctx, id, deductions[id]); err != nil {
				return err
			}
		}

		sale = domain.Sale{
			ID:            s.newID(),
			UserID:        callerID,
			Items:         lines,
			TotalAmount:   total,
			Status:        domain.SaleStatusPaid,
			PaymentMethod: method,
			CreatedAt:     s.now(),
		}
		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.Kind(err))
		return domain.Sale{}, err
	}
	return sale, nil
}
