package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stockflow/domain"
	"stockflow/internal/sales"
	"stockflow/internal/store"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sales    *sales.Service
	secret   string
	tokenTTL time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New constructs a Handler.
func New(st *store.Store, svc *sales.Service, secret string, tokenTTL time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Handler{
		store:    st,
		sales:    svc,
		secret:   secret,
		tokenTTL: tokenTTL,
		logger:   logger,
		tracer:   otel.Tracer("stockflow/internal/api"),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.traceRequests)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.authMiddleware)

			pr.Route("/users", func(r chi.Router) {
				r.Get("/", h.listUsers)
				r.Get("/me", h.getMe)
				r.Put("/me", h.updateMe)
				r.Put("/{id}/role", h.updateUserRole)
				r.Delete("/{id}", h.deleteUser)
			})

			pr.Route("/suppliers", func(r chi.Router) {
				r.Get("/", h.listSuppliers)
				r.Post("/", h.createSupplier)
				r.Put("/{id}", h.updateSupplier)
				r.Delete("/{id}", h.deleteSupplier)
			})

			pr.Route("/products", func(r chi.Router) {
				r.Get("/", h.listProducts)
				r.Post("/", h.createProduct)
				r.Get("/{id}", h.getProduct)
				r.Put("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deleteProduct)
				r.Post("/{id}/stock", h.adjustStock)
			})

			pr.Route("/sales", func(r chi.Router) {
				r.Post("/", h.createSale)
				r.Get("/", h.listSales)
				r.Get("/{id}", h.getSale)
			})

			pr.Get("/stats/summary", h.summary)

			pr.Route("/reports", func(r chi.Router) {
				r.Get("/critical-stock", h.criticalStock)
				r.Get("/monthly-profit", h.monthlyProfit)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// traceRequests starts a server span per request, continuing any trace
// propagated by the caller.
func (h *Handler) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := h.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.response.status_code", ww.Status()))
	})
}

// Helpers

type failureResponse struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

var kindStatus = map[string]int{
	domain.KindValidation:          http.StatusBadRequest,
	domain.KindProductNotFound:     http.StatusNotFound,
	domain.KindNotFound:            http.StatusNotFound,
	domain.KindInsufficientStock:   http.StatusConflict,
	domain.KindTransactionConflict: http.StatusConflict,
	domain.KindConflict:            http.StatusConflict,
}

// fail writes err as a {kind, detail} body. Internal errors are logged and
// their detail is withheld.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Kind(err)
	status, ok := kindStatus[kind]
	if !ok {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, failureResponse{Kind: domain.KindInternal, Detail: "internal server error"})
		return
	}
	respondJSON(w, status, failureResponse{Kind: kind, Detail: err.Error()})
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "request body is empty")
		}
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func requiredField(name string) error {
	return domain.NewValidationError(name, "is required")
}
