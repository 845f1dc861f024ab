package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"stockflow/domain"
)

type createProductRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	StockQuantity int64           `json:"stock_quantity"`
	MinimumStock  int64           `json:"minimum_stock"`
	SupplierID    *string         `json:"supplier_id"`
}

// Stock is not part of an update; it changes through /stock only.
type updateProductRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	MinimumStock  int64           `json:"minimum_stock"`
	SupplierID    *string         `json:"supplier_id"`
}

type stockRequest struct {
	Delta int64 `json:"delta"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleSeller, domain.RoleStocker) {
		return
	}
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Name == "" {
		h.fail(w, r, requiredField("name"))
		return
	}

	p, err := h.store.CreateProduct(r.Context(), domain.Product{
		Name:          req.Name,
		Description:   req.Description,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		StockQuantity: req.StockQuantity,
		MinimumStock:  req.MinimumStock,
		SupplierID:    nullIfEmpty(req.SupplierID),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleStocker) {
		return
	}
	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Name == "" {
		h.fail(w, r, requiredField("name"))
		return
	}

	p, err := h.store.UpdateProduct(r.Context(), domain.Product{
		ID:            chi.URLParam(r, "id"),
		Name:          req.Name,
		Description:   req.Description,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		MinimumStock:  req.MinimumStock,
		SupplierID:    nullIfEmpty(req.SupplierID),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	if err := h.store.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleStocker) {
		return
	}
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Delta == 0 {
		h.fail(w, r, domain.NewValidationError("delta", "must not be zero"))
		return
	}

	p, err := h.store.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func nullIfEmpty(val *string) *string {
	if val == nil || *val == "" {
		return nil
	}
	return val
}
