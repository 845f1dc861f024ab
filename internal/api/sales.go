package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stockflow/domain"
	"stockflow/internal/sales"
)

type saleRequest struct {
	Items         []sales.Item `json:"items"`
	PaymentMethod string       `json:"paymentMethod"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleSeller) {
		return
	}
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	sale, err := h.sales.CreateSale(r.Context(), callerID(r), req.Items, domain.PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	list, err := h.store.ListSales(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// getSale is open to admins and to the user the sale belongs to.
func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.store.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if callerRole(r) != domain.RoleAdmin && sale.UserID != callerID(r) {
		respondError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	respondJSON(w, http.StatusOK, sale)
}
