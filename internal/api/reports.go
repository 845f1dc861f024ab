package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"stockflow/domain"
)

type summaryResponse struct {
	Total      decimal.Decimal `json:"total"`
	SalesCount int64           `json:"sales_count"`
	Label      string          `json:"label"`
}

// summary totals every sale, except for customers who only see their own.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	role := callerRole(r)
	userID := ""
	if role == domain.RoleCustomer {
		userID = callerID(r)
	}

	s, err := h.store.SalesSummary(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	label := "Total spent"
	if role == domain.RoleAdmin {
		label = "Total revenue"
	}
	respondJSON(w, http.StatusOK, summaryResponse{Total: s.Total, SalesCount: s.Count, Label: label})
}

func (h *Handler) criticalStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleStocker) {
		return
	}
	report, err := h.store.CriticalStock(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) monthlyProfit(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	report, err := h.store.MonthlyProfit(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
