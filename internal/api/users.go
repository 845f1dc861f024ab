package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"stockflow/domain"
	"stockflow/internal/store"
)

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.UserByID(r.Context(), callerID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type updateMeRequest struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
	TaxID    *string `json:"tax_id"`
	Password *string `json:"password"`
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	upd := store.ProfileUpdate{Name: req.Name, Phone: req.Phone, Address: req.Address, TaxID: req.TaxID}
	if req.Password != nil {
		if *req.Password == "" {
			h.fail(w, r, domain.NewValidationError("password", "cannot be empty"))
			return
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "unable to secure password")
			return
		}
		hash := string(hashed)
		upd.Password = &hash
	}

	user, err := h.store.UpdateProfile(r.Context(), callerID(r), upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) updateUserRole(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.store.UpdateUserRole(r.Context(), chi.URLParam(r, "id"), role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id := chi.URLParam(r, "id")
	if id == callerID(r) {
		h.fail(w, r, domain.NewValidationError("id", "administrators cannot delete their own account"))
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
