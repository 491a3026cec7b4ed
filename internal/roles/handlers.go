package roles

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

// AdminHandler exposes role pricing settings to administrators.
type AdminHandler struct {
	Registry *Registry
}

type roleView struct {
	Role   string `json:"role"`
	Config Config `json:"config"`
}

type categoryDiscountRequest struct {
	Discount decimal.Decimal `json:"discount"`
}

type customRoleRequest struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
}

type wholesaleRolesRequest struct {
	Roles []string `json:"roles"`
}

// List returns every configurable role with its current configuration.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.Registry.Document(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	keys, err := h.Registry.ConfigurableRoles(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]roleView, 0, len(keys))
	for _, key := range keys {
		cfg, _ := doc.Role(key)
		out = append(out, roleView{Role: key, Config: cfg})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": out,
		"meta": map[string]any{
			"custom_roles":    doc.CustomRoles,
			"wholesale_roles": doc.WholesaleRoles,
			"updated_at":      doc.UpdatedAt,
		},
	})
}

// Get returns one role's configuration, or its defaults.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	cfg, err := h.Registry.RoleConfig(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": roleView{Role: role, Config: cfg}})
}

// Put replaces a role's configuration.
func (h *AdminHandler) Put(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	var cfg Config
	if err := common.DecodeJSON(r, &cfg); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Registry.SaveRole(r.Context(), role, cfg); err != nil {
		writeError(w, err)
		return
	}
	h.Get(w, r)
}

// Delete resets a role to its defaults.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.ResetRole(r.Context(), chi.URLParam(r, "role")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutCategory sets an explicit category override.
func (h *AdminHandler) PutCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := categoryParam(w, r)
	if !ok {
		return
	}
	var req categoryDiscountRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Registry.SetCategoryDiscount(r.Context(), chi.URLParam(r, "role"), categoryID, req.Discount); err != nil {
		writeError(w, err)
		return
	}
	h.Get(w, r)
}

// DeleteCategory removes an explicit category override.
func (h *AdminHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := categoryParam(w, r)
	if !ok {
		return
	}
	if err := h.Registry.RemoveCategoryDiscount(r.Context(), chi.URLParam(r, "role"), categoryID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCustomRole registers a custom role.
func (h *AdminHandler) CreateCustomRole(w http.ResponseWriter, r *http.Request) {
	var req customRoleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	role, err := h.Registry.AddCustomRole(r.Context(), req.Key, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"key": req.Key, "role": role}})
}

// DeleteCustomRole removes a custom role and its pricing.
func (h *AdminHandler) DeleteCustomRole(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.RemoveCustomRole(r.Context(), chi.URLParam(r, "role")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutWholesaleRoles replaces the registry's additions to the excluded role set.
func (h *AdminHandler) PutWholesaleRoles(w http.ResponseWriter, r *http.Request) {
	var req wholesaleRolesRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Registry.SetWholesaleRoles(r.Context(), req.Roles); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func categoryParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "categoryID"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", ErrInvalidCategory.Error(), nil)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnknownShippingMethod):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_CONFIG", err.Error(), nil)
	case errors.Is(err, ErrInvalidRoleKey), errors.Is(err, ErrInvalidCategory):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrReservedRole):
		common.JSONError(w, http.StatusForbidden, "ROLE_RESERVED", err.Error(), nil)
	case errors.Is(err, ErrRoleNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrRoleExists):
		common.JSONError(w, http.StatusConflict, "ROLE_EXISTS", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
