package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

// Handler wires cart services to HTTP. Every route requires an authenticated session.
type Handler struct {
	Svc *Service
}

type addLineRequest struct {
	ProductID int64 `json:"productId"`
	Qty       int   `json:"qty"`
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return userID, true
}

// Get returns the stored cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// AddLine adds a product to the cart.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req addLineRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.AddLine(r.Context(), chi.URLParam(r, "id"), userID, req.ProductID, req.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Calculate reprices the cart for the current session.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Calculate(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Discounts returns the per-line discount breakdown.
func (h *Handler) Discounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	b, err := h.Svc.DiscountBreakdown(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

// ResetPricing restores original prices on every line.
func (h *Handler) ResetPricing(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Reset(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.WriteError(w, err)
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart operation failed", nil)
	}
}
