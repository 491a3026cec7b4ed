package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

// Handler exposes catalog price endpoints.
type Handler struct {
	Service *Service
}

// Price handles GET /api/v1/products/{id}/price.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "product id must be a positive integer", nil)
		return
	}
	display, err := h.Service.DisplayPrice(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render price", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": display})
}
