package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

// AdminHandler provides administrative order endpoints.
type AdminHandler struct {
	Svc        *Service
	Reconciler *Reconciler
}

type patchStatusRequest struct {
	Status string `json:"status"`
}

// PatchStatus updates the order status with state-machine validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req patchStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "status is required", nil)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), id, Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Reconcile runs a reconciliation pass immediately and returns its report.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.Reconciler == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "reconciler not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	report, err := h.Reconciler.Reconcile(r.Context(), id, TriggerManual)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidStatus):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order operation failed", nil)
	}
}
