package interop

import (
	"net/http"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

// Handler exposes session cache control and extension re-detection over HTTP.
type Handler struct {
	Layer   *Layer
	Arbiter *Arbiter
	// Invalidations broadcasts session invalidations to other processes when set.
	Invalidations *Invalidations
}

type statusView struct {
	Active     bool           `json:"active"`
	Priorities map[string]int `json:"priorities"`
	Roles      []string       `json:"roles"`
}

// InvalidateSession drops the caller's cached eligibility. Login and logout flows call it
// so a role change takes effect on the next request.
func (h *Handler) InvalidateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	if h.Invalidations != nil {
		h.Invalidations.InvalidateUser(r.Context(), userID)
	} else {
		h.Layer.InvalidateUser(userID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status reports the current extension detection.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": view(h.Layer.Detection(r.Context()))})
}

// Sync re-detects the extension and reorders our handlers.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	placements := h.Arbiter.Sync(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"extension":  view(h.Layer.Detection(r.Context())),
			"placements": placements,
		},
	})
}

func view(d Detection) statusView {
	out := statusView{Active: d.Active, Priorities: make(map[string]int, len(d.Priorities)), Roles: sortedCopy(d.Roles)}
	for point, p := range d.Priorities {
		out.Priorities[string(point)] = p
	}
	if out.Roles == nil {
		out.Roles = []string{}
	}
	return out
}
