package interop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/common"
	"github.com/noah-isme/toko-rolepricing/internal/hooks"
)

func TestHandlerSyncReportsPlacements(t *testing.T) {
	chain := hooks.NewChain[[]string](hooks.PointCatalogPrice)
	chain.Add(hooks.Handler[[]string]{ID: "rolepricing.price", Owner: "rolepricing", Priority: 10, Fn: noop})
	det := StaticDetector{Active: true, Priorities: map[hooks.Point]int{hooks.PointCatalogPrice: 40}, Roles: []string{"dealer"}}
	a := newArbiter(det, chain)
	h := &Handler{Layer: a.Layer, Arbiter: a}

	rec := httptest.NewRecorder()
	h.Sync(rec, httptest.NewRequest(http.MethodPost, "/api/v1/interop/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Extension  statusView  `json:"extension"`
			Placements []Placement `json:"placements"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Data.Extension.Active)
	require.Equal(t, 40, body.Data.Extension.Priorities["catalog.price"])
	require.Equal(t, []string{"dealer"}, body.Data.Extension.Roles)
	require.Len(t, body.Data.Placements, 1)
	require.Equal(t, 45, body.Data.Placements[0].Priority)

	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/interop", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"active":true`)
}

func TestHandlerInvalidateSession(t *testing.T) {
	a := newArbiter(StaticDetector{}, hooks.NewChain[[]string](hooks.PointCatalogPrice))
	h := &Handler{Layer: a.Layer, Arbiter: a}
	a.Layer.Eligibility(context.Background(), common.Session{UserID: "u1", Roles: []string{"vip"}})
	require.Equal(t, 1, a.Layer.Cache.Len())

	rec := httptest.NewRecorder()
	h.InvalidateSession(rec, httptest.NewRequest(http.MethodPost, "/api/v1/session/invalidate", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/invalidate", nil)
	req = req.WithContext(common.WithSession(req.Context(), common.Session{UserID: "u1"}))
	rec = httptest.NewRecorder()
	h.InvalidateSession(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, a.Layer.Cache.Len())
}
