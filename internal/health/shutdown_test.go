package health_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/cache"
	"github.com/noah-isme/toko-rolepricing/internal/health"
	"github.com/noah-isme/toko-rolepricing/internal/interop"
)

func newProbeRouter() http.Handler {
	layer := &interop.Layer{
		Detector: interop.StaticDetector{Active: true},
		Cache:    cache.NewTTL[interop.Eligibility]("eligibility", 8, cache.DefaultTTL),
	}
	h := health.Handler{Checker: stubChecker{}, Interop: layer}
	r := chi.NewRouter()
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
	return r
}

func TestDrainingInstanceFailsReadinessButStaysLive(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	router := newProbeRouter()

	health.SetReady(false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil).WithContext(context.Background()))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "shutting down", status["server"])
	require.Equal(t, "ok", status["db"])
	require.Equal(t, "active", status["wholesale_extension"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	health.SetReady(true)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
