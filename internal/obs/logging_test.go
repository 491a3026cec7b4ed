package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "debug")
	h := RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/1/price", nil)
	ctx := WithRoutePattern(req.Context(), "/api/v1/products/{id}/price")
	ctx = common.WithSession(ctx, common.Session{UserID: "u1", Roles: []string{"vip"}})
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "error", entry["level"])
	require.Equal(t, "/api/v1/products/{id}/price", entry["route"])
	require.Equal(t, float64(500), entry["status"])
	require.Equal(t, "u1", entry["user_id"])
	require.Equal(t, []any{"vip"}, entry["roles"])
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "warn")
	logger.Info().Msg("hidden")
	require.Zero(t, buf.Len())
	logger.Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")

	buf.Reset()
	l := Component(newLogger(&buf, "json", "bogus"), "arbiter")
	l.Info().Msg("x")
	require.Contains(t, buf.String(), `"component":"arbiter"`)
}
