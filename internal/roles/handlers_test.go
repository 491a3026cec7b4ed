package roles_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/roles"
)

func newAdminRouter(t *testing.T) (http.Handler, *roles.Registry) {
	t.Helper()
	reg, _, _ := newRegistry(t)
	h := &roles.AdminHandler{Registry: reg}
	r := chi.NewRouter()
	r.Get("/roles", h.List)
	r.Get("/roles/{role}", h.Get)
	r.Put("/roles/{role}", h.Put)
	r.Delete("/roles/{role}", h.Delete)
	r.Put("/roles/{role}/categories/{categoryID}", h.PutCategory)
	r.Delete("/roles/{role}/categories/{categoryID}", h.DeleteCategory)
	r.Post("/custom-roles", h.CreateCustomRole)
	r.Delete("/custom-roles/{role}", h.DeleteCustomRole)
	r.Put("/wholesale-roles", h.PutWholesaleRoles)
	return r, reg
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminPutAndGetRole(t *testing.T) {
	h, reg := newAdminRouter(t)

	rec := do(h, http.MethodPut, "/roles/vip", `{"enabled":true,"base_discount":"12.345","category_discounts":{"5":"20"},"shipping_methods":["flat_rate"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Role   string       `json:"role"`
			Config roles.Config `json:"config"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "vip", body.Data.Role)
	require.True(t, body.Data.Config.BaseDiscount.Equal(d("12.35")))
	require.True(t, body.Data.Config.CategoryDiscounts[5].Equal(d("20")))

	rec = do(h, http.MethodPut, "/roles/vip/categories/9", `{"discount":"30"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	pct, ok, err := reg.CategoryDiscount(t.Context(), "vip", 9)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, pct.Equal(d("30")))

	rec = do(h, http.MethodDelete, "/roles/vip/categories/9", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, ok, err = reg.CategoryDiscount(t.Context(), "vip", 9)
	require.NoError(t, err)
	require.False(t, ok)

	rec = do(h, http.MethodDelete, "/roles/vip", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	enabled, err := reg.EnabledRoles(t.Context())
	require.NoError(t, err)
	require.Empty(t, enabled)
}

func TestAdminRejectsInvalidWrites(t *testing.T) {
	h, _ := newAdminRouter(t)

	cases := []struct {
		name, method, path, body string
		status                   int
	}{
		{"discount above 100", http.MethodPut, "/roles/vip", `{"enabled":true,"base_discount":"120"}`, http.StatusUnprocessableEntity},
		{"unknown shipping", http.MethodPut, "/roles/vip", `{"enabled":true,"base_discount":"5","shipping_methods":["teleport"]}`, http.StatusUnprocessableEntity},
		{"administrator", http.MethodPut, "/roles/administrator", `{"enabled":true,"base_discount":"5"}`, http.StatusForbidden},
		{"unknown role", http.MethodPut, "/roles/ghost", `{"enabled":true,"base_discount":"5"}`, http.StatusNotFound},
		{"bad category", http.MethodPut, "/roles/vip/categories/abc", `{"discount":"5"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPut, "/roles/vip", `{"enabled":true,"bonus":1}`, http.StatusBadRequest},
		{"bad custom key", http.MethodPost, "/custom-roles", `{"key":"Gold Tier","displayName":"Gold"}`, http.StatusBadRequest},
		{"existing platform key", http.MethodPost, "/custom-roles", `{"key":"customer","displayName":"Customer"}`, http.StatusConflict},
		{"missing custom role", http.MethodDelete, "/custom-roles/ghost", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminCustomRoleLifecycle(t *testing.T) {
	h, reg := newAdminRouter(t)

	rec := do(h, http.MethodPost, "/custom-roles", `{"key":"gold_tier","displayName":"Gold"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(h, http.MethodPut, "/roles/gold_tier", `{"enabled":true,"base_discount":"7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h, http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"gold_tier"`)
	require.NotContains(t, rec.Body.String(), `"role":"administrator"`)

	rec = do(h, http.MethodDelete, "/custom-roles/gold_tier", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	enabled, err := reg.EnabledRoles(t.Context())
	require.NoError(t, err)
	require.Empty(t, enabled)

	rec = do(h, http.MethodPut, "/wholesale-roles", `{"roles":["dealer","b2b_buyer"]}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	ws, err := reg.WholesaleRoles(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"b2b_buyer", "dealer"}, ws)
}
