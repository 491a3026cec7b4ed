package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	lim, err := New(memory.NewStore(), "1-M")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	h := Handler{Limiter: lim}.Middleware(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/1/price", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rr1 := httptest.NewRecorder()
	h.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}
	if got := rr1.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected remaining 0, got %q", got)
	}

	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request limited, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	other := req.Clone(req.Context())
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	h.ServeHTTP(rr3, other)
	if rr3.Code != http.StatusOK {
		t.Fatalf("expected other client allowed, got %d", rr3.Code)
	}
}

func TestByUserOrIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ByUserOrIP(req); got != "ip:203.0.113.9" {
		t.Fatalf("unexpected key %q", got)
	}
	req = req.WithContext(common.WithSession(req.Context(), common.Session{UserID: "u1"}))
	if got := ByUserOrIP(req); got != "user:u1" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestStoreFailureFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	lim, err := New(store, "5-M")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()

	rr := httptest.NewRecorder()
	Handler{Limiter: lim}.Middleware(http.HandlerFunc(ok)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected fail-open, got %d", rr.Code)
	}
}
