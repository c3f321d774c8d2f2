package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type countingLimiter struct {
	allowed int
	keys    []string
}

func (l *countingLimiter) Allow(_ context.Context, key string) bool {
	l.keys = append(l.keys, key)
	if l.allowed == 0 {
		return false
	}
	l.allowed--
	return true
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })
	return r
}

func TestRequestIDKeepsOrAssigns(t *testing.T) {
	r := newEngine(RequestID())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" || w.Body.String() != "abc-123" {
		t.Fatalf("expected caller id to propagate, got header=%q body=%q", got, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Fatalf("expected a generated uuid, got %q", w.Header().Get(RequestIDHeader))
	}
}

func TestRateLimit(t *testing.T) {
	l := &countingLimiter{allowed: 1}
	r := newEngine(RateLimit(l, "login"))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
	if l.keys[0] != "login:192.0.2.1" {
		t.Fatalf("expected key scoped by client ip, got %q", l.keys[0])
	}

	w := httptest.NewRecorder()
	newEngine(RateLimit(nil, "login")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("nil limiter should allow, got %d", w.Code)
	}
}

func TestAdminRequiredWithoutIdentity(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine(AdminRequired()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
