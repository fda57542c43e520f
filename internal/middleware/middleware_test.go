package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/classify"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(handlers...)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func get(router http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiterRefill(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 1, time.Minute)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := rl.Allow(ctx, "client"); !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	d, _ := rl.Allow(ctx, "client")
	if d.Allowed {
		t.Fatal("third request should be rejected")
	}
	if d.RetryAfter != time.Minute {
		t.Errorf("expected retry after 1m, got %s", d.RetryAfter)
	}
	if d2, _ := rl.Allow(ctx, "other"); !d2.Allowed {
		t.Error("other clients have their own bucket")
	}

	now = now.Add(61 * time.Second)
	if d, _ := rl.Allow(ctx, "client"); !d.Allowed {
		t.Error("request after refill should be allowed")
	}
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 1, time.Minute)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		rl.Allow(ctx, ip)
	}
	rl.Allow(ctx, "10.0.0.3")
	if rl.Len() != 3 {
		t.Fatalf("expected 3 tracked clients, got %d", rl.Len())
	}

	now = now.Add(time.Minute)
	rl.Allow(ctx, "10.0.0.4")
	// 10.0.0.3 spent both tokens and has only refilled one of them.
	if rl.Len() != 2 {
		t.Fatalf("expected idle full buckets to be dropped, %d clients tracked", rl.Len())
	}

	now = now.Add(time.Minute)
	rl.Allow(ctx, "10.0.0.4")
	if rl.Len() != 1 {
		t.Errorf("expected only the active client to remain, got %d", rl.Len())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := newRouter(RateLimitMiddleware(NewPerMinuteLimiter(1), zap.NewNop()))

	if w := get(router); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w := get(router)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "1" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("unexpected rate limit headers %v", w.Header())
	}
	var body APIError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ErrorType != ErrTypeRateLimited {
		t.Errorf("expected %s, got %s", ErrTypeRateLimited, body.ErrorType)
	}
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	router := newRouter(RateLimitMiddleware(NewRedisLimiter(client, 1, time.Minute), zap.NewNop()))

	for i := 0; i < 3; i++ {
		if w := get(router); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 when redis is down, got %d", i+1, w.Code)
		}
	}
}

func TestCircuitBreakerQuotaCooldown(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreakerWithConfig(2, 1, 10*time.Second)
	cb.now = func() time.Time { return now }

	var transitions []string
	cb.OnStateChange = func(from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	cb.RecordQuotaFailure(0)
	if cb.State() != CircuitClosed {
		t.Fatal("one failure should not open the breaker")
	}
	cb.RecordQuotaFailure(30 * time.Second)
	if cb.State() != CircuitOpen {
		t.Fatal("breaker should open at the threshold")
	}
	if cb.Allow() {
		t.Fatal("open breaker should reject")
	}
	if got := cb.RetryAfter(); got != 30*time.Second {
		t.Errorf("provider retry hint should extend the cooldown, got %s", got)
	}

	now = now.Add(30 * time.Second)
	if !cb.Allow() {
		t.Fatal("breaker should let a probe through after the cooldown")
	}
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after a successful probe, got %s", cb.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreakerHalfOpenAdmitsOneProbe(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreakerWithConfig(1, 1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordQuotaFailure(0)
	now = now.Add(time.Minute)

	admitted := 0
	for i := 0; i < 5; i++ {
		if cb.Allow() {
			admitted++
		}
	}
	if admitted != 1 {
		t.Fatalf("expected a single probe while half-open, admitted %d", admitted)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half_open, got %s", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("a non-quota failure must not change state, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("a finished probe should free the slot for the next one")
	}
	if cb.Allow() {
		t.Fatal("the second probe is still in flight")
	}

	cb.RecordQuotaFailure(0)
	if cb.State() != CircuitOpen || cb.Allow() {
		t.Fatal("a quota failure while probing should reopen the breaker")
	}
}

func TestRespondClassified(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		errorType string
	}{
		{"quota", errors.New("429 quota exceeded"), http.StatusTooManyRequests, "quota_exceeded"},
		{"model", errors.New("model not found"), http.StatusInternalServerError, "model_unavailable"},
		{"auth", errors.New("invalid api key"), http.StatusInternalServerError, "auth_failure"},
		{"generic", errors.New("boom"), http.StatusInternalServerError, "errors.errorString"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(func(c *gin.Context) {
				RespondClassified(c, classify.Classify(tt.err))
			})
			w := get(router)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error_type"] != tt.errorType {
				t.Errorf("expected error_type %s, got %v", tt.errorType, body["error_type"])
			}
			if tt.name == "quota" {
				if _, present := body["retry_after"]; !present {
					t.Error("quota body must carry retry_after")
				}
			}
			if tt.name == "model" && body["suggestion"] == nil {
				t.Error("model body must carry a suggestion")
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	router := newRouter(RequestID())

	w := get(router)
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("expected incoming id to be kept, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS([]string{"https://*.onrender.com"}, newRouter())

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://nowastelifev2.onrender.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://nowastelifev2.onrender.com" {
		t.Errorf("expected origin to be allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
}
