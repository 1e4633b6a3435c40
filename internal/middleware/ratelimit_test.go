package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/rundown/internal/model"
)

func ratePerSec(v float64) rate.Limit {
	return rate.Limit(v)
}

func testRateLimiterConfig(generalRate float64, generalBurst int, generateRate float64, generateBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     ratePerSec(generalRate),
		GeneralBurst:    generalBurst,
		GenerateRate:    ratePerSec(generateRate),
		GenerateBurst:   generateBurst,
		CleanupInterval: 1 * time.Minute,
	}
}

// requestFrom は指定したリモートアドレスからのリクエストを生成する。
func requestFrom(method, path, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 5, 1, 10))
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "/api/stories", "192.0.2.1:40000"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 2, 1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// バースト分（2回）は通る
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "/api/stories", "192.0.2.1:40000"))
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	// 3回目はレート制限に引っかかる。ポートが変わっても同じクライアントとして扱う
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "/api/stories", "192.0.2.1:40001"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After should be an integer: %v", err)
	}
	if retryAfter != 1 {
		t.Errorf("Retry-After = %d, want 1", retryAfter)
	}
}

func TestRateLimitMiddleware_429ResponseIsJSON(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1, 1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/api/dates", "192.0.2.9:1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "/api/dates", "192.0.2.9:1"))

	if ct := w.Result().Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
	if body.Category != "system" || body.Action == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1, 1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, requestFrom(http.MethodGet, "/api/stories", "192.0.2.1:1"))
	w1b := httptest.NewRecorder()
	handler.ServeHTTP(w1b, requestFrom(http.MethodGet, "/api/stories", "192.0.2.1:1"))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, requestFrom(http.MethodGet, "/api/stories", "198.51.100.7:1"))

	if w1.Code != http.StatusOK || w1b.Code != http.StatusTooManyRequests {
		t.Errorf("client 1: %d, %d", w1.Code, w1b.Code)
	}
	if w2.Code != http.StatusOK {
		t.Errorf("別クライアントがレート制限の影響を受けた: %d", w2.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGenerateRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(100, 100, 0.5, 1))
	defer rl.Stop()

	generate := rl.GeneralMiddleware()(rl.GenerateMiddleware()(okHandler()))
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	generate.ServeHTTP(w, requestFrom(http.MethodPost, "/api/stories/a1/generate", "192.0.2.1:1"))
	if w.Code != http.StatusOK {
		t.Fatalf("1回目の生成: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	generate.ServeHTTP(w, requestFrom(http.MethodPost, "/api/stories/a1/generate", "192.0.2.1:1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("2回目の生成: status = %d, want 429", w.Code)
	}
	if got := w.Result().Header.Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom(http.MethodGet, "/api/stories", "192.0.2.1:1"))
	if w.Code != http.StatusOK {
		t.Errorf("手動生成の制限がAPI全般に影響した: %d", w.Code)
	}
	if rl.GenerateLimiterCount() != 1 {
		t.Errorf("GenerateLimiterCount() = %d, want 1", rl.GenerateLimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testRateLimiterConfig(10, 10, 1, 1)
	cfg.CleanupInterval = time.Hour
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/api/stories", "192.0.2.1:1"))
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/api/stories", "192.0.2.2:1"))

	// 片方の最終アクセスをTTLより前にする
	rl.general.mu.Lock()
	rl.general.limiters["192.0.2.1"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.general.mu.Unlock()

	rl.cleanup()

	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("GeneralLimiterCount() = %d, want 1", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(6))
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig(6)

	if cfg.GeneralRate != ratePerSec(2) || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d, want 2/120", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.GenerateRate != ratePerSec(0.1) || cfg.GenerateBurst != 6 {
		t.Errorf("generate = %v/%d, want 0.1/6", cfg.GenerateRate, cfg.GenerateBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}

	if got := DefaultRateLimiterConfig(0); got.GenerateBurst != 6 {
		t.Errorf("0以下の指定で既定値が使われていない: %d", got.GenerateBurst)
	}
}
