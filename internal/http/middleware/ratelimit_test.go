package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByUserOrIP(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c.Request = req

	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("ip key %q", got)
	}
	c.Set(CtxUserID, "u123")
	if got := KeyByUserOrIP()(c); got != "user:u123" {
		t.Fatalf("user key %q", got)
	}
}

func TestRateLimiter_AllowAndForget(t *testing.T) {
	rl := NewRateLimiter(0.001, 0, nil)
	if rl.burst != 1 {
		t.Fatalf("burst coercion: %d", rl.burst)
	}
	if !rl.Allow("s1") || rl.Allow("s1") {
		t.Fatal("burst of one should allow exactly one event")
	}
	if !rl.Allow("s2") {
		t.Fatal("buckets must be independent")
	}
	rl.Forget("s1")
	if !rl.Allow("s1") {
		t.Fatal("forgotten bucket should start full")
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.ttl = time.Millisecond
	rl.getVisitor("old")
	time.Sleep(5 * time.Millisecond)
	rl.cleanupN = 4999
	rl.getVisitor("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["old"]; ok {
		t.Fatal("idle bucket survived cleanup")
	}
	if _, ok := rl.visitors["new"]; !ok || rl.cleanupN != 0 {
		t.Fatal("cleanup bookkeeping")
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, KeyByUserOrIP())
	r := gin.New()
	r.Use(RequestID())
	r.POST("/m", func(c *gin.Context) {
		if c.GetHeader("X-Replay") != "" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}, rl.Handler(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(replay bool) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/m", nil)
		if replay {
			req.Header.Set("X-Replay", "1")
		}
		r.ServeHTTP(w, req)
		return w
	}

	if send(false).Code != http.StatusCreated || send(false).Code != http.StatusCreated {
		t.Fatal("burst should pass")
	}
	w := send(false)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("third request: %d", w.Code)
	}
	if m := decodeBody(t, w); m["code"] != "rate_limited" || m["request_id"] == "" {
		t.Fatalf("body: %v", m)
	}
	if send(true).Code != http.StatusCreated {
		t.Fatal("replays are not charged")
	}
}
