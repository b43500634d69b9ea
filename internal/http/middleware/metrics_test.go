package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndPathFallback(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/rooms/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseRoute := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/rooms/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	for _, p := range []string{"/rooms/a", "/rooms/b", "/nope", "/empty"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/rooms/:id", "200")); got != baseRoute+2 {
		t.Fatalf("route counter %v, want %v", got, baseRoute+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404")); got != base404+1 {
		t.Fatalf("404 counter %v, want %v", got, base404+1)
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight %v", v)
	}
}

func TestMetrics_UpgradeSkipsInflight(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	var during float64
	r.GET("/ws", func(c *gin.Context) {
		during = testutil.ToFloat64(httpInflight)
		c.Status(http.StatusBadRequest)
	})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if during != 0 {
		t.Fatalf("upgrade counted as in-flight: %v", during)
	}
}
