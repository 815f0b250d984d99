package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowsBurstThenThrottles(t *testing.T) {
	l := newIPLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, l.allow("10.0.0.1"))

	// A different client has its own bucket.
	assert.True(t, l.allow("10.0.0.2"))
}

func TestLimiterSweepsStaleEntries(t *testing.T) {
	l := newIPLimiter(3, time.Minute)
	now := time.Now()
	l.lastSeen = func() time.Time { return now }

	l.allow("10.0.0.1")
	assert.Len(t, l.limiters, 1)

	now = now.Add(3 * time.Minute)
	l.allow("10.0.0.2")
	assert.Len(t, l.limiters, 1)
	_, ok := l.limiters["10.0.0.2"]
	assert.True(t, ok)
}

func TestRateLimitGuardsOnlyAttachedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	limited := RateLimit(1, time.Minute)
	router.POST("/reconcile", limited, func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/summary", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(method, path string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit(http.MethodPost, "/reconcile"))
	assert.Equal(t, http.StatusTooManyRequests, hit(http.MethodPost, "/reconcile"))
	// The exhausted bucket must not throttle routes without the limiter.
	assert.Equal(t, http.StatusOK, hit(http.MethodGet, "/summary"))
}
