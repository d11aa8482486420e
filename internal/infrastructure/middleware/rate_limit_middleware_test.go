package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"sigrelay/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRateLimitedRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func doRequest(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false
	router := newRateLimitedRouter(cfg)

	for i := 0; i < 50; i++ {
		w := doRequest(router, "10.0.0.1:1234")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 3
	router := newRateLimitedRouter(cfg)

	for i := 0; i < 3; i++ {
		w := doRequest(router, "10.0.0.1:1234")
		assert.Equal(t, http.StatusOK, w.Code, "request %d within burst", i)
	}

	w := doRequest(router, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitIsPerClient(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1
	router := newRateLimitedRouter(cfg)

	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, "10.0.0.1:1234").Code)

	// A different client still has its full budget
	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.2:1234").Code)
}
