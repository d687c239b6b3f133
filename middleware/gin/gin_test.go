package gin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limitgate/limitgate/ratelimiter"
	"github.com/limitgate/limitgate/store"
)

func newTestRouter(t *testing.T, limit int64, opts ...ratelimiter.Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	memStore := store.NewMemory(context.Background(), 0)
	policy, err := ratelimiter.NewPolicy("test", memStore, ratelimiter.Config{
		Strategy: ratelimiter.FixedWindow,
		Window:   time.Minute,
		Limit:    limit,
	}, opts...)
	require.NoError(t, err)

	router := gin.New()
	router.Use(RateLimiter(policy))
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	router := newTestRouter(t, 2)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "2;w=60;strategy=fixed-window", rec.Header().Get("RateLimit-Policy"))
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	router := newTestRouter(t, 1)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", payload["error"])
	assert.NotEmpty(t, payload["message"])
}

func TestRateLimiter_UserKeyReadsGinContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	memStore := store.NewMemory(context.Background(), 0)
	policy, err := ratelimiter.NewPolicy("test", memStore, ratelimiter.Config{
		Strategy: ratelimiter.FixedWindow,
		Window:   time.Minute,
		Limit:    1,
	}, ratelimiter.WithKeyFunc(ratelimiter.UserKey))
	require.NoError(t, err)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(KeyUserID, c.GetHeader("X-Test-User"))
	})
	router.Use(RateLimiter(policy))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	asUser := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Test-User", id)
		return req
	}

	router.ServeHTTP(httptest.NewRecorder(), asUser("alice"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser("alice"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asUser("bob"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
