// Package gin binds rate-limit policies to the Gin web framework.
package gin

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/limitgate/limitgate/ratelimiter"
)

// Gin context keys under which the host's auth middleware stores resolved
// identities.
const (
	KeyUserID   = "userID"
	KeyTeamID   = "teamID"
	KeyAPIKeyID = "apiKeyID"
)

// ginContext adapts *gin.Context to ratelimiter.RequestContext.
type ginContext struct {
	c *gin.Context
}

func (g ginContext) Header(name string) string {
	if name == "remote-addr" {
		return g.c.Request.RemoteAddr
	}
	return g.c.GetHeader(name)
}

func (g ginContext) Method() string { return g.c.Request.Method }
func (g ginContext) Path() string   { return g.c.Request.URL.Path }

func (g ginContext) UserID() (string, bool)   { return g.value(KeyUserID) }
func (g ginContext) TeamID() (string, bool)   { return g.value(KeyTeamID) }
func (g ginContext) APIKeyID() (string, bool) { return g.value(KeyAPIKeyID) }

func (g ginContext) value(key string) (string, bool) {
	v := g.c.GetString(key)
	return v, v != ""
}

// RateLimiter creates a Gin middleware handler bound to the given policy.
//
// It evaluates every request, attaches rate-limit headers to the response,
// and aborts denied requests with 429 and the policy's JSON rejection
// payload. Store failures fail open and the request proceeds.
//
// Example:
//
//	policy, _ := ratelimiter.NewPolicy("api", store, cfg)
//	router := gin.Default()
//	router.Use(ginmiddleware.RateLimiter(policy))
func RateLimiter(policy *ratelimiter.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := ginContext{c: c}
		decision := policy.Evaluate(c.Request.Context(), rc)

		limit := strconv.FormatInt(decision.Limit, 10)
		remaining := strconv.FormatInt(decision.Remaining, 10)
		reset := strconv.FormatInt(decision.ResetTime.Unix(), 10)

		c.Header("RateLimit-Limit", limit)
		c.Header("RateLimit-Remaining", remaining)
		c.Header("RateLimit-Reset", reset)
		c.Header("RateLimit-Policy", fmt.Sprintf("%d;w=%d;strategy=%s",
			decision.Limit, int(policy.Window().Seconds()), decision.Strategy))
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", remaining)
		c.Header("X-RateLimit-Reset", reset)

		if !decision.Allowed {
			rejection := policy.Reject(rc, decision)
			c.Header("Retry-After", strconv.Itoa(rejection.RetryAfterSeconds))
			c.AbortWithStatusJSON(rejection.SuggestedStatus(), rejection)
			return
		}

		c.Next()
	}
}
