// Package nethttp binds rate-limit policies to standard net/http servers.
package nethttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/limitgate/limitgate/ratelimiter"
)

type contextKey string

// Context keys under which the host's auth layer stores resolved identities.
// The middleware only reads these; authentication itself is a host concern.
const (
	ContextKeyUserID   contextKey = "ratelimit.userID"
	ContextKeyTeamID   contextKey = "ratelimit.teamID"
	ContextKeyAPIKeyID contextKey = "ratelimit.apiKeyID"
)

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, id)
}

// WithTeamID returns a context carrying the resolved team id.
func WithTeamID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyTeamID, id)
}

// WithAPIKeyID returns a context carrying the API-key session id.
func WithAPIKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyAPIKeyID, id)
}

// requestContext adapts *http.Request to ratelimiter.RequestContext.
type requestContext struct {
	r *http.Request
}

func (rc requestContext) Header(name string) string {
	if name == "remote-addr" {
		return rc.r.RemoteAddr
	}
	return rc.r.Header.Get(name)
}

func (rc requestContext) Method() string { return rc.r.Method }
func (rc requestContext) Path() string   { return rc.r.URL.Path }

func (rc requestContext) UserID() (string, bool)   { return ctxString(rc.r.Context(), ContextKeyUserID) }
func (rc requestContext) TeamID() (string, bool)   { return ctxString(rc.r.Context(), ContextKeyTeamID) }
func (rc requestContext) APIKeyID() (string, bool) { return ctxString(rc.r.Context(), ContextKeyAPIKeyID) }

func ctxString(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Middleware creates a middleware handler for the standard net/http library.
//
// It wraps an existing http.Handler and evaluates every request against the
// given policy. Rate-limit metadata is attached to every response via both the
// standard `RateLimit-*` and legacy `X-RateLimit-*` headers; denied requests
// are answered with 429 and the policy's JSON rejection payload. Store
// failures fail open: the wrapped handler always runs.
//
// Example:
//
//	policy, _ := ratelimiter.NewPolicy("api", store, cfg)
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", myHandler)
//	http.ListenAndServe(":8080", nethttp.Middleware(policy)(mux))
func Middleware(policy *ratelimiter.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := requestContext{r: r}
			decision := policy.Evaluate(r.Context(), rc)

			setRateLimitHeaders(w.Header(), policy, decision)

			if !decision.Allowed {
				rejection := policy.Reject(rc, decision)
				w.Header().Set("Retry-After", strconv.Itoa(rejection.RetryAfterSeconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(rejection.SuggestedStatus())
				json.NewEncoder(w).Encode(rejection)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, policy *ratelimiter.Policy, d ratelimiter.Decision) {
	limit := strconv.FormatInt(d.Limit, 10)
	remaining := strconv.FormatInt(d.Remaining, 10)
	reset := strconv.FormatInt(d.ResetTime.Unix(), 10)

	h.Set("RateLimit-Limit", limit)
	h.Set("RateLimit-Remaining", remaining)
	h.Set("RateLimit-Reset", reset)
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d;strategy=%s",
		d.Limit, int(policy.Window().Seconds()), d.Strategy))

	h.Set("X-RateLimit-Limit", limit)
	h.Set("X-RateLimit-Remaining", remaining)
	h.Set("X-RateLimit-Reset", reset)
}
