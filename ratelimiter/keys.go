package ratelimiter

// RequestContext is the capability view of an inbound request that key
// generators consume. Hosts provide an adapter from their framework's request
// type (see the middleware packages for net/http and Gin adapters), keeping
// the core decoupled from any specific framework.
//
// Identity accessors return ok=false when the host has not resolved that
// identity; authentication itself is a host concern.
type RequestContext interface {
	// Header returns the named request header, or "" when absent.
	Header(name string) string
	// Method returns the HTTP method.
	Method() string
	// Path returns the request path.
	Path() string
	// UserID returns the authenticated user id, if any.
	UserID() (string, bool)
	// TeamID returns the resolved team id, if any.
	TeamID() (string, bool)
	// APIKeyID returns the API-key session id, if any.
	APIKeyID() (string, bool)
}

// KeyFunc maps a request context to a rate-limit partition key.
//
// Contract: the same logical identity always yields the same key, and
// different identities never collide: every generator emits an unambiguous
// "scheme:value" form, never bare concatenation.
type KeyFunc func(rc RequestContext) string

// IPKey partitions by client IP, read from x-forwarded-for, then x-real-ip,
// then remote-addr, falling back to "unknown".
func IPKey(rc RequestContext) string {
	return "ip:" + clientIP(rc)
}

// UserKey partitions by authenticated user id, with unauthenticated callers
// pooled under "anonymous".
func UserKey(rc RequestContext) string {
	if id, ok := rc.UserID(); ok {
		return "user:" + id
	}
	return "user:anonymous"
}

// TeamKey partitions by team id, with unresolved teams pooled under "unknown".
func TeamKey(rc RequestContext) string {
	if id, ok := rc.TeamID(); ok {
		return "team:" + id
	}
	return "team:unknown"
}

// APIKeyKey partitions by API-key session id. Requests without an API-key
// session fall back to IPKey; that fallback is deliberate policy, so
// unauthenticated traffic still gets limited per source address.
func APIKeyKey(rc RequestContext) string {
	if id, ok := rc.APIKeyID(); ok {
		return "api_key:" + id
	}
	return IPKey(rc)
}

// CompositeKey partitions by user and IP together when the user is known,
// else by IP alone.
func CompositeKey(rc RequestContext) string {
	ip := clientIP(rc)
	if id, ok := rc.UserID(); ok {
		return "composite:" + id + ":" + ip
	}
	return "ip:" + ip
}

// EndpointKey partitions by user, method and path, so each endpoint gets its
// own budget per user.
func EndpointKey(rc RequestContext) string {
	user := "anonymous"
	if id, ok := rc.UserID(); ok {
		user = id
	}
	return "endpoint:" + user + ":" + rc.Method() + ":" + rc.Path()
}

func clientIP(rc RequestContext) string {
	for _, h := range []string{"x-forwarded-for", "x-real-ip", "remote-addr"} {
		if v := rc.Header(h); v != "" {
			return v
		}
	}
	return "unknown"
}
