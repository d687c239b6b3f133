package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

// degradedWindow is the synthetic reset horizon used for fail-open decisions
// when the store cannot be reached.
const degradedWindow = time.Minute

// RejectionKind is the machine-parseable error kind carried by every
// rejection payload.
const RejectionKind = "RATE_LIMIT_EXCEEDED"

// Rejection is the standardized payload describing a denied request. Hosts
// decide how to serialize it; the JSON tags match the wire contract used by
// the bundled middleware.
type Rejection struct {
	ErrorKind         string    `json:"error"`
	Message           string    `json:"message"`
	RetryAfterSeconds int       `json:"retryAfter"`
	Limit             int64     `json:"limit"`
	Remaining         int64     `json:"remaining"`
	ResetTime         time.Time `json:"resetTime"`
	Strategy          Strategy  `json:"strategy"`
}

// SuggestedStatus is the HTTP status a host should use for a Rejection.
func (Rejection) SuggestedStatus() int { return http.StatusTooManyRequests }

// Policy binds a strategy engine, a key generator and thresholds into a
// reusable named limiter.
//
// Per evaluation the policy moves through EVALUATING into exactly one of
// three outcomes: admitted, rejected, or degraded-admitted. Store failures
// are swallowed here and converted into fail-open admissions: the limiter
// must never become the reason a protected resource is unreachable. A
// degraded admission is indistinguishable from a normal one to the end user;
// operators see it through logs and metrics.
type Policy struct {
	name    string
	limiter Limiter
	config  Config

	keyFunc    KeyFunc
	logger     Logger
	recorder   Recorder
	onRejected RejectedHook
	message    string

	now func() time.Time
}

// NewPolicy validates cfg, builds the strategy engine on store and returns
// the bound policy. Configuration errors surface here, at registration time.
func NewPolicy(name string, store Store, cfg Config, opts ...Option) (*Policy, error) {
	limiter, err := New(store, cfg)
	if err != nil {
		return nil, err
	}

	p := &Policy{
		name:     name,
		limiter:  limiter,
		config:   cfg.withDefaults(),
		keyFunc:  IPKey,
		logger:   noopLogger{},
		recorder: noopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the policy's registered name.
func (p *Policy) Name() string { return p.name }

// Strategy returns the bound strategy.
func (p *Policy) Strategy() Strategy { return p.config.Strategy }

// Window returns the bound accounting window.
func (p *Policy) Window() time.Duration { return p.config.Window }

// Evaluate resolves the partition key for rc, runs the bound engine and
// returns the decision. It never returns an error: store failures degrade to
// fail-open admission.
func (p *Policy) Evaluate(ctx context.Context, rc RequestContext) Decision {
	key := p.keyFunc(rc)
	return p.EvaluateKey(ctx, key)
}

// EvaluateKey is Evaluate for callers that already hold a partition key.
func (p *Policy) EvaluateKey(ctx context.Context, key string) Decision {
	start := p.now()

	d, err := p.limiter.Allow(ctx, key)
	p.recorder.Observe(MetricLatency, p.now().Sub(start).Seconds(), p.tags(nil))
	if err != nil {
		return p.degrade(key, err)
	}

	if !d.Allowed {
		p.recorder.Add(MetricDecisions, 1, p.tags(map[string]string{"outcome": "rejected"}))
		p.logger.Debugf("rate limit exceeded for key %q on policy %q (current=%d limit=%d)",
			key, p.name, d.Current, d.Limit)
		return d
	}

	p.recorder.Add(MetricDecisions, 1, p.tags(map[string]string{"outcome": "admitted"}))
	return d
}

// Reject interprets a denied decision into the standardized payload and fires
// the rejection hook, if any.
func (p *Policy) Reject(rc RequestContext, d Decision) Rejection {
	if p.onRejected != nil {
		p.onRejected(rc, d)
	}
	return p.Rejection(d)
}

// Rejection builds the standardized payload for a denied decision.
func (p *Policy) Rejection(d Decision) Rejection {
	now := p.now()
	retryAfter := int(math.Ceil(d.RetryAfter(now).Seconds()))

	msg := p.message
	if msg == "" {
		msg = fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter)
	}

	return Rejection{
		ErrorKind:         RejectionKind,
		Message:           msg,
		RetryAfterSeconds: retryAfter,
		Limit:             d.Limit,
		Remaining:         d.Remaining,
		ResetTime:         d.ResetTime,
		Strategy:          d.Strategy,
	}
}

// degrade synthesizes a fail-open admission after a store failure.
func (p *Policy) degrade(key string, err error) Decision {
	kind := StoreErrorOperation
	if se, ok := err.(*StoreError); ok {
		kind = se.Kind
	}

	p.logger.Errorf("store failure on policy %q for key %q, admitting fail-open: %v", p.name, key, err)
	p.recorder.Add(MetricStoreErrors, 1, p.tags(map[string]string{"kind": string(kind)}))
	p.recorder.Add(MetricDecisions, 1, p.tags(map[string]string{"outcome": "degraded"}))

	limit := p.config.Limit
	return Decision{
		Allowed:   true,
		Degraded:  true,
		Limit:     limit,
		Current:   1,
		Remaining: limit - 1,
		ResetTime: p.now().Add(degradedWindow),
		TotalHits: 1,
		Strategy:  p.config.Strategy,
	}
}

func (p *Policy) tags(extra map[string]string) map[string]string {
	tags := map[string]string{
		"policy":   p.name,
		"strategy": string(p.config.Strategy),
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}
