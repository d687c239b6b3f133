package ratelimiter

import "time"

// Config is an immutable policy descriptor: the strategy, the accounting
// window, the limit, and strategy-specific parameters. A Config is built once
// at policy-registration time and shared read-only across all requests using
// that policy.
//
// Zero-valued strategy parameters are filled with defaults derived from Limit
// and Window, mirroring common middleware conventions: a token bucket defaults
// to capacity=Limit refilled at Limit per Window, and a leaky bucket defaults
// to leaking one unit per second.
type Config struct {
	// Strategy selects the algorithm.
	Strategy Strategy
	// Window is the duration of the accounting window. Required.
	Window time.Duration
	// Limit is the maximum admitted operations per window. A non-positive
	// limit is valid and always denies.
	Limit int64

	// Capacity is the token bucket's maximum token count. Defaults to Limit.
	Capacity int64
	// RefillRate is tokens added per refill period. Defaults to
	// Limit/Window-in-seconds. A non-positive rate is accepted and simply
	// never refills (a fixed ceiling).
	RefillRate float64
	// RefillPeriod is the interval between refills. Defaults to one second.
	RefillPeriod time.Duration
	// LeakRate is leaky bucket units drained per second. Defaults to 1.
	LeakRate float64
	// Precision is the sliding window sub-window count, accepted for future
	// optimization. Exact counting does not depend on it. Defaults to 10.
	Precision int
}

// withDefaults returns a copy of c with strategy-specific defaults applied.
func (c Config) withDefaults() Config {
	if c.Capacity == 0 {
		c.Capacity = c.Limit
	}
	if c.RefillRate == 0 && c.Window > 0 {
		c.RefillRate = float64(c.Limit) / c.Window.Seconds()
	}
	if c.RefillPeriod == 0 {
		c.RefillPeriod = time.Second
	}
	if c.LeakRate == 0 {
		c.LeakRate = 1
	}
	if c.Precision == 0 {
		c.Precision = 10
	}
	return c
}

// Validate reports structural problems with the config as a *ConfigError.
// It runs on the defaulted form, so only genuinely unusable parameters fail.
func (c Config) Validate() error {
	switch c.Strategy {
	case FixedWindow, SlidingWindow, TokenBucket, LeakyBucket:
	case "":
		return &ConfigError{Field: "Strategy", Reason: "is required"}
	default:
		return &ConfigError{Field: "Strategy", Reason: "is unknown: " + string(c.Strategy)}
	}
	if c.Window <= 0 {
		return &ConfigError{Field: "Window", Reason: "must be positive"}
	}
	if c.RefillPeriod < 0 {
		return &ConfigError{Field: "RefillPeriod", Reason: "must not be negative"}
	}
	if c.LeakRate < 0 {
		return &ConfigError{Field: "LeakRate", Reason: "must not be negative"}
	}
	if c.Precision < 0 {
		return &ConfigError{Field: "Precision", Reason: "must not be negative"}
	}
	return nil
}

// New creates the Limiter described by cfg on top of store.
//
// It applies defaults, validates, and dispatches to the strategy constructor.
// Invalid configs fail here, loudly, rather than per request.
func New(store Store, cfg Config) (Limiter, error) {
	if store == nil {
		return nil, &ConfigError{Field: "Store", Reason: "is required"}
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Strategy {
	case FixedWindow:
		return newFixedWindow(store, cfg), nil
	case SlidingWindow:
		return newSlidingWindow(store, cfg), nil
	case TokenBucket:
		return newTokenBucket(store, cfg), nil
	default:
		return newLeakyBucket(store, cfg), nil
	}
}
