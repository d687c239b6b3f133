package ratelimiter

import "time"

// Predefined policy profiles covering common protection tiers. Each is a thin
// constructor over NewPolicy; callers can append options to override the key
// generator, logger or hooks.

// AuthStrictPolicy guards authentication endpoints: 5 attempts per 15 minutes
// on a sliding window, keyed by user+IP so shared NATs are not pooled.
func AuthStrictPolicy(store Store, opts ...Option) (*Policy, error) {
	base := []Option{
		WithKeyFunc(CompositeKey),
		WithMessage("Too many authentication attempts. Please wait before trying again."),
	}
	return NewPolicy("auth-strict", store, Config{
		Strategy: SlidingWindow,
		Window:   15 * time.Minute,
		Limit:    5,
	}, append(base, opts...)...)
}

// APIGeneralPolicy covers general API traffic: 100 requests per minute with
// bursts up to 120, keyed by user.
func APIGeneralPolicy(store Store, opts ...Option) (*Policy, error) {
	base := []Option{WithKeyFunc(UserKey)}
	return NewPolicy("api-general", store, Config{
		Strategy:     TokenBucket,
		Window:       time.Minute,
		Limit:        100,
		Capacity:     120,
		RefillRate:   100.0 / 60,
		RefillPeriod: time.Second,
	}, append(base, opts...)...)
}

// AuthenticatedPolicy is the lenient tier for signed-in users: 1000 requests
// per minute on a sliding window, keyed by user.
func AuthenticatedPolicy(store Store, opts ...Option) (*Policy, error) {
	base := []Option{WithKeyFunc(UserKey)}
	return NewPolicy("authenticated", store, Config{
		Strategy: SlidingWindow,
		Window:   time.Minute,
		Limit:    1000,
	}, append(base, opts...)...)
}

// UnauthenticatedPolicy is the strict tier for anonymous traffic: 60 requests
// per minute on a fixed window, keyed by IP.
func UnauthenticatedPolicy(store Store, opts ...Option) (*Policy, error) {
	return NewPolicy("unauthenticated", store, Config{
		Strategy: FixedWindow,
		Window:   time.Minute,
		Limit:    60,
	}, opts...)
}

// FileUploadPolicy smooths upload traffic: 10 uploads per 10 minutes leaking
// one slot per minute, keyed by user.
func FileUploadPolicy(store Store, opts ...Option) (*Policy, error) {
	base := []Option{
		WithKeyFunc(UserKey),
		WithMessage("File upload rate limit exceeded. Please wait before uploading again."),
	}
	return NewPolicy("file-upload", store, Config{
		Strategy: LeakyBucket,
		Window:   10 * time.Minute,
		Limit:    10,
		LeakRate: 1.0 / 60,
	}, append(base, opts...)...)
}

// SearchPolicy allows search bursts while capping sustained load: 30 searches
// per minute with bursts up to 50, keyed per endpoint and user.
func SearchPolicy(store Store, opts ...Option) (*Policy, error) {
	base := []Option{WithKeyFunc(EndpointKey)}
	return NewPolicy("search", store, Config{
		Strategy:     TokenBucket,
		Window:       time.Minute,
		Limit:        30,
		Capacity:     50,
		RefillRate:   0.5,
		RefillPeriod: time.Second,
	}, append(base, opts...)...)
}
