package ratelimiter

// Logger is the interface used for logging inside the rate limiter.
//
// Implement this interface to provide your own logging backend, or use one of
// the adapters (zap, zerolog, logrus, stdlib log) shipped with this module.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// RejectedHook is invoked by a Policy when a decision denies a request.
// Hooks run synchronously on the request path and should be cheap.
type RejectedHook func(rc RequestContext, d Decision)

// Option configures a Policy.
//
// Example:
//
//	policy, err := ratelimiter.NewPolicy("api", store, cfg,
//	    ratelimiter.WithKeyFunc(ratelimiter.UserKey),
//	    ratelimiter.WithLogger(myLogger),
//	)
type Option func(*Policy)

// WithKeyFunc sets the key generator. Default: IPKey.
func WithKeyFunc(f KeyFunc) Option {
	return func(p *Policy) {
		if f != nil {
			p.keyFunc = f
		}
	}
}

// WithLogger sets the logger. Default: a no-op logger.
func WithLogger(l Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder. Default: a no-op recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Policy) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithOnRejected sets a hook invoked on every denied decision.
func WithOnRejected(h RejectedHook) Option {
	return func(p *Policy) {
		if h != nil {
			p.onRejected = h
		}
	}
}

// WithMessage sets the human-readable message carried by rejection payloads.
func WithMessage(msg string) Option {
	return func(p *Policy) {
		if msg != "" {
			p.message = msg
		}
	}
}

// noopLogger is the default logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Warnf(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}
