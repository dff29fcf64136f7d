package spanz

import (
	"go.uber.org/zap"
)

// Option configures Instrument.
type Option func(*config)

type config struct {
	resolver Resolver
	logger   *zap.Logger
	tags     map[Tag]string
}

func newConfig(opts []Option) *config {
	cfg := &config{
		resolver: ContextResolver{},
		logger:   zap.L().Named("spanz"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithResolver sets how the parent of each call is found.
// If r is nil, this option does nothing.
func WithResolver(r Resolver) Option {
	return func(c *config) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithLogger sets the logger that receives untraced-call warnings.
// If logger is nil, this option does nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTags adds fixed tags to every span the wrapper opens.
func WithTags(tags map[Tag]string) Option {
	return func(c *config) {
		if len(tags) == 0 {
			return
		}
		if c.tags == nil {
			c.tags = make(map[Tag]string, len(tags))
		}
		for k, v := range tags {
			c.tags[k] = v
		}
	}
}

// LogPanics returns a Tracer panic hook that logs recovered handler panics.
//
//	tracer.SetPanicHook(spanz.LogPanics(logger))
func LogPanics(logger *zap.Logger) func(handlerID uint64, r interface{}) {
	if logger == nil {
		logger = zap.L().Named("spanz")
	}
	return func(handlerID uint64, r interface{}) {
		logger.Error("span handler panicked",
			zap.Uint64("handler", handlerID),
			zap.Any("panic", r),
		)
	}
}
