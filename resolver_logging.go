package docmap

import "time"

// ResolveEvent describes one dynamic template resolution for logging.
type ResolveEvent struct {
	Engine   string
	Template string
	Duration time.Duration
	Err      error
}

// ResolverLogger records resolution events.
type ResolverLogger interface {
	LogResolution(ResolveEvent)
}

// ResolverLoggerFunc adapts a function to ResolverLogger.
type ResolverLoggerFunc func(ResolveEvent)

// LogResolution implements ResolverLogger.
func (f ResolverLoggerFunc) LogResolution(event ResolveEvent) {
	if f != nil {
		f(event)
	}
}

type noopResolverLogger struct{}

func (noopResolverLogger) LogResolution(ResolveEvent) {}

// WithResolverLogger attaches a resolution logger to the resolver.
func WithResolverLogger(logger ResolverLogger) Option {
	return func(cfg *resolverConfig) {
		if logger == nil {
			cfg.logger = noopResolverLogger{}
			return
		}
		cfg.logger = logger
	}
}
