package docmap

import "sync"

// TemplateCache stores compiled templates keyed by their source string.
// Implementations must allow concurrent population; duplicate compilation of
// the same template is tolerated, the resulting programs are equivalent.
type TemplateCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithTemplateCache registers a template cache on the resolver.
func WithTemplateCache(cache TemplateCache) Option {
	return func(cfg *resolverConfig) {
		cfg.cache = cache
	}
}

// NewTemplateCache returns the built-in sync.Map backed cache.
func NewTemplateCache() TemplateCache {
	return &syncMapCache{}
}

type syncMapCache struct {
	m sync.Map
}

func (c *syncMapCache) Get(key string) (any, bool) {
	return c.m.Load(key)
}

func (c *syncMapCache) Set(key string, value any) {
	c.m.Store(key, value)
}
