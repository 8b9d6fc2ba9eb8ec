package docmap

import (
	"reflect"

	"github.com/goliatone/go-docmap/pkg/audit"
)

// IDSupplier lazily produces an entity identifier. A resolver invokes it at
// most once per resolution, and only when the template actually references
// the id variable.
type IDSupplier func() any

// ResolutionContext carries the values a template may reference while it is
// being resolved. All fields are independently optional; an unset field
// renders as a null expression value, never as an error.
type ResolutionContext struct {
	EntityType reflect.Type
	Entity     any
	ID         IDSupplier
}

// ContextForType builds a context exposing only the entity type.
func ContextForType(entityType reflect.Type) ResolutionContext {
	return ResolutionContext{EntityType: entityType}
}

// environment materialises the three expression variables. The id supplier
// runs only when the caller asks for it, preserving lazy identifier
// semantics for templates that never mention id. An absent entity binds as
// an empty map so member reads evaluate to null rather than failing.
func (c ResolutionContext) environment(needsID bool) map[string]any {
	entity := c.Entity
	if entity == nil {
		entity = map[string]any{}
	}
	env := map[string]any{
		"entityClass": classBinding(c.EntityType),
		"entity":      entity,
		"id":          nil,
	}
	if needsID && c.ID != nil {
		env["id"] = c.ID()
	}
	return env
}

// classBinding exposes a type descriptor as named expression properties.
// Pointer types are unwrapped so #{entityClass.simpleName} behaves the same
// for *Foo and Foo. Without a type every property is present but null, so
// engines that treat missing map keys as errors still evaluate cleanly.
func classBinding(t reflect.Type) map[string]any {
	if t == nil {
		return map[string]any{
			"simpleName": nil,
			"name":       nil,
			"package":    nil,
		}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	binding := map[string]any{
		"simpleName": t.Name(),
		"package":    t.PkgPath(),
	}
	if t.PkgPath() != "" && t.Name() != "" {
		binding["name"] = t.PkgPath() + "." + t.Name()
	} else {
		binding["name"] = t.String()
	}
	return binding
}

// Engine compiles a single expression segment extracted from a template.
// Implementations must be safe for concurrent use.
type Engine interface {
	Compile(expression string) (CompiledExpression, error)
}

// CompiledExpression is a reusable expression program evaluated against the
// named variables of a resolution environment.
type CompiledExpression interface {
	Evaluate(env map[string]any) (any, error)
}

// Option configures a Resolver.
type Option func(*resolverConfig)

type resolverConfig struct {
	engine    Engine
	cache     TemplateCache
	functions *FunctionRegistry
	logger    ResolverLogger
	hooks     audit.Hooks
}

func applyOptions(opts []Option) resolverConfig {
	cfg := resolverConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEngine configures the expression engine used for dynamic segments.
func WithEngine(engine Engine) Option {
	return func(cfg *resolverConfig) {
		cfg.engine = engine
	}
}

// WithFunctions exposes the registry's functions inside template segments.
func WithFunctions(registry *FunctionRegistry) Option {
	return func(cfg *resolverConfig) {
		cfg.functions = registry
	}
}

// WithAuditHooks attaches hooks notified after each dynamic resolution.
func WithAuditHooks(hooks audit.Hooks) Option {
	return func(cfg *resolverConfig) {
		cfg.hooks = hooks
	}
}
