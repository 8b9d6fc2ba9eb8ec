package docmap

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-docmap/internal/coerce"
	"github.com/goliatone/go-docmap/pkg/audit"
)

// Resolver expands template strings into concrete document URIs or
// collection names. Literal templates pass through untouched; dynamic
// #{...} segments are evaluated against a ResolutionContext by the
// configured engine. Stateless with respect to call history and safe for
// concurrent use.
type Resolver struct {
	cfg     resolverConfig
	emitter *audit.Emitter
}

// NewResolver constructs a resolver. Without options it compiles segments
// with the expr engine and caches compiled templates in a sync.Map. The
// default engine is built here, not on first use, so a shared resolver never
// mutates its own configuration mid-flight.
func NewResolver(opts ...Option) *Resolver {
	cfg := applyOptions(opts)
	if cfg.cache == nil {
		cfg.cache = NewTemplateCache()
	}
	if cfg.engine == nil {
		var exprOpts []ExprEngineOption
		if cfg.functions != nil {
			exprOpts = append(exprOpts, ExprWithFunctionRegistry(cfg.functions))
		}
		cfg.engine = NewExprEngine(exprOpts...)
	}
	return &Resolver{
		cfg:     cfg,
		emitter: audit.NewEmitter(cfg.hooks, audit.Config{Enabled: true}),
	}
}

// Resolve expands template against ctx.
//
// A blank template is returned unchanged without touching the context. A
// literal template (no #{...} segments) resolves to itself. Dynamic
// segments see three variables: entityClass, entity and id; the id supplier
// runs at most once and only when some segment references id. Absent
// context fields render as the empty string. Compile or evaluation failures
// surface as *ExpressionError.
func (r *Resolver) Resolve(template string, ctx ResolutionContext) (string, error) {
	if strings.TrimSpace(template) == "" {
		return template, nil
	}

	engine, err := r.resolveEngine()
	if err != nil {
		return "", err
	}

	compiled, err := r.compile(template, engine)
	if err != nil {
		return "", err
	}
	if compiled.literal {
		return template, nil
	}

	env := ctx.environment(compiled.needsID)
	engineLabel := engineName(engine)
	start := time.Now()
	result, resolveErr := renderSegments(compiled, env, engineLabel)
	duration := time.Since(start)

	r.logger().LogResolution(ResolveEvent{
		Engine:   engineLabel,
		Template: template,
		Duration: duration,
		Err:      resolveErr,
	})
	if resolveErr != nil {
		return "", resolveErr
	}

	r.emitAudit(ctx, template, result, env)
	return result, nil
}

// ResolveForType expands template with only the entity type in context.
// Equivalent to the full form with entity and identifier absent.
func (r *Resolver) ResolveForType(template string, entityType reflect.Type) (string, error) {
	return r.Resolve(template, ContextForType(entityType))
}

func renderSegments(compiled *compiledTemplate, env map[string]any, engineLabel string) (string, error) {
	var out strings.Builder
	for _, seg := range compiled.segments {
		if !seg.dynamic() {
			out.WriteString(seg.text)
			continue
		}
		value, err := seg.program.Evaluate(env)
		if err != nil {
			return "", wrapExpressionError(engineLabel, compiled.source, seg.source, err)
		}
		out.WriteString(coerce.String(value))
	}
	return out.String(), nil
}

// compile parses and compiles template, consulting the cache first so each
// distinct template string is classified once.
func (r *Resolver) compile(template string, engine Engine) (*compiledTemplate, error) {
	if r.cfg.cache != nil {
		if cached, ok := r.cfg.cache.Get(template); ok {
			if compiled, ok := cached.(*compiledTemplate); ok {
				return compiled, nil
			}
		}
	}
	compiled, err := compileTemplate(template, engine)
	if err != nil {
		return nil, err
	}
	if r.cfg.cache != nil {
		r.cfg.cache.Set(template, compiled)
	}
	return compiled, nil
}

func (r *Resolver) resolveEngine() (Engine, error) {
	if r.cfg.engine == nil {
		return nil, ErrNoEngine
	}
	return r.cfg.engine, nil
}

func (r *Resolver) logger() ResolverLogger {
	if r.cfg.logger != nil {
		return r.cfg.logger
	}
	return noopResolverLogger{}
}

func (r *Resolver) emitAudit(ctx ResolutionContext, template, result string, env map[string]any) {
	if !r.emitter.Enabled() {
		return
	}
	objectType := ""
	if ctx.EntityType != nil {
		objectType = typeLabel(ctx.EntityType)
	}
	_ = r.emitter.Emit(context.Background(), audit.Event{
		Verb:       "resolve",
		ObjectType: objectType,
		ObjectID:   result,
		Metadata: map[string]any{
			"template": template,
			"id":       coerce.String(env["id"]),
		},
	})
}

func engineName(e Engine) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*docmap.exprEngine":
		return "expr"
	case "*docmap.celEngine":
		return "cel"
	case "*docmap.jsEngine":
		return "js"
	default:
		return "custom"
	}
}
