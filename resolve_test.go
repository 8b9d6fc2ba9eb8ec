package docmap

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type testBook struct {
	ID    string
	Title string
}

var engineFactories = []struct {
	name      string
	available func() bool
	new       func(registry *FunctionRegistry) Engine
}{
	{
		name:      "expr",
		available: func() bool { return true },
		new: func(registry *FunctionRegistry) Engine {
			opts := []ExprEngineOption{}
			if registry != nil {
				opts = append(opts, ExprWithFunctionRegistry(registry))
			}
			return NewExprEngine(opts...)
		},
	},
	{
		name:      "cel",
		available: func() bool { return true },
		new: func(registry *FunctionRegistry) Engine {
			opts := []CELEngineOption{}
			if registry != nil {
				opts = append(opts, CELWithFunctionRegistry(registry))
			}
			return NewCELEngine(opts...)
		},
	},
	{
		name:      "js",
		available: jsEngineAvailable,
		new: func(registry *FunctionRegistry) Engine {
			opts := []JSEngineOption{}
			if registry != nil {
				opts = append(opts, JSWithFunctionRegistry(registry))
			}
			return NewJSEngine(opts...)
		},
	},
}

func TestResolveBlankTemplatesPassThrough(t *testing.T) {
	resolver := NewResolver()
	supplierCalls := 0
	ctx := ResolutionContext{
		EntityType: reflect.TypeOf(testBook{}),
		ID:         func() any { supplierCalls++; return "42" },
	}

	for _, template := range []string{"", "   ", "\t\n"} {
		got, err := resolver.Resolve(template, ctx)
		if err != nil {
			t.Fatalf("unexpected error for blank template %q: %v", template, err)
		}
		if got != template {
			t.Fatalf("expected blank template %q unchanged, got %q", template, got)
		}
	}
	if supplierCalls != 0 {
		t.Fatalf("blank templates must not touch the context, supplier ran %d times", supplierCalls)
	}
}

func TestResolveLiteralTemplatePassesThrough(t *testing.T) {
	resolver := NewResolver()
	supplierCalls := 0
	ctx := ResolutionContext{
		Entity: testBook{Title: "Dune"},
		ID:     func() any { supplierCalls++; return "42" },
	}

	got, err := resolver.Resolve("books", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "books" {
		t.Fatalf("expected literal pass-through, got %q", got)
	}
	if supplierCalls != 0 {
		t.Fatalf("literal resolution must not invoke the id supplier")
	}

	again, err := resolver.Resolve("books", ctx)
	if err != nil || again != "books" {
		t.Fatalf("literal resolution must be idempotent, got %q err=%v", again, err)
	}
}

func TestResolveEntityClassSimpleName(t *testing.T) {
	for _, factory := range engineFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			if !factory.available() {
				t.Skipf("%s engine unavailable in this build", factory.name)
			}
			resolver := NewResolver(WithEngine(factory.new(nil)))
			got, err := resolver.Resolve("#{entityClass.simpleName}", ContextForType(reflect.TypeOf(testBook{})))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != "testBook" {
				t.Fatalf("expected type simple name, got %q", got)
			}
		})
	}
}

func TestResolveForTypeUnwrapsPointers(t *testing.T) {
	resolver := NewResolver()
	got, err := resolver.ResolveForType("#{entityClass.simpleName}", reflect.TypeOf(&testBook{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "testBook" {
		t.Fatalf("expected pointer type to resolve like its element, got %q", got)
	}
}

func TestResolveIDSupplierRunsExactlyOnce(t *testing.T) {
	var calls int32
	ctx := ResolutionContext{
		ID: func() any {
			atomic.AddInt32(&calls, 1)
			return "42"
		},
	}

	resolver := NewResolver()
	got, err := resolver.Resolve("/docs/#{id}.xml", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/docs/42.xml" {
		t.Fatalf("expected /docs/42.xml, got %q", got)
	}
	if calls != 1 {
		t.Fatalf("expected supplier to run exactly once, ran %d times", calls)
	}

	// Two id references still resolve from a single supplier invocation.
	calls = 0
	got, err = resolver.Resolve("/docs/#{id}/#{id}.xml", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/docs/42/42.xml" {
		t.Fatalf("expected both segments rendered, got %q", got)
	}
	if calls != 1 {
		t.Fatalf("expected one supplier invocation for repeated references, ran %d times", calls)
	}
}

func TestResolveSupplierNotRunWithoutIDReference(t *testing.T) {
	var calls int32
	ctx := ResolutionContext{
		Entity: testBook{Title: "Dune"},
		ID: func() any {
			atomic.AddInt32(&calls, 1)
			return "42"
		},
	}

	resolver := NewResolver()
	got, err := resolver.Resolve("/docs/#{entity.Title}.xml", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/docs/Dune.xml" {
		t.Fatalf("expected entity property rendering, got %q", got)
	}
	if calls != 0 {
		t.Fatalf("supplier must stay lazy for templates without id, ran %d times", calls)
	}
}

func TestResolveAbsentIDRendersEmpty(t *testing.T) {
	for _, factory := range engineFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			if !factory.available() {
				t.Skipf("%s engine unavailable in this build", factory.name)
			}
			resolver := NewResolver(WithEngine(factory.new(nil)))
			got, err := resolver.Resolve("#{id}", ResolutionContext{})
			if err != nil {
				t.Fatalf("absent id must not fail, got %v", err)
			}
			if got != "" {
				t.Fatalf("absent id renders as empty string, got %q", got)
			}
		})
	}
}

func TestResolveAbsentContextFieldsRenderEmpty(t *testing.T) {
	templates := []string{"#{entityClass.simpleName}", "#{entity.Title}"}
	for _, factory := range engineFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			if !factory.available() {
				t.Skipf("%s engine unavailable in this build", factory.name)
			}
			resolver := NewResolver(WithEngine(factory.new(nil)))
			for _, template := range templates {
				got, err := resolver.Resolve(template, ResolutionContext{})
				if err != nil {
					t.Fatalf("absent context field must not fail for %q: %v", template, err)
				}
				if got != "" {
					t.Fatalf("expected %q to render empty, got %q", template, got)
				}
			}
		})
	}
}

func TestResolveConcurrentWithDefaultEngine(t *testing.T) {
	resolver := NewResolver()
	ctx := ResolutionContext{
		EntityType: reflect.TypeOf(testBook{}),
		ID:         func() any { return "42" },
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := resolver.Resolve("/#{entityClass.simpleName}/#{id}.xml", ctx)
			if err != nil {
				errs <- err
				return
			}
			if got != "/testBook/42.xml" {
				errs <- fmt.Errorf("unexpected result %q", got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent resolve failed: %v", err)
	}
}

func TestResolveDynamicIdempotence(t *testing.T) {
	resolver := NewResolver()
	ctx := ResolutionContext{
		EntityType: reflect.TypeOf(testBook{}),
		ID:         func() any { return 7 },
	}

	first, err := resolver.Resolve("/#{entityClass.simpleName}/#{id}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := resolver.Resolve("/#{entityClass.simpleName}/#{id}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second || first != "/testBook/7" {
		t.Fatalf("expected identical results, got %q and %q", first, second)
	}
}

func TestResolveMalformedExpressionFails(t *testing.T) {
	resolver := NewResolver()

	_, err := resolver.Resolve("/docs/#{1 +}.xml", ResolutionContext{})
	if err == nil {
		t.Fatalf("expected compile failure for malformed expression")
	}
	var exprErr *ExpressionError
	if !errors.As(err, &exprErr) {
		t.Fatalf("expected *ExpressionError, got %T: %v", err, err)
	}
	if exprErr.Template != "/docs/#{1 +}.xml" {
		t.Fatalf("expected template metadata, got %q", exprErr.Template)
	}
}

func TestResolveUnterminatedSegmentFails(t *testing.T) {
	resolver := NewResolver()

	_, err := resolver.Resolve("/docs/#{id.xml", ResolutionContext{})
	if err == nil {
		t.Fatalf("expected failure for unterminated segment")
	}
	var exprErr *ExpressionError
	if !errors.As(err, &exprErr) {
		t.Fatalf("expected *ExpressionError, got %T: %v", err, err)
	}
}

func TestResolveUsesRegisteredFunctions(t *testing.T) {
	functions := NewFunctionRegistry()
	if err := functions.Register("upper", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("upper expects one argument")
		}
		return strings.ToUpper(args[0].(string)), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	resolver := NewResolver(WithFunctions(functions))
	got, err := resolver.Resolve("/#{upper(entity.Title)}", ResolutionContext{Entity: testBook{Title: "dune"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/DUNE" {
		t.Fatalf("expected registered function applied, got %q", got)
	}
}

func TestResolveCELCallsRegisteredFunctions(t *testing.T) {
	functions := NewFunctionRegistry()
	if err := functions.Register("upper", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("upper expects one argument")
		}
		return strings.ToUpper(args[0].(string)), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	engine := NewCELEngine(CELWithFunctionRegistry(functions))
	resolver := NewResolver(WithEngine(engine))
	got, err := resolver.Resolve(`/#{call("upper", entity.Title)}`, ResolutionContext{Entity: testBook{Title: "dune"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/DUNE" {
		t.Fatalf("expected registry call through cel, got %q", got)
	}
}

type countingCache struct {
	inner  TemplateCache
	misses int32
}

func (c *countingCache) Get(key string) (any, bool) {
	value, ok := c.inner.Get(key)
	if !ok {
		atomic.AddInt32(&c.misses, 1)
	}
	return value, ok
}

func (c *countingCache) Set(key string, value any) {
	c.inner.Set(key, value)
}

func TestResolveCompilesEachTemplateOnce(t *testing.T) {
	cache := &countingCache{inner: NewTemplateCache()}
	resolver := NewResolver(WithTemplateCache(cache))
	ctx := ResolutionContext{ID: func() any { return "7" }}

	for i := 0; i < 5; i++ {
		if _, err := resolver.Resolve("/docs/#{id}.xml", ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if cache.misses != 1 {
		t.Fatalf("expected one compilation per distinct template, saw %d misses", cache.misses)
	}
}

func TestResolveLogsResolutionEvents(t *testing.T) {
	var events []ResolveEvent
	resolver := NewResolver(WithResolverLogger(ResolverLoggerFunc(func(event ResolveEvent) {
		events = append(events, event)
	})))

	if _, err := resolver.Resolve("/docs/#{id}.xml", ResolutionContext{ID: func() any { return 1 }}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one logged event, got %d", len(events))
	}
	if events[0].Engine != "expr" {
		t.Fatalf("expected expr engine label, got %q", events[0].Engine)
	}
	if events[0].Template != "/docs/#{id}.xml" {
		t.Fatalf("unexpected template in event: %q", events[0].Template)
	}
	if events[0].Err != nil {
		t.Fatalf("unexpected event error: %v", events[0].Err)
	}
}
