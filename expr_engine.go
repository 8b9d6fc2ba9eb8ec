package docmap

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEngineOption configures an expr engine instance.
type ExprEngineOption func(*exprEngine)

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr engine.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEngineOption {
	return func(e *exprEngine) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// exprEngine compiles template segments with github.com/expr-lang/expr.
type exprEngine struct {
	registry *FunctionRegistry
}

// NewExprEngine constructs the default Engine backed by expr-lang/expr.
func NewExprEngine(opts ...ExprEngineOption) Engine {
	e := &exprEngine{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *exprEngine) Compile(expression string) (CompiledExpression, error) {
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.registryNames() {
		options = append(options, exprlang.Function(name, e.registryFunction(name)))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapEngineError("expr", err)
	}
	return &exprProgram{engine: e, program: program, source: expression}, nil
}

type exprProgram struct {
	engine  *exprEngine
	program *exprvm.Program
	source  string
}

func (p *exprProgram) Evaluate(env map[string]any) (any, error) {
	result, err := exprlang.Run(p.program, p.engine.bind(env))
	if err != nil {
		return nil, wrapExpressionError("expr", "", p.source, err)
	}
	return result, nil
}

// bind layers registry functions over the resolution variables so segments
// can call registered helpers directly or through call(name, args...).
func (e *exprEngine) bind(env map[string]any) map[string]any {
	if e.registry == nil {
		return env
	}
	bound := make(map[string]any, len(env)+e.registry.Len()+1)
	for key, value := range env {
		bound[key] = value
	}
	bound["call"] = func(name string, arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
	for _, name := range e.registry.Names() {
		fn := name
		bound[fn] = func(arguments ...any) (any, error) {
			return e.registry.Call(fn, arguments...)
		}
	}
	return bound
}

func (e *exprEngine) registryNames() []string {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Names()
}

func (e *exprEngine) registryFunction(name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}
