//go:build js_eval

package docmap

import (
	"fmt"

	"github.com/dop251/goja"
)

// jsEngine compiles template segments with goja. Each evaluation runs in a
// fresh runtime; goja runtimes are not safe for concurrent reuse.
type jsEngine struct {
	registry *FunctionRegistry
}

// NewJSEngine constructs an Engine backed by goja.
func NewJSEngine(opts ...JSEngineOption) Engine {
	cfg := applyJSEngineOptions(opts)
	return &jsEngine{registry: cfg.registry}
}

func (e *jsEngine) Compile(expression string) (CompiledExpression, error) {
	program, err := goja.Compile("", wrapJSExpression(expression), false)
	if err != nil {
		return nil, wrapEngineError("js", err)
	}
	return &jsProgram{engine: e, program: program, source: expression}, nil
}

type jsProgram struct {
	engine  *jsEngine
	program *goja.Program
	source  string
}

func (p *jsProgram) Evaluate(env map[string]any) (any, error) {
	vm := goja.New()
	p.engine.injectEnv(vm, env)
	value, err := vm.RunProgram(p.program)
	if err != nil {
		return nil, wrapExpressionError("js", "", p.source, err)
	}
	exported := value.Export()
	if exported == nil || goja.IsNull(value) || goja.IsUndefined(value) {
		return nil, nil
	}
	return exported, nil
}

func (e *jsEngine) injectEnv(vm *goja.Runtime, env map[string]any) {
	for key, value := range env {
		vm.Set(key, value)
	}
	if e.registry != nil {
		vm.Set("call", func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		})
		for _, name := range e.registry.Names() {
			fn := name
			vm.Set(fn, func(arguments ...any) (any, error) {
				return e.registry.Call(fn, arguments...)
			})
		}
	}
}

func wrapJSExpression(expression string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", expression)
}

func jsEngineAvailable() bool {
	return true
}
