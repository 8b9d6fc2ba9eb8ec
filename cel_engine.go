package docmap

import (
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/goliatone/go-docmap/internal/coerce"
)

// CELEngineOption configures the CEL engine.
type CELEngineOption func(*celEngine)

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL engine.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEngineOption {
	return func(e *celEngine) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

type celEngine struct {
	registry *FunctionRegistry
}

// NewCELEngine constructs an Engine backed by cel-go.
func NewCELEngine(opts ...CELEngineOption) Engine {
	e := &celEngine{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEngine) Compile(expression string) (CompiledExpression, error) {
	env, err := e.buildEnv()
	if err != nil {
		return nil, wrapEngineError("cel", err)
	}
	ast, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEngineError("cel", issues.Err())
	}
	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEngineError("cel", issues.Err())
	}
	program, err := env.Program(checked)
	if err != nil {
		return nil, wrapEngineError("cel", err)
	}
	return &celProgram{engine: e, program: program, source: expression}, nil
}

func (e *celEngine) buildEnv() (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("entityClass", celgo.DynType),
		celgo.Variable("entity", celgo.DynType),
		celgo.Variable("id", celgo.DynType),
	}
	if e.registry != nil {
		binding := celgo.FunctionBinding(e.callBinding())
		opts = append(opts, celgo.Function("call",
			celgo.Overload("call_string",
				[]*celgo.Type{celgo.StringType}, celgo.DynType, binding),
			celgo.Overload("call_string_dyn",
				[]*celgo.Type{celgo.StringType, celgo.DynType}, celgo.DynType, binding),
			celgo.Overload("call_string_dyn_dyn",
				[]*celgo.Type{celgo.StringType, celgo.DynType, celgo.DynType}, celgo.DynType, binding),
		))
	}
	return celgo.NewEnv(opts...)
}

type celProgram struct {
	engine  *celEngine
	program celgo.Program
	source  string
}

func (p *celProgram) Evaluate(env map[string]any) (any, error) {
	out, _, err := p.program.Eval(p.engine.activation(env))
	if err != nil {
		// CEL reports a missing map key as an evaluation error; reads of
		// absent context fields come back null here, like the other engines.
		if strings.Contains(err.Error(), "no such key") {
			return nil, nil
		}
		return nil, wrapExpressionError("cel", "", p.source, err)
	}
	if out == types.NullValue {
		return nil, nil
	}
	return out.Value(), nil
}

// activation converts the resolution variables into CEL-friendly values.
// Struct entities are flattened to maps since CEL has no native view of
// arbitrary Go structs.
func (e *celEngine) activation(env map[string]any) map[string]any {
	activation := make(map[string]any, len(env))
	for key, value := range env {
		activation[key] = value
	}
	activation["entity"] = coerce.Map(env["entity"])
	return activation
}

func (e *celEngine) callBinding() func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if e.registry == nil {
			return types.NewErr("docmap: function registry not configured")
		}
		if len(values) == 0 {
			return types.NewErr("docmap: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("docmap: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
