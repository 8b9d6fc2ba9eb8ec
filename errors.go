package docmap

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrNoEngine is returned when a resolver ends up without any expression
// engine. Configuration error, never transient.
var ErrNoEngine = errors.New("docmap: expression engine not configured")

// ExpressionError captures engine metadata alongside the originating
// compile or evaluation failure.
type ExpressionError struct {
	Engine   string
	Template string
	Expr     string
	Err      error
}

func (e *ExpressionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("docmap: %s engine %s %s: %v", e.Engine, describeTemplate(e.Template), describeSegment(e.Expr), e.Err)
}

func (e *ExpressionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeTemplate(template string) string {
	if template == "" {
		return "template=<empty>"
	}
	return fmt.Sprintf("template=%q", template)
}

func describeSegment(expr string) string {
	if expr == "" {
		return "expr=<none>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

// UnknownEntityError reports a type the metadata registry knows nothing
// about, in a position where the caller demanded a descriptor.
type UnknownEntityError struct {
	Type reflect.Type
}

func (e *UnknownEntityError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("docmap: no persistent entity metadata for type %s", typeLabel(e.Type))
}

// MissingIdentifierError reports an identifier read against a type that
// declares no identifier property.
type MissingIdentifierError struct {
	Type reflect.Type
}

func (e *MissingIdentifierError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("docmap: type %s declares no identifier property", typeLabel(e.Type))
}

func typeLabel(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var exprErr *ExpressionError
	if errors.As(err, &exprErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "docmap:") {
		return err
	}
	return fmt.Errorf("docmap: %s engine: %w", engine, err)
}

// wrapExpressionError attaches engine/template/segment metadata, filling in
// blanks on an ExpressionError that already travelled up from an engine.
func wrapExpressionError(engine, template, expr string, err error) error {
	if err == nil {
		return nil
	}

	var exprErr *ExpressionError
	if errors.As(err, &exprErr) {
		if exprErr.Engine == "" {
			exprErr.Engine = engine
		}
		if exprErr.Template == "" {
			exprErr.Template = template
		}
		if exprErr.Expr == "" {
			exprErr.Expr = expr
		}
		return exprErr
	}

	return &ExpressionError{
		Engine:   engine,
		Template: template,
		Expr:     expr,
		Err:      err,
	}
}
