package docmap

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-docmap/internal/coerce"
)

// Trace captures per-segment provenance for one template resolution.
type Trace struct {
	Template string         `json:"template"`
	Engine   string         `json:"engine"`
	Segments []SegmentTrace `json:"segments"`
}

// SegmentTrace details how a single template segment contributed to the
// resolved string.
type SegmentTrace struct {
	Dynamic bool   `json:"dynamic"`
	Text    string `json:"text,omitempty"`
	Expr    string `json:"expr,omitempty"`
	Value   any    `json:"value,omitempty"`
}

// ToJSON serialises the trace for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a payload previously generated via ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

// ResolveTraced behaves like Resolve while recording how each segment was
// rendered. Literal and blank templates yield a trace with no dynamic
// segments.
func (r *Resolver) ResolveTraced(template string, ctx ResolutionContext) (string, Trace, error) {
	trace := Trace{Template: template}

	if strings.TrimSpace(template) == "" {
		return template, trace, nil
	}

	engine, err := r.resolveEngine()
	if err != nil {
		return "", trace, err
	}
	trace.Engine = engineName(engine)

	compiled, err := r.compile(template, engine)
	if err != nil {
		return "", trace, err
	}
	if compiled.literal {
		trace.Segments = []SegmentTrace{{Text: template}}
		return template, trace, nil
	}

	env := ctx.environment(compiled.needsID)
	start := time.Now()
	var out strings.Builder
	var resolveErr error
	for _, seg := range compiled.segments {
		if !seg.dynamic() {
			out.WriteString(seg.text)
			trace.Segments = append(trace.Segments, SegmentTrace{Text: seg.text})
			continue
		}
		value, err := seg.program.Evaluate(env)
		if err != nil {
			resolveErr = wrapExpressionError(trace.Engine, template, seg.source, err)
			break
		}
		out.WriteString(coerce.String(value))
		trace.Segments = append(trace.Segments, SegmentTrace{
			Dynamic: true,
			Expr:    seg.source,
			Value:   value,
		})
	}

	r.logger().LogResolution(ResolveEvent{
		Engine:   trace.Engine,
		Template: template,
		Duration: time.Since(start),
		Err:      resolveErr,
	})
	if resolveErr != nil {
		return "", trace, resolveErr
	}

	result := out.String()
	r.emitAudit(ctx, template, result, env)
	return result, trace, nil
}
