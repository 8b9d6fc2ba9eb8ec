package docmap

import (
	"reflect"
	"testing"
)

func TestResolveTracedRecordsSegments(t *testing.T) {
	resolver := NewResolver()
	ctx := ResolutionContext{
		EntityType: reflect.TypeOf(testBook{}),
		ID:         func() any { return "42" },
	}

	got, trace, err := resolver.ResolveTraced("/docs/#{id}.xml", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/docs/42.xml" {
		t.Fatalf("unexpected result: %q", got)
	}
	if trace.Engine != "expr" {
		t.Fatalf("expected expr engine recorded, got %q", trace.Engine)
	}
	if len(trace.Segments) != 3 {
		t.Fatalf("expected 3 traced segments, got %d", len(trace.Segments))
	}
	if trace.Segments[1].Expr != "id" || !trace.Segments[1].Dynamic {
		t.Fatalf("unexpected dynamic segment trace: %+v", trace.Segments[1])
	}
	if trace.Segments[1].Value != "42" {
		t.Fatalf("expected evaluated value recorded, got %v", trace.Segments[1].Value)
	}
}

func TestResolveTracedLiteral(t *testing.T) {
	resolver := NewResolver()

	got, trace, err := resolver.ResolveTraced("books", ResolutionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "books" {
		t.Fatalf("expected literal pass-through, got %q", got)
	}
	if len(trace.Segments) != 1 || trace.Segments[0].Dynamic {
		t.Fatalf("expected a single literal segment, got %+v", trace.Segments)
	}
}

func TestTraceJSONRoundTrip(t *testing.T) {
	trace := Trace{
		Template: "/docs/#{id}.xml",
		Engine:   "expr",
		Segments: []SegmentTrace{
			{Text: "/docs/"},
			{Dynamic: true, Expr: "id", Value: "42"},
			{Text: ".xml"},
		},
	}

	payload, err := trace.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := TraceFromJSON(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Template != trace.Template || restored.Engine != trace.Engine {
		t.Fatalf("unexpected round-trip header: %+v", restored)
	}
	if len(restored.Segments) != 3 || restored.Segments[1].Value != "42" {
		t.Fatalf("unexpected round-trip segments: %+v", restored.Segments)
	}
}
