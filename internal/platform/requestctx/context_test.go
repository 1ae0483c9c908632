package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger")
	}
	logger := zap.NewExample()
	if got := Logger(WithLogger(context.Background(), logger)); got != logger {
		t.Fatalf("expected stored logger")
	}
	if got := Logger(WithLogger(context.Background(), nil)); got != NoopLogger() {
		t.Fatalf("nil logger should resolve to noop")
	}
}

func TestTraceAndVisitor(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", SpanID: "1"})
	ctx = WithVisitor(ctx, "visitor-1")

	if got := TraceID(ctx); got != "abc" {
		t.Fatalf("trace id = %q", got)
	}
	if got := VisitorID(ctx); got != "visitor-1" {
		t.Fatalf("visitor id = %q", got)
	}
	if got := VisitorID(context.Background()); got != "" {
		t.Fatalf("expected empty visitor, got %q", got)
	}
	if _, ok := Trace(context.Background()); ok {
		t.Fatalf("expected no trace")
	}
}
