// Package tracing defines the span sink the protocol client emits into.
// Implementations must be safe for concurrent emission.
package tracing

import (
	"time"

	"github.com/google/uuid"

	"github.com/mark3labs/x402-agent/logger"
)

// Tracer starts spans. A span covers one suspension-point operation such as
// an HTTP exchange or a catalog fetch.
type Tracer interface {
	StartSpan(name string) Span
}

// Span records attributes and is ended exactly once.
type Span interface {
	SetAttribute(key string, value any)
	End()
}

// NoopTracer discards all spans.
type NoopTracer struct{}

func (NoopTracer) StartSpan(string) Span { return noopSpan{} }

type noopSpan struct{}

func (noopSpan) SetAttribute(string, any) {}
func (noopSpan) End()                     {}

// LogTracer writes completed spans to a Logger. Useful for debugging without
// wiring a tracing backend.
type LogTracer struct {
	Log logger.Logger
}

func NewLogTracer(log logger.Logger) *LogTracer {
	return &LogTracer{Log: log}
}

func (t *LogTracer) StartSpan(name string) Span {
	return &logSpan{
		tracer: t,
		name:   name,
		id:     uuid.NewString(),
		start:  time.Now(),
		attrs:  make(map[string]any),
	}
}

type logSpan struct {
	tracer *LogTracer
	name   string
	id     string
	start  time.Time
	attrs  map[string]any
}

func (s *logSpan) SetAttribute(key string, value any) {
	s.attrs[key] = value
}

func (s *logSpan) End() {
	fields := map[string]any{
		"span_id":     s.id,
		"duration_ms": time.Since(s.start).Milliseconds(),
	}
	for k, v := range s.attrs {
		fields[k] = v
	}
	s.tracer.Log.Debug("span "+s.name, fields)
}
