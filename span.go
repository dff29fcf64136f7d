package spanz

import (
	"context"
	"sync"
	"time"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "spanz"
)

// Span represents a single unit of work in a distributed trace.
// Spans are NOT thread-safe - do not modify from multiple goroutines.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]string `json:"tags,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time,omitempty"`
	Duration  time.Duration  `json:"duration"`
	TraceID   string         `json:"trace_id"`
	SpanID    string         `json:"span_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Op        Key            `json:"op,omitempty"`
	Name      string         `json:"name"`
	Status    Status         `json:"status,omitempty"`
}

// IsTransaction reports whether the span is the root of its trace.
func (s *Span) IsTransaction() bool {
	return s.ParentID == ""
}

// ActiveSpan wraps a Span with thread-safe tag operations and lifecycle management.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	span   *Span
	tracer *Tracer
	mu     sync.Mutex // Protects Tags, Status and EndTime.
}

// SetTag adds a key-value pair to the span.
// No-op if span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.span.EndTime.IsZero() {
		return
	}

	if a.span.Tags == nil {
		a.span.Tags = make(map[Tag]string)
	}
	a.span.Tags[key] = value
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key Tag) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Tags == nil {
		return "", false
	}
	value, ok := a.span.Tags[key]
	return value, ok
}

// SetStatus records how the work ended.
// No-op if span is already finished.
func (a *ActiveSpan) SetStatus(status Status) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.span.EndTime.IsZero() {
		return
	}
	a.span.Status = status
}

// Finish completes the span and sends it to the tracer for collection.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.span.EndTime.IsZero() {
		return
	}

	a.span.EndTime = a.tracer.clock.Now()
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)

	a.tracer.collectSpan(a.span)
}

// Finished reports whether Finish has been called.
func (a *ActiveSpan) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.span.EndTime.IsZero()
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.SpanID
}

// Context creates a new context with this span embedded.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, bundleKey, &contextBundle{tracer: a.tracer, active: a})
}

// StartChild starts a span parented by a, whatever span ctx carries.
// The returned context carries the child.
func (a *ActiveSpan) StartChild(ctx context.Context, op Key, name string) (context.Context, *ActiveSpan) {
	a.mu.Lock()
	traceID, spanID := a.span.TraceID, a.span.SpanID
	a.mu.Unlock()

	return a.tracer.start(ctx, op, name, traceID, spanID)
}

// GetSpan extracts the current span from a context.
// Returns nil if no span is present.
func GetSpan(ctx context.Context) *Span {
	if active := FromContext(ctx); active != nil {
		return active.span
	}
	return nil
}

// FromContext extracts the innermost ActiveSpan from a context.
// Returns nil if no span is present.
func FromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}

	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.active
	}

	return nil
}
