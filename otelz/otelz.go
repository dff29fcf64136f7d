// Package otelz lets spanz instrument functions inside OpenTelemetry traces.
//
//	charge := spanz.Instrument(billing.Charge, spanz.WithResolver(otelz.NewResolver()))
//
// A call made while ctx carries a valid OpenTelemetry span records a child
// OpenTelemetry span named after the function.
package otelz

import (
	"context"

	"github.com/zoobzio/spanz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope used when no tracer is configured.
const ScopeName = "github.com/zoobzio/spanz"

// Attribute keys set on every child span.
const (
	OpKey     = attribute.Key("spanz.op")
	StatusKey = attribute.Key("spanz.status")
)

// Resolver resolves the OpenTelemetry span carried by a context.
type Resolver struct {
	tracer trace.Tracer
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTracer starts children on tracer instead of the parent span's provider.
// If tracer is nil, this option does nothing.
func WithTracer(tracer trace.Tracer) ResolverOption {
	return func(r *Resolver) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(o ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, option := range o {
		option(r)
	}
	return r
}

// Current returns the span in ctx when its span context is valid.
func (r *Resolver) Current(ctx context.Context) spanz.Parent {
	if ctx == nil {
		return nil
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}

	tracer := r.tracer
	if tracer == nil {
		tracer = span.TracerProvider().Tracer(ScopeName)
	}
	return parent{tracer: tracer}
}

type parent struct {
	tracer trace.Tracer
}

func (p parent) StartChild(ctx context.Context, op spanz.Key, description string) (context.Context, spanz.ScopedSpan) {
	ctx, span := p.tracer.Start(ctx, description,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(OpKey.String(op)),
	)
	return ctx, &scopedSpan{span: span}
}

// scopedSpan adapts an OpenTelemetry span to spanz.ScopedSpan.
type scopedSpan struct {
	span trace.Span
}

func (s *scopedSpan) SetTag(key spanz.Tag, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

func (s *scopedSpan) SetStatus(status spanz.Status) {
	s.span.SetAttributes(StatusKey.String(status))
	if status == spanz.StatusOK {
		s.span.SetStatus(codes.Ok, "")
		return
	}
	s.span.SetStatus(codes.Error, status)
}

// Finish ends the span. OpenTelemetry ignores repeated End calls.
func (s *scopedSpan) Finish() {
	s.span.End()
}
