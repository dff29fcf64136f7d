// Package metrics turns finished spanz spans into Prometheus metrics.
//
//	h, err := metrics.NewHandler(prometheus.DefaultRegisterer)
//	if err != nil {
//		return err
//	}
//	tracer.OnSpanComplete(h.Observe)
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/spanz"
)

// Metric names.
const (
	SpansTotal          = "spanz_spans_total"
	SpanDurationSeconds = "spanz_span_duration_seconds"
)

// Label names, shared by every metric.
const (
	OpLabel     = "op"
	NameLabel   = "name"
	StatusLabel = "status"
)

// Handler records span counts and durations.
type Handler struct {
	spans    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	ops      map[spanz.Key]bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	namespace string
	buckets   []float64
	ops       []spanz.Key
}

// Namespace prefixes every metric name.
func Namespace(ns string) HandlerOption {
	return func(o *handlerOptions) {
		o.namespace = ns
	}
}

// Buckets sets the duration histogram buckets, in seconds.
// If buckets is empty, this option does nothing.
func Buckets(buckets ...float64) HandlerOption {
	return func(o *handlerOptions) {
		if len(buckets) > 0 {
			o.buckets = buckets
		}
	}
}

// Ops restricts the handler to spans with one of the given ops.
// By default only OpFunction spans are observed.
func Ops(ops ...spanz.Key) HandlerOption {
	return func(o *handlerOptions) {
		o.ops = ops
	}
}

// NewHandler builds a Handler and registers its collectors with r.
func NewHandler(r prometheus.Registerer, o ...HandlerOption) (*Handler, error) {
	if r == nil {
		return nil, errors.New("metrics: nil registerer")
	}

	opts := handlerOptions{
		buckets: prometheus.DefBuckets,
		ops:     []spanz.Key{spanz.OpFunction},
	}
	for _, option := range o {
		option(&opts)
	}

	labels := []string{OpLabel, NameLabel, StatusLabel}
	h := &Handler{
		spans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.namespace,
			Name:      SpansTotal,
			Help:      "The count of finished spans.",
		}, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.namespace,
			Name:      SpanDurationSeconds,
			Help:      "The duration of finished spans, in seconds.",
			Buckets:   opts.buckets,
		}, labels),
		ops: make(map[spanz.Key]bool, len(opts.ops)),
	}
	for _, op := range opts.ops {
		h.ops[op] = true
	}

	registered := make([]prometheus.Collector, 0, 2)
	for _, c := range []prometheus.Collector{h.spans, h.duration} {
		if err := r.Register(c); err != nil {
			for _, prev := range registered {
				r.Unregister(prev)
			}
			return nil, fmt.Errorf("metrics: registering collector: %w", err)
		}
		registered = append(registered, c)
	}

	return h, nil
}

// Observe records a finished span. It has the spanz.SpanHandler signature.
func (h *Handler) Observe(span spanz.Span) {
	if !h.ops[span.Op] {
		return
	}

	status := span.Status
	if status == "" {
		status = spanz.StatusOK
	}

	h.spans.WithLabelValues(span.Op, span.Name, status).Inc()
	h.duration.WithLabelValues(span.Op, span.Name, status).Observe(span.Duration.Seconds())
}
