// Package spanz instruments function calls with child spans.
//
// spanz wraps an arbitrary function so that every call made inside an active
// trace records a child span describing that call. Calls made outside a trace
// run untouched and log a warning instead.
//
// Core Components:
//   - Instrument: Wraps a function, preserving its signature.
//   - Resolver: Finds the span that parents an instrumented call.
//   - Tracer: Manages span lifecycle and collection.
//   - ActiveSpan: Thread-safe wrapper for ongoing spans.
//   - Collector: Buffers completed spans for export.
//
// Basic Usage:
//
//	tracer := spanz.New()
//	defer tracer.Close()
//
//	charge := spanz.Instrument(billing.Charge)
//
//	ctx, txn := tracer.StartSpan(ctx, "checkout")
//	defer txn.Finish()
//
//	// Records a "function" span named after billing.Charge.
//	receipt, err := charge(ctx, order)
//
// Synchronous and Asynchronous Functions:
//
// Instrument inspects the function once. A function returning a receive-only
// channel is treated as a future: its span stays open until the first value
// arrives, the channel closes, or the leading context is cancelled. Every
// other function is timed for the duration of the call itself.
//
// Context Propagation:
//
// A leading context.Context parameter is both where the parent span is
// looked up and where the child span is placed before the call, so nested
// instrumented calls form a tree. Functions without a context resolve
// against context.Background, which a Hub resolver can answer.
//
// Thread Safety:
//
// Instrumented functions, Tracer, Hub and Collector are safe for concurrent
// use. Spans themselves are NOT thread-safe - use ActiveSpan to modify them.
package spanz

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// Operation categories.
const (
	OpFunction    Key = "function"
	OpTransaction Key = "transaction"
)

// Status describes how the work behind a span ended.
type Status = string

// Span statuses.
const (
	StatusOK        Status = "ok"
	StatusError     Status = "error"
	StatusPanic     Status = "panic"
	StatusCancelled Status = "cancelled"
)
