package spanz

import (
	"context"
	"sync"
)

// ScopedSpan is a child span opened for one instrumented call.
// Finish must be safe to call more than once.
type ScopedSpan interface {
	SetTag(key Tag, value string)
	SetStatus(status Status)
	Finish()
}

// Parent is anything able to parent a child span: a transaction or a span.
type Parent interface {
	// StartChild opens a child span and returns a context carrying it.
	StartChild(ctx context.Context, op Key, description string) (context.Context, ScopedSpan)
}

// Resolver finds the entity that should parent an instrumented call.
// Current returns nil when no trace is in progress and never panics.
type Resolver interface {
	Current(ctx context.Context) Parent
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(ctx context.Context) Parent

// Current calls f(ctx).
func (f ResolverFunc) Current(ctx context.Context) Parent {
	return f(ctx)
}

// ContextResolver resolves the innermost ActiveSpan carried by the context.
type ContextResolver struct{}

// Current returns the span in ctx, or nil.
func (ContextResolver) Current(ctx context.Context) Parent {
	if active := FromContext(ctx); active != nil {
		return activeParent{active: active}
	}
	return nil
}

// Chain returns a resolver that asks each resolver in turn and returns the
// first non-nil parent. Nil resolvers are skipped.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context) Parent {
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			if p := r.Current(ctx); p != nil {
				return p
			}
		}
		return nil
	})
}

// Hub holds a process-wide current span for code paths that do not carry a
// context. The zero value is ready to use.
type Hub struct {
	mu      sync.RWMutex
	current *ActiveSpan
}

// Bind makes span the hub's current span and returns a function restoring
// the previous one. Binding nil clears the hub.
func (h *Hub) Bind(span *ActiveSpan) (restore func()) {
	h.mu.Lock()
	prev := h.current
	h.current = span
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		h.current = prev
		h.mu.Unlock()
	}
}

// Span returns the bound span, or nil.
func (h *Hub) Span() *ActiveSpan {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Current returns the span carried by ctx when there is one, falling back to
// the bound span. Finished spans are not returned.
func (h *Hub) Current(ctx context.Context) Parent {
	if p := (ContextResolver{}).Current(ctx); p != nil {
		return p
	}
	if active := h.Span(); active != nil && !active.Finished() {
		return activeParent{active: active}
	}
	return nil
}

// activeParent adapts an ActiveSpan to Parent.
type activeParent struct {
	active *ActiveSpan
}

func (p activeParent) StartChild(ctx context.Context, op Key, description string) (context.Context, ScopedSpan) {
	return p.active.StartChild(ctx, op, description)
}
