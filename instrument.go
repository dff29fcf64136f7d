package spanz

import (
	"context"
	"reflect"

	"go.uber.org/zap"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Instrument wraps fn so that each call made inside an active trace records
// a child span with op OpFunction and fn's fully-qualified name as its
// description. Calls outside a trace log a warning and run fn directly.
//
// The wrapper has fn's exact type. Arguments, results and panics pass
// through untouched, and the span is finished on every exit path. A leading
// context.Context parameter is used to resolve the parent and is replaced by
// a context carrying the child span before fn runs.
//
// When one of fn's results is a receive-only channel, fn is treated as
// asynchronous: the span stays open until the channel yields its first value,
// closes, or the leading context is cancelled, and the caller receives a
// relaying channel of the same element type and capacity. The relay adds one
// channel step: a value is taken from fn's channel as soon as it is sent, so
// a sender on an unbuffered channel proceeds before the caller receives.
// Once the leading context is done the relay stops, dropping any value it
// holds, and closes the caller's channel. Two-way channel results are
// returned as they are and timed like any other result.
//
// Values that are not functions are returned unchanged.
func Instrument[F any](fn F, opts ...Option) F {
	cfg := newConfig(opts)

	v := reflect.ValueOf(fn)
	if !v.IsValid() {
		return fn
	}
	if v.Kind() != reflect.Func {
		cfg.logger.Warn("cannot instrument a non-function value", zap.String("type", v.Type().String()))
		return fn
	}
	if v.IsNil() {
		return fn
	}

	in := newInstrumented(v, Describe(fn), cfg)

	impl := in.callSync
	if in.future >= 0 {
		impl = in.callAsync
	}

	w := reflect.MakeFunc(v.Type(), impl).Interface()
	wrapped, ok := w.(F)
	if !ok {
		return fn
	}
	remember(w, in.description)
	return wrapped
}

// instrumented holds what was learned about a function at wrap time.
type instrumented struct {
	fn          reflect.Value
	resolver    Resolver
	logger      *zap.Logger
	tags        map[Tag]string
	description string
	variadic    bool
	hasContext  bool
	future      int // Index of the receive-only channel result, or -1.
	err         int // Index of a trailing error result, or -1.
}

func newInstrumented(fn reflect.Value, description string, cfg *config) *instrumented {
	t := fn.Type()

	in := &instrumented{
		fn:          fn,
		resolver:    cfg.resolver,
		logger:      cfg.logger,
		tags:        cfg.tags,
		description: description,
		variadic:    t.IsVariadic(),
		hasContext:  t.NumIn() > 0 && t.In(0) == contextType,
		future:      -1,
		err:         -1,
	}

	for i := 0; i < t.NumOut(); i++ {
		out := t.Out(i)
		if out.Kind() == reflect.Chan && out.ChanDir() == reflect.RecvDir {
			in.future = i
			break
		}
	}
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		in.err = n - 1
	}

	return in
}

func (in *instrumented) callSync(args []reflect.Value) []reflect.Value {
	ctx := in.ctxOf(args)

	parent := in.resolver.Current(ctx)
	if parent == nil {
		in.warnUntraced()
		return in.call(args)
	}

	span := in.open(ctx, parent, args)

	completed := false
	defer func() {
		if !completed {
			span.SetStatus(StatusPanic)
		}
		span.Finish()
	}()

	results := in.call(args)
	completed = true
	span.SetStatus(in.status(results))

	return results
}

func (in *instrumented) callAsync(args []reflect.Value) []reflect.Value {
	ctx := in.ctxOf(args)

	parent := in.resolver.Current(ctx)
	if parent == nil {
		in.warnUntraced()
		return in.call(args)
	}

	span := in.open(ctx, parent, args)

	// Once the relay owns the span this frame must not finish it.
	completed, relayed := false, false
	defer func() {
		if relayed {
			return
		}
		if !completed {
			span.SetStatus(StatusPanic)
		}
		span.Finish()
	}()

	results := in.call(args)
	completed = true

	if status := in.status(results); status != StatusOK {
		span.SetStatus(status)
		return results
	}

	src := results[in.future]
	if src.IsNil() {
		span.SetStatus(StatusOK)
		return results
	}

	results[in.future] = relay(ctx, src, span)
	relayed = true

	return results
}

// relay forwards every value of src to a new channel of the same element
// type and capacity. The span is finished before the first value or the
// close becomes visible to the receiver, or as soon as ctx is done. A done
// ctx ends the relay and closes the returned channel.
func relay(ctx context.Context, src reflect.Value, span ScopedSpan) reflect.Value {
	out := reflect.MakeChan(reflect.ChanOf(reflect.BothDir, src.Type().Elem()), src.Cap())
	done := reflect.ValueOf(ctx.Done())

	go func() {
		defer out.Close()

		open := true
		finish := func(status Status) {
			if open {
				span.SetStatus(status)
				span.Finish()
				open = false
			}
		}

		recv := []reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: src},
			{Dir: reflect.SelectRecv, Chan: done},
		}
		send := []reflect.SelectCase{
			{Dir: reflect.SelectSend, Chan: out},
			{Dir: reflect.SelectRecv, Chan: done},
		}

		for {
			chosen, v, ok := reflect.Select(recv)
			if chosen == 1 {
				finish(StatusCancelled)
				return
			}

			finish(StatusOK)
			if !ok {
				return
			}

			send[0].Send = v
			if chosen, _, _ = reflect.Select(send); chosen == 1 {
				return
			}
		}
	}()

	return out
}

// ctxOf returns the caller's context, or context.Background when fn takes
// none or was passed nil.
func (in *instrumented) ctxOf(args []reflect.Value) context.Context {
	if in.hasContext && !args[0].IsNil() {
		if ctx, ok := args[0].Interface().(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}

// open starts the child span and hands its context to fn.
func (in *instrumented) open(ctx context.Context, parent Parent, args []reflect.Value) ScopedSpan {
	childCtx, span := parent.StartChild(ctx, OpFunction, in.description)

	for k, v := range in.tags {
		span.SetTag(k, v)
	}

	if in.hasContext && childCtx != nil {
		args[0] = reflect.ValueOf(childCtx)
	}

	return span
}

func (in *instrumented) call(args []reflect.Value) []reflect.Value {
	if in.variadic {
		return in.fn.CallSlice(args)
	}
	return in.fn.Call(args)
}

func (in *instrumented) status(results []reflect.Value) Status {
	if in.err >= 0 && !results[in.err].IsNil() {
		return StatusError
	}
	return StatusOK
}

func (in *instrumented) warnUntraced() {
	in.logger.Warn("no active span, not creating a child span; start a transaction before calling this function",
		zap.String("function", in.description),
	)
}
