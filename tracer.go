package spanz

import (
	"context"
	"encoding/hex"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// contextBundle holds both tracer and span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	active *ActiveSpan
}

// SpanHandler is called when a span completes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer manages span lifecycle and collection.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers       []handlerEntry
	collectors     map[string]*Collector
	panicHook      func(handlerID uint64, r interface{})
	workers        *workerPool
	traceIDPool    *IDPool
	spanIDPool     *IDPool
	clock          clockz.Clock
	handlersLock   sync.RWMutex
	collectorsLock sync.RWMutex
	idPoolOnce     sync.Once
	nextID         atomic.Uint64
	droppedSpans   atomic.Uint64
}

// New creates a new tracer.
// Uses the real clock for production behavior.
func New() *Tracer {
	return &Tracer{
		handlers:   make([]handlerEntry, 0),
		collectors: make(map[string]*Collector),
		clock:      clockz.RealClock,
	}
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing.
func (*Tracer) WithClock(clock clockz.Clock) *Tracer {
	t := New()
	t.clock = clock
	return t
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		poolSize := runtime.NumCPU() * 100

		// Trace IDs are a full random UUID, span IDs its lower half.
		t.traceIDPool = NewIDPool(poolSize, func() string {
			id, err := uuid.NewRandom()
			if err != nil {
				return hex.EncodeToString([]byte(t.clock.Now().Format(time.RFC3339Nano)))
			}
			return hex.EncodeToString(id[:])
		})

		t.spanIDPool = NewIDPool(poolSize, func() string {
			id, err := uuid.NewRandom()
			if err != nil {
				return hex.EncodeToString([]byte(t.clock.Now().Format("15:04:05.000000")))
			}
			return hex.EncodeToString(id[8:])
		})
	})
}

// AddCollector registers a collector that receives every finished span.
// Adding a collector under an existing name replaces it.
func (t *Tracer) AddCollector(name string, collector *Collector) {
	if collector == nil {
		return
	}

	t.collectorsLock.Lock()
	defer t.collectorsLock.Unlock()

	if t.collectors == nil {
		t.collectors = make(map[string]*Collector)
	}
	t.collectors[name] = collector
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// StartSpan creates a new span and returns it wrapped in an ActiveSpan.
// If the context contains an existing span, the new span will be its child.
// Otherwise the span starts a new trace and is tagged as a transaction.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, *ActiveSpan) {
	if parent := FromContext(ctx); parent != nil {
		return parent.StartChild(ctx, "", name)
	}
	return t.start(ctx, OpTransaction, name, "", "")
}

// start builds a span. An empty traceID begins a new trace.
func (t *Tracer) start(ctx context.Context, op Key, name, traceID, parentID string) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}

	if traceID == "" {
		traceID = t.generateTraceID()
	}

	activeSpan := &ActiveSpan{
		span: &Span{
			TraceID:   traceID,
			SpanID:    t.generateSpanID(),
			ParentID:  parentID,
			Op:        op,
			Name:      name,
			StartTime: t.clock.Now(),
		},
		tracer: t,
	}

	// Single allocation carries both tracer and span.
	newCtx := context.WithValue(ctx, bundleKey, &contextBundle{tracer: t, active: activeSpan})

	return newCtx, activeSpan
}

// collectSpan fans a finished span out to collectors and handlers.
func (t *Tracer) collectSpan(span *Span) {
	t.collectorsLock.RLock()
	for _, c := range t.collectors {
		c.Collect(span)
	}
	t.collectorsLock.RUnlock()

	t.executeHandlers(*span)
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			if workers != nil {
				workers.submit(func() {
					t.safeCall(entry, span)
				})
			} else {
				go t.safeCall(entry, span)
			}
		} else {
			t.safeCall(h, span)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedSpans,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedSpans returns the number of spans dropped due to full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Reset clears the buffers of every registered collector.
// Collectors stay registered and keep running.
func (t *Tracer) Reset() {
	t.collectorsLock.RLock()
	defer t.collectorsLock.RUnlock()

	for _, c := range t.collectors {
		c.Reset()
	}
}

// Close shuts down the tracer gracefully and cleans up resources.
// Registered collectors are reset, stopped and forgotten.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	t.collectorsLock.Lock()
	for name, c := range t.collectors {
		c.Reset()
		c.close()
		delete(t.collectors, name)
	}
	t.collectorsLock.Unlock()

	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}

func (t *Tracer) generateTraceID() string {
	t.ensureIDPools()
	return t.traceIDPool.Get()
}

func (t *Tracer) generateSpanID() string {
	t.ensureIDPools()
	return t.spanIDPool.Get()
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
