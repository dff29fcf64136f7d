package spanz

import (
	"sync"
	"sync/atomic"
	"time"
)

// closeTimeout bounds how long close waits for queued spans to be buffered.
const closeTimeout = 100 * time.Millisecond

// Collector buffers finished spans until they are exported.
// Safe for concurrent use by multiple goroutines.
type Collector struct {
	name    string
	queue   chan Span
	stop    chan struct{}
	stopped chan struct{}

	mu  sync.Mutex
	buf []Span

	dropped atomic.Int64
	closed  atomic.Bool
	direct  atomic.Bool
}

// NewCollector creates a collector whose queue holds up to queueSize spans
// waiting to be buffered. Spans arriving at a full queue are dropped.
func NewCollector(name string, queueSize int) *Collector {
	c := &Collector{
		name:    name,
		queue:   make(chan Span, queueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Name returns the name the collector was created with.
func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) loop() {
	defer close(c.stopped)

	for {
		select {
		case s := <-c.queue:
			c.add(s)
		case <-c.stop:
			c.drain()
			return
		}
	}
}

// drain buffers whatever is still queued.
func (c *Collector) drain() {
	for {
		select {
		case s := <-c.queue:
			c.add(s)
		default:
			return
		}
	}
}

func (c *Collector) add(s Span) {
	c.mu.Lock()
	c.buf = append(c.buf, s)
	c.mu.Unlock()
}

// close stops the collector, waiting briefly for queued spans.
// Safe to call more than once.
func (c *Collector) close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stop)

	timer := time.NewTimer(closeTimeout)
	defer timer.Stop()
	select {
	case <-c.stopped:
	case <-timer.C:
	}
}

// Collect takes a copy of span. Nil spans, spans arriving after close and
// spans arriving at a full queue are counted as dropped.
func (c *Collector) Collect(span *Span) {
	if span == nil || c.closed.Load() {
		c.dropped.Add(1)
		return
	}

	s := cloneSpan(span)
	if c.direct.Load() {
		c.add(s)
		return
	}

	select {
	case c.queue <- s:
	default:
		c.dropped.Add(1)
	}
}

// Export hands over every buffered span and starts a new buffer.
// The caller owns the returned slice.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) == 0 {
		return nil
	}
	out := c.buf
	c.buf = nil
	return out
}

// Count returns the number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// DroppedCount returns how many spans were dropped.
func (c *Collector) DroppedCount() int64 {
	return c.dropped.Load()
}

// SetSyncMode makes Collect buffer spans directly instead of queueing them.
// Tests use it for deterministic collection.
func (c *Collector) SetSyncMode(sync bool) {
	c.direct.Store(sync)
}

// Reset discards buffered spans and zeroes the drop count.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.buf = nil
	c.mu.Unlock()

	c.dropped.Store(0)
}

// cloneSpan copies span so later tag writes on either side stay apart.
func cloneSpan(span *Span) Span {
	s := *span
	if span.Tags != nil {
		s.Tags = make(map[Tag]string, len(span.Tags))
		for k, v := range span.Tags {
			s.Tags[k] = v
		}
	}
	return s
}
