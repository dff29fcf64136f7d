package reliability

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

// countingParent tracks open spans so leaks show up as a non-zero balance.
type countingParent struct {
	opened atomic.Int64
	closed atomic.Int64
}

type countedSpan struct {
	parent *countingParent
	once   sync.Once
}

func (p *countingParent) StartChild(ctx context.Context, _ spanz.Key, _ string) (context.Context, spanz.ScopedSpan) {
	p.opened.Add(1)
	return ctx, &countedSpan{parent: p}
}

func (*countedSpan) SetTag(spanz.Tag, string) {}
func (*countedSpan) SetStatus(spanz.Status)   {}
func (s *countedSpan) Finish() {
	s.once.Do(func() { s.parent.closed.Add(1) })
}

func jitteryFetch(ctx context.Context, d time.Duration) <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	go func() {
		defer close(ch)
		select {
		case <-time.After(d):
			ch <- d
		case <-ctx.Done():
		}
	}()
	return ch
}

func runCancellationStorm(t *testing.T, calls int, goroutines int) {
	t.Helper()

	parent := &countingParent{}
	wrapped := spanz.Instrument(jitteryFetch,
		spanz.WithResolver(spanz.ResolverFunc(func(context.Context) spanz.Parent { return parent })))

	var wg sync.WaitGroup
	work := make(chan int)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed)) //nolint:gosec // Test jitter.
			for range work {
				ctx, cancel := context.WithTimeout(context.Background(), time.Duration(rng.Intn(3))*time.Millisecond)
				for range wrapped(ctx, time.Duration(rng.Intn(3))*time.Millisecond) {
				}
				cancel()
			}
		}(int64(g))
	}

	for i := 0; i < calls; i++ {
		work <- i
	}
	close(work)
	wg.Wait()

	// Every relay has drained, so every span must be closed.
	deadline := time.Now().Add(2 * time.Second)
	for parent.closed.Load() != parent.opened.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if parent.opened.Load() != int64(calls) {
		t.Errorf("Expected %d spans opened, got %d", calls, parent.opened.Load())
	}
	if parent.closed.Load() != parent.opened.Load() {
		t.Errorf("Leaked spans: opened %d, closed %d", parent.opened.Load(), parent.closed.Load())
	}
}

func TestAsyncCancellationNeverLeaksSpans(t *testing.T) {
	cfg := getConfig()
	runCancellationStorm(t, 500, cfg.Goroutines)
}

func TestAsyncCancellationStress(t *testing.T) {
	cfg := getConfig()
	if !cfg.stress() {
		t.Skip("set SPANZ_RELIABILITY_LEVEL=stress to run")
	}

	deadline := time.Now().Add(cfg.Duration)
	for time.Now().Before(deadline) {
		runCancellationStorm(t, 5000, cfg.Goroutines)
	}
}

func TestPanickingCallsNeverLeakSpans(t *testing.T) {
	parent := &countingParent{}
	explode := spanz.Instrument(func(n int) int {
		if n%2 == 0 {
			panic("even")
		}
		return n
	}, spanz.WithResolver(spanz.ResolverFunc(func(context.Context) spanz.Parent { return parent })))

	for i := 0; i < 100; i++ {
		func() {
			defer func() { _ = recover() }()
			explode(i)
		}()
	}

	if parent.opened.Load() != 100 || parent.closed.Load() != 100 {
		t.Errorf("Expected 100 spans opened and closed, got %d and %d", parent.opened.Load(), parent.closed.Load())
	}
}
