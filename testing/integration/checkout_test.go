package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var errOutOfStock = errors.New("out of stock")

type inventory struct {
	stock map[string]int
}

func (i *inventory) reserve(_ context.Context, sku string) error {
	if i.stock[sku] == 0 {
		return errOutOfStock
	}
	i.stock[sku]--
	return nil
}

func quote(ctx context.Context, sku string) <-chan int {
	ch := make(chan int, 1)
	go func() {
		defer close(ch)
		select {
		case <-time.After(5 * time.Millisecond):
			ch <- len(sku) * 100
		case <-ctx.Done():
		}
	}()
	return ch
}

// checkoutService wires instrumented steps together the way an application would.
type checkoutService struct {
	reserve func(context.Context, string) error
	quote   func(context.Context, string) <-chan int
}

func newCheckoutService(inv *inventory, opts ...spanz.Option) *checkoutService {
	return &checkoutService{
		reserve: spanz.Instrument(inv.reserve, opts...),
		quote:   spanz.Instrument(quote, opts...),
	}
}

func (s *checkoutService) checkout(ctx context.Context, sku string) (int, error) {
	if err := s.reserve(ctx, sku); err != nil {
		return 0, err
	}
	return <-s.quote(ctx, sku), nil
}

func TestCheckoutBuildsSpanTree(t *testing.T) {
	tracer := spanz.New()
	defer tracer.Close()
	collector := NewMockCollector(t, tracer, "checkout")

	svc := newCheckoutService(&inventory{stock: map[string]int{"mug": 1}})
	checkout := spanz.Instrument(svc.checkout)

	ctx, txn := tracer.StartSpan(context.Background(), "POST /checkout")
	price, err := checkout(ctx, "mug")
	txn.Finish()

	if err != nil || price != 300 {
		t.Fatalf("Expected (300, nil), got (%d, %v)", price, err)
	}

	spans := collector.WaitForSpans(4, time.Second)
	trees := BuildSpanTree(spans)
	if len(trees) != 1 {
		t.Fatalf("Expected a single trace, got:\n%s", PrintSpanTree(trees))
	}

	root := trees[0]
	if root.Span.Op != spanz.OpTransaction || len(root.Children) != 1 {
		t.Fatalf("Expected transaction with one child, got:\n%s", PrintSpanTree(trees))
	}

	step := root.Children[0]
	if len(step.Children) != 2 {
		t.Fatalf("Expected reserve and quote under checkout, got:\n%s", PrintSpanTree(trees))
	}
	for _, child := range step.Children {
		if child.Span.Op != spanz.OpFunction || child.Span.Status != spanz.StatusOK {
			t.Errorf("Unexpected child span:\n%s", PrintSpanTree(trees))
		}
	}

	collector.AssertParentChild(spanz.Describe(svc.checkout), spanz.Describe(quote))
}

func TestCheckoutFailureMarksSpans(t *testing.T) {
	tracer := spanz.New()
	defer tracer.Close()
	collector := NewMockCollector(t, tracer, "failure")

	inv := &inventory{stock: map[string]int{}}
	svc := newCheckoutService(inv)
	checkout := spanz.Instrument(svc.checkout)

	ctx, txn := tracer.StartSpan(context.Background(), "POST /checkout")
	_, err := checkout(ctx, "mug")
	txn.Finish()

	if !errors.Is(err, errOutOfStock) {
		t.Fatalf("Expected errOutOfStock, got %v", err)
	}

	spans := collector.WaitForSpans(3, time.Second)
	for _, s := range spans {
		switch s.Name {
		case spanz.Describe(quote):
			t.Error("Expected quote never to run")
		case spanz.Describe(svc.checkout), spanz.Describe(inv.reserve):
			if s.Status != spanz.StatusError {
				t.Errorf("Expected %s to end with %s, got %s", ShortName(s.Name), spanz.StatusError, s.Status)
			}
		}
	}
}

func TestCheckoutOutsideTransactionOnlyWarns(t *testing.T) {
	tracer := spanz.New()
	defer tracer.Close()
	collector := NewMockCollector(t, tracer, "untraced")

	core, logs := observer.New(zap.WarnLevel)
	svc := newCheckoutService(&inventory{stock: map[string]int{"mug": 1}}, spanz.WithLogger(zap.New(core)))

	price, err := svc.checkout(context.Background(), "mug")
	if err != nil || price != 300 {
		t.Fatalf("Expected (300, nil), got (%d, %v)", price, err)
	}

	if logs.Len() != 2 {
		t.Errorf("Expected one warning per instrumented step, got %d", logs.Len())
	}
	if got := len(collector.GetAll()); got != 0 {
		t.Errorf("Expected no spans, got %d", got)
	}
}
