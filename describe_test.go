package spanz

import (
	"strings"
	"testing"
)

type ledger struct{}

func (*ledger) post(amount int) int { return amount }

func addOne(x int) int { return x + 1 }

func TestDescribeFunction(t *testing.T) {
	if got := Describe(addOne); got != "github.com/zoobzio/spanz.addOne" {
		t.Errorf("Expected fully-qualified name, got %s", got)
	}
}

func TestDescribeMethodValue(t *testing.T) {
	l := &ledger{}
	got := Describe(l.post)
	if got != "github.com/zoobzio/spanz.(*ledger).post" {
		t.Errorf("Expected method name without -fm suffix, got %s", got)
	}
}

func TestDescribeMethodExpression(t *testing.T) {
	got := Describe((*ledger).post)
	if got != "github.com/zoobzio/spanz.(*ledger).post" {
		t.Errorf("Expected method expression name, got %s", got)
	}
}

func TestDescribeClosure(t *testing.T) {
	fn := func() {}
	got := Describe(fn)
	if !strings.HasPrefix(got, "github.com/zoobzio/spanz.TestDescribeClosure.") {
		t.Errorf("Expected closure to be named after its enclosing function, got %s", got)
	}
}

func TestDescribeFallbacks(t *testing.T) {
	var nilFn func()

	cases := map[string]any{
		"<nil>":  nil,
		"int":    42,
		"string": "addOne",
	}
	for want, value := range cases {
		if got := Describe(value); got != want {
			t.Errorf("Describe(%v): expected %s, got %s", value, want, got)
		}
	}

	if got := Describe(nilFn); got != "<nil>" {
		t.Errorf("Expected nil function to describe as <nil>, got %s", got)
	}
}

func TestDescribeIsDeterministic(t *testing.T) {
	if Describe(addOne) != Describe(addOne) {
		t.Error("Expected repeated calls to agree")
	}
}

func TestDescribeInstrumentedFunction(t *testing.T) {
	wrapped := Instrument(addOne)
	if got := Describe(wrapped); got != Describe(addOne) {
		t.Errorf("Expected wrapper to be described as %s, got %s", Describe(addOne), got)
	}
	if got := Describe(Instrument(wrapped)); got != Describe(addOne) {
		t.Errorf("Expected double wrapper to be described as %s, got %s", Describe(addOne), got)
	}
}
