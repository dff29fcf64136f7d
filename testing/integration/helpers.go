package integration

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous so assertions never race the collector loop.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []spanz.Span
	*spanz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing and registers it with tracer.
func NewMockCollector(t *testing.T, tracer *spanz.Tracer, name string) *MockCollector {
	t.Helper()

	collector := spanz.NewCollector(name, 64)
	collector.SetSyncMode(true)
	tracer.AddCollector(name, collector)

	return &MockCollector{
		Collector: collector,
		t:         t,
	}
}

// GetAll returns every span collected so far without losing earlier exports.
func (m *MockCollector) GetAll() []spanz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exported = append(m.exported, m.Collector.Export()...)

	all := make([]spanz.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans were collected.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []spanz.Span {
	m.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		spans := m.GetAll()
		if len(spans) >= expected {
			return spans
		}
		if time.Now().After(deadline) {
			m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
			return spans
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// AssertSpanNamed returns the first span with the given name.
func (m *MockCollector) AssertSpanNamed(name string) *spanz.Span {
	m.t.Helper()

	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies the parent-child relationship of two named spans.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	m.t.Helper()

	parent := m.AssertSpanNamed(parentName)
	child := m.AssertSpanNamed(childName)
	if parent == nil || child == nil {
		return
	}

	if child.ParentID != parent.SpanID {
		m.t.Errorf("%s is not the parent of %s: child ParentID=%s, parent SpanID=%s",
			parentName, childName, child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     spanz.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from a flat span list.
// Children are ordered by start time.
func BuildSpanTree(spans []spanz.Span) []*SpanTree {
	nodes := make(map[string]*SpanTree, len(spans))
	for i := range spans {
		nodes[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}

	var roots []*SpanTree
	for i := range spans {
		node := nodes[spans[i].SpanID]
		if parent, ok := nodes[spans[i].ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}

	for _, node := range nodes {
		children := node.Children
		for i := 1; i < len(children); i++ {
			for j := i; j > 0 && children[j].Span.StartTime.Before(children[j-1].Span.StartTime); j-- {
				children[j], children[j-1] = children[j-1], children[j]
			}
		}
	}

	return roots
}

// PrintSpanTree formats a span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	fmt.Fprintf(sb, "%s[%s] %s %s (%.2fms)\n",
		strings.Repeat("  ", depth), node.Span.Op, ShortName(node.Span.Name), node.Span.Status,
		node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// ShortName drops the import path from a function description.
func ShortName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
