package domain

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

func TestResolveSpec_NextNodeOverride(t *testing.T) {
	node := &Node{
		ID:            1,
		Type:          NodeTypeStart,
		NextNodeID:    int64Ptr(2),
		Configuration: map[string]any{"nextNodeId": float64(5)},
	}

	spec, err := node.ResolveSpec()
	if err != nil {
		t.Fatalf("ResolveSpec() error = %v", err)
	}
	if spec.Next == nil || *spec.Next != 5 {
		t.Errorf("Next = %v, want 5 (configuration override)", spec.Next)
	}
}

func TestResolveSpec_ExplicitNext(t *testing.T) {
	node := &Node{ID: 1, Type: NodeTypeCondition, NextNodeID: int64Ptr(3)}

	spec, err := node.ResolveSpec()
	if err != nil {
		t.Fatalf("ResolveSpec() error = %v", err)
	}
	if spec.Next == nil || *spec.Next != 3 {
		t.Errorf("Next = %v, want 3", spec.Next)
	}
}

func TestResolveSpec_NoSuccessor(t *testing.T) {
	node := &Node{ID: 1, Type: NodeTypeEnd}

	spec, err := node.ResolveSpec()
	if err != nil {
		t.Fatalf("ResolveSpec() error = %v", err)
	}
	if spec.Next != nil {
		t.Errorf("Next = %v, want nil", spec.Next)
	}
	if spec.Wait != nil {
		t.Errorf("Wait = %v, want nil for non-wait node", spec.Wait)
	}
}

func TestResolveSpec_WaitDelay(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		want   time.Duration
	}{
		{"explicit delay", map[string]any{"delay": float64(2500)}, 2500 * time.Millisecond},
		{"default delay", nil, time.Second},
		{"zero delay", map[string]any{"delay": float64(0)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &Node{ID: 1, Type: NodeTypeWait, Configuration: tt.config}

			spec, err := node.ResolveSpec()
			if err != nil {
				t.Fatalf("ResolveSpec() error = %v", err)
			}
			if spec.Wait == nil {
				t.Fatal("Wait = nil, want WaitSpec")
			}
			if spec.Wait.Delay != tt.want {
				t.Errorf("Delay = %v, want %v", spec.Wait.Delay, tt.want)
			}
		})
	}
}

func TestResolveSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		node *Node
	}{
		{"unknown type", &Node{ID: 1, Type: "loop"}},
		{"non-numeric nextNodeId", &Node{ID: 1, Type: NodeTypeStart, Configuration: map[string]any{"nextNodeId": "two"}}},
		{"non-numeric delay", &Node{ID: 1, Type: NodeTypeWait, Configuration: map[string]any{"delay": "soon"}}},
		{"negative delay", &Node{ID: 1, Type: NodeTypeWait, Configuration: map[string]any{"delay": float64(-100)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.node.ResolveSpec(); err == nil {
				t.Error("ResolveSpec() = nil error, want error")
			}
		})
	}
}

func TestWorkflow_NodeAfter(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{{ID: 10}, {ID: 20}, {ID: 30}},
	}

	next, ok := wf.NodeAfter(10)
	if !ok || next.ID != 20 {
		t.Errorf("NodeAfter(10) = %v, %v; want node 20", next, ok)
	}

	if _, ok := wf.NodeAfter(30); ok {
		t.Error("NodeAfter(last) = true, want false")
	}

	if _, ok := wf.NodeAfter(99); ok {
		t.Error("NodeAfter(unknown) = true, want false")
	}
}

func TestNode_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{"action wins", Node{Type: NodeTypeStart, Name: "first", Configuration: map[string]any{"action": "http"}}, "http"},
		{"name fallback", Node{Type: NodeTypeStart, Name: "first"}, "first"},
		{"type fallback", Node{Type: NodeTypeWait}, "wait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	terminal := []ExecutionStatus{ExecutionStatusCompleted, ExecutionStatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}

	open := []ExecutionStatus{ExecutionStatusPending, ExecutionStatusInProgress}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}
