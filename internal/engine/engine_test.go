package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

// --- Fakes ---

type fakeGraphStore struct {
	workflows map[int64]*domain.Workflow
}

func (s *fakeGraphStore) GetByID(_ context.Context, id int64) (*domain.Workflow, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return wf, nil
}

type stateCall struct {
	op     string // start, complete, fail
	nodeID int64
}

type fakeStateStore struct {
	mu      sync.Mutex
	nextID  int64
	nodes   map[int64]int64 // state ID -> node ID
	records map[int64]*domain.ExecutionState
	calls   []stateCall
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{
		nodes:   make(map[int64]int64),
		records: make(map[int64]*domain.ExecutionState),
	}
}

func (s *fakeStateStore) Start(_ context.Context, workflowID, nodeID int64) (*domain.ExecutionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.nodes[s.nextID] = nodeID
	s.calls = append(s.calls, stateCall{op: "start", nodeID: nodeID})

	state := &domain.ExecutionState{
		ID:         s.nextID,
		WorkflowID: workflowID,
		NodeID:     nodeID,
		StartedAt:  time.Now(),
		Status:     domain.ExecutionStatusInProgress,
	}
	s.records[s.nextID] = state
	return state, nil
}

// recordForNode возвращает последнюю запись выполнения узла.
func (s *fakeStateStore) recordForNode(nodeID int64) *domain.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.ExecutionState
	for _, record := range s.records {
		if record.NodeID == nodeID && (latest == nil || record.ID > latest.ID) {
			latest = record
		}
	}
	return latest
}

func (s *fakeStateStore) Complete(_ context.Context, stateID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, stateCall{op: "complete", nodeID: s.nodes[stateID]})
	return nil
}

func (s *fakeStateStore) Fail(_ context.Context, stateID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, stateCall{op: "fail", nodeID: s.nodes[stateID]})
	return nil
}

func (s *fakeStateStore) callsSnapshot() []stateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stateCall(nil), s.calls...)
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []domain.WorkflowUpdate
}

func (b *recordingBroadcaster) Broadcast(update domain.WorkflowUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update)
}

func (b *recordingBroadcaster) snapshot() []domain.WorkflowUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.WorkflowUpdate(nil), b.updates...)
}

type delayedCall struct {
	nodeID int64
	delay  time.Duration
}

type fakeDelayed struct {
	mu    sync.Mutex
	calls []delayedCall
}

func (d *fakeDelayed) PublishDelayed(_ context.Context, _, nodeID int64, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, delayedCall{nodeID: nodeID, delay: delay})
	return nil
}

// failOnNode проваливает выполнение заданного узла, остальные проходят.
func failOnNode(nodeID int64, cause error) Runner {
	return RunnerFunc(func(_ context.Context, _ *domain.Workflow, node *domain.Node) error {
		if node.ID == nodeID {
			return cause
		}
		return nil
	})
}

// instantRunner выполняет узлы без паузы.
var instantRunner = RunnerFunc(func(context.Context, *domain.Workflow, *domain.Node) error {
	return nil
})

// --- Helpers ---

func int64Ptr(v int64) *int64 { return &v }

func newTestWorkflow(nodes ...domain.Node) *domain.Workflow {
	return &domain.Workflow{
		ID:     1,
		Name:   "test-workflow",
		Status: domain.WorkflowStatusActive,
		Nodes:  nodes,
	}
}

type testHarness struct {
	engine      *Engine
	states      *fakeStateStore
	broadcaster *recordingBroadcaster
	delayed     *fakeDelayed
}

func newTestHarness(wf *domain.Workflow, runner Runner) *testHarness {
	states := newFakeStateStore()
	broadcaster := &recordingBroadcaster{}
	delayed := &fakeDelayed{}

	graphs := &fakeGraphStore{workflows: map[int64]*domain.Workflow{}}
	if wf != nil {
		graphs.workflows[wf.ID] = wf
	}

	return &testHarness{
		engine: New(Config{
			Graphs:      graphs,
			States:      states,
			Broadcaster: broadcaster,
			Delayed:     delayed,
			Runner:      runner,
		}),
		states:      states,
		broadcaster: broadcaster,
		delayed:     delayed,
	}
}

// assertEventSequence сверяет статусы событий в порядке рассылки.
func assertEventSequence(t *testing.T, updates []domain.WorkflowUpdate, want ...string) {
	t.Helper()
	if len(updates) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(updates), updates)
	}
	for i, status := range want {
		if updates[i].Status != status {
			t.Errorf("event %d: expected status %q, got %q", i, status, updates[i].Status)
		}
	}
}

// --- ExecuteNode Tests ---

func TestExecuteNode_SingleNode(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart, Name: "begin"},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNode(context.Background(), 1, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates := h.broadcaster.snapshot()
	assertEventSequence(t, updates, domain.EventStatusInProgress, domain.EventStatusCompleted)

	// Событие несёт идентификаторы и имя узла
	if updates[0].WorkflowID != 1 {
		t.Errorf("expected workflowId 1, got %d", updates[0].WorkflowID)
	}
	if updates[0].NodeID == nil || *updates[0].NodeID != 10 {
		t.Errorf("expected nodeId 10, got %v", updates[0].NodeID)
	}
	if updates[0].NodeName != "begin" {
		t.Errorf("expected node name %q, got %q", "begin", updates[0].NodeName)
	}
	if updates[0].WorkflowName != "test-workflow" {
		t.Errorf("expected workflow name, got %q", updates[0].WorkflowName)
	}

	calls := h.states.callsSnapshot()
	if len(calls) != 2 || calls[0].op != "start" || calls[1].op != "complete" {
		t.Fatalf("expected start then complete, got %+v", calls)
	}
}

func TestExecuteNode_Chain(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart, NextNodeID: int64Ptr(20)},
		domain.Node{ID: 20, WorkflowID: 1, Type: domain.NodeTypeCondition, NextNodeID: int64Ptr(30)},
		domain.Node{ID: 30, WorkflowID: 1, Type: domain.NodeTypeEnd},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNode(context.Background(), 1, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates := h.broadcaster.snapshot()
	assertEventSequence(t, updates,
		domain.EventStatusInProgress, domain.EventStatusCompleted,
		domain.EventStatusInProgress, domain.EventStatusCompleted,
		domain.EventStatusInProgress, domain.EventStatusCompleted,
	)

	// Узлы выполняются в порядке цепочки
	wantNodes := []int64{10, 10, 20, 20, 30, 30}
	for i, update := range updates {
		if *update.NodeID != wantNodes[i] {
			t.Errorf("event %d: expected node %d, got %d", i, wantNodes[i], *update.NodeID)
		}
	}
}

func TestExecuteNode_ConfigurationOverridesSuccessor(t *testing.T) {
	// configuration.nextNodeId имеет приоритет над next_node_id
	wf := newTestWorkflow(
		domain.Node{
			ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart,
			NextNodeID:    int64Ptr(20),
			Configuration: map[string]any{"nextNodeId": float64(30)},
		},
		domain.Node{ID: 20, WorkflowID: 1, Type: domain.NodeTypeCondition},
		domain.Node{ID: 30, WorkflowID: 1, Type: domain.NodeTypeEnd},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNode(context.Background(), 1, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates := h.broadcaster.snapshot()
	if len(updates) != 4 {
		t.Fatalf("expected 4 events, got %d", len(updates))
	}
	if *updates[2].NodeID != 30 {
		t.Errorf("expected override successor 30, got %d", *updates[2].NodeID)
	}
}

func TestExecuteNode_WorkflowNotFound(t *testing.T) {
	h := newTestHarness(nil, instantRunner)

	err := h.engine.ExecuteNode(context.Background(), 99, 10, 0)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(h.broadcaster.snapshot()) != 0 {
		t.Error("expected no events for missing workflow")
	}
}

func TestExecuteNode_NodeNotFound(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart},
	)
	h := newTestHarness(wf, instantRunner)

	err := h.engine.ExecuteNode(context.Background(), 1, 99, 0)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(h.broadcaster.snapshot()) != 0 {
		t.Error("expected no events for missing node")
	}
	if len(h.states.callsSnapshot()) != 0 {
		t.Error("expected no state records for missing node")
	}
}

func TestExecuteNode_DanglingSuccessor(t *testing.T) {
	// Ссылка на несуществующий преемник: узел выполняется, затем ошибка
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart, NextNodeID: int64Ptr(99)},
	)
	h := newTestHarness(wf, instantRunner)

	err := h.engine.ExecuteNode(context.Background(), 1, 10, 0)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	assertEventSequence(t, h.broadcaster.snapshot(),
		domain.EventStatusInProgress, domain.EventStatusCompleted)
}

func TestExecuteNode_CycleDetected(t *testing.T) {
	// 10 -> 20 -> 10: каждый узел выполняется ровно один раз
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart, NextNodeID: int64Ptr(20)},
		domain.Node{ID: 20, WorkflowID: 1, Type: domain.NodeTypeCondition, NextNodeID: int64Ptr(10)},
	)
	h := newTestHarness(wf, instantRunner)

	err := h.engine.ExecuteNode(context.Background(), 1, 10, 0)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %T", err)
	}
	if execErr.NodeID != 10 {
		t.Errorf("expected cycle at node 10, got %d", execErr.NodeID)
	}

	assertEventSequence(t, h.broadcaster.snapshot(),
		domain.EventStatusInProgress, domain.EventStatusCompleted,
		domain.EventStatusInProgress, domain.EventStatusCompleted,
	)
}

func TestExecuteNode_SelfCycle(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart, NextNodeID: int64Ptr(10)},
	)
	h := newTestHarness(wf, instantRunner)

	err := h.engine.ExecuteNode(context.Background(), 1, 10, 0)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	// Узел выполнен один раз до обнаружения цикла
	assertEventSequence(t, h.broadcaster.snapshot(),
		domain.EventStatusInProgress, domain.EventStatusCompleted)
}

func TestExecuteNode_RunnerFailure(t *testing.T) {
	cause := fmt.Errorf("integration timed out")
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart, NextNodeID: int64Ptr(20)},
		domain.Node{ID: 20, WorkflowID: 1, Type: domain.NodeTypeCondition},
	)
	h := newTestHarness(wf, failOnNode(10, cause))

	err := h.engine.ExecuteNode(context.Background(), 1, 10, 2)
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}

	// in_progress, затем failed; преемник не выполняется
	updates := h.broadcaster.snapshot()
	assertEventSequence(t, updates, domain.EventStatusInProgress, domain.EventStatusFailed)
	if updates[1].Message == "" {
		t.Error("expected failure message in failed event")
	}

	calls := h.states.callsSnapshot()
	if len(calls) != 2 || calls[1].op != "fail" {
		t.Fatalf("expected start then fail, got %+v", calls)
	}
}

func TestExecuteNode_StateRecordMarkedCompleted(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNode(context.Background(), 1, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := h.states.recordForNode(10)
	if record == nil {
		t.Fatal("expected an execution state record for node 10")
	}
	if record.Status != domain.ExecutionStatusCompleted {
		t.Errorf("record status = %s, want completed", record.Status)
	}
	if record.CompletedAt == nil {
		t.Error("expected CompletedAt to be set on the completed record")
	}
}

func TestExecuteNode_StateRecordMarkedFailed(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart},
	)
	h := newTestHarness(wf, failOnNode(10, fmt.Errorf("boom")))

	if err := h.engine.ExecuteNode(context.Background(), 1, 10, 0); err == nil {
		t.Fatal("expected execution error")
	}

	record := h.states.recordForNode(10)
	if record == nil {
		t.Fatal("expected an execution state record for node 10")
	}
	if record.Status != domain.ExecutionStatusFailed {
		t.Errorf("record status = %s, want failed", record.Status)
	}
	if record.CompletedAt == nil {
		t.Error("expected CompletedAt to be set on the failed record")
	}
}

func TestExecuteNode_WaitSuccessorGoesToScheduler(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart, NextNodeID: int64Ptr(20)},
		domain.Node{
			ID: 20, WorkflowID: 1, Type: domain.NodeTypeWait,
			Configuration: map[string]any{"delay": float64(500)},
			NextNodeID:    int64Ptr(30),
		},
		domain.Node{ID: 30, WorkflowID: 1, Type: domain.NodeTypeEnd},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNode(context.Background(), 1, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Выполнен только стартовый узел, wait ушёл в очередь
	assertEventSequence(t, h.broadcaster.snapshot(),
		domain.EventStatusInProgress, domain.EventStatusCompleted)

	if len(h.delayed.calls) != 1 {
		t.Fatalf("expected 1 delayed job, got %d", len(h.delayed.calls))
	}
	if h.delayed.calls[0].nodeID != 20 {
		t.Errorf("expected delayed node 20, got %d", h.delayed.calls[0].nodeID)
	}
	if h.delayed.calls[0].delay != 500*time.Millisecond {
		t.Errorf("expected delay 500ms, got %v", h.delayed.calls[0].delay)
	}
}

func TestExecuteNode_WaitNodeRunsInline(t *testing.T) {
	// Прямой вызов на wait-узле (отложенный job сработал):
	// узел выполняется инлайн и цепочка продолжается
	wf := newTestWorkflow(
		domain.Node{
			ID: 20, WorkflowID: 1, Type: domain.NodeTypeWait,
			Configuration: map[string]any{"delay": float64(500)},
			NextNodeID:    int64Ptr(30),
		},
		domain.Node{ID: 30, WorkflowID: 1, Type: domain.NodeTypeEnd},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNode(context.Background(), 1, 20, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEventSequence(t, h.broadcaster.snapshot(),
		domain.EventStatusInProgress, domain.EventStatusCompleted,
		domain.EventStatusInProgress, domain.EventStatusCompleted,
	)
	if len(h.delayed.calls) != 0 {
		t.Errorf("expected no delayed jobs, got %d", len(h.delayed.calls))
	}
}

// --- ExecuteNextNode Tests ---

func TestExecuteNextNode_RunsPositionalSuccessor(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart},
		domain.Node{ID: 20, WorkflowID: 1, Type: domain.NodeTypeEnd},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNextNode(context.Background(), 1, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates := h.broadcaster.snapshot()
	assertEventSequence(t, updates, domain.EventStatusInProgress, domain.EventStatusCompleted)
	if *updates[0].NodeID != 20 {
		t.Errorf("expected node 20, got %d", *updates[0].NodeID)
	}
}

func TestExecuteNextNode_LastNodeIsNoop(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeEnd},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNextNode(context.Background(), 1, 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.broadcaster.snapshot()) != 0 {
		t.Error("expected no events for last node")
	}
}

func TestExecuteNextNode_MissingNodeIsNoop(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteNextNode(context.Background(), 1, 99, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.broadcaster.snapshot()) != 0 {
		t.Error("expected no events for a missing node")
	}
}

// --- ExecuteParallelNodes Tests ---

func TestExecuteParallelNodes_AllBranches(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart, NextNodeID: int64Ptr(11)},
		domain.Node{ID: 11, WorkflowID: 1, Type: domain.NodeTypeEnd},
		domain.Node{ID: 20, WorkflowID: 1, Type: domain.NodeTypeStart},
	)
	h := newTestHarness(wf, instantRunner)

	err := h.engine.ExecuteParallelNodes(context.Background(), 1, []int64{10, 20}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ветка 10 выполняет 2 узла, ветка 20 — один: 6 событий суммарно
	updates := h.broadcaster.snapshot()
	if len(updates) != 6 {
		t.Fatalf("expected 6 events, got %d", len(updates))
	}

	counts := make(map[int64]int)
	for _, update := range updates {
		counts[*update.NodeID]++
	}
	for _, nodeID := range []int64{10, 11, 20} {
		if counts[nodeID] != 2 {
			t.Errorf("node %d: expected 2 events, got %d", nodeID, counts[nodeID])
		}
	}
}

func TestExecuteParallelNodes_FailedBranchDoesNotCancelOthers(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart},
		domain.Node{ID: 20, WorkflowID: 1, Type: domain.NodeTypeStart},
	)
	h := newTestHarness(wf, failOnNode(10, fmt.Errorf("boom")))

	err := h.engine.ExecuteParallelNodes(context.Background(), 1, []int64{10, 20}, 0)
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}

	// Успешная ветка дошла до конца
	var completed int
	for _, update := range h.broadcaster.snapshot() {
		if update.Status == domain.EventStatusCompleted && *update.NodeID == 20 {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("expected surviving branch to complete, got %d completed events", completed)
	}
}

func TestExecuteParallelNodes_Empty(t *testing.T) {
	wf := newTestWorkflow(
		domain.Node{ID: 10, WorkflowID: 1, Type: domain.NodeTypeStart},
	)
	h := newTestHarness(wf, instantRunner)

	if err := h.engine.ExecuteParallelNodes(context.Background(), 1, nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.broadcaster.snapshot()) != 0 {
		t.Error("expected no events for empty node list")
	}
}

// --- Runner Tests ---

func TestFixedDelayRunner_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &FixedDelayRunner{Delay: time.Minute}
	err := runner.Run(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFixedDelayRunner_Completes(t *testing.T) {
	runner := &FixedDelayRunner{Delay: time.Millisecond}
	if err := runner.Run(context.Background(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
