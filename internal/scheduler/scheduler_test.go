package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Cascade/internal/mq"
	"github.com/shaiso/Cascade/internal/repo"
)

type executeCall struct {
	workflowID int64
	nodeID     int64
	attempt    int
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []executeCall
	err   error
}

func (e *fakeExecutor) ExecuteNode(_ context.Context, workflowID, nodeID int64, attempt int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, executeCall{workflowID: workflowID, nodeID: nodeID, attempt: attempt})
	return e.err
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []executeCall
}

func (e *fakeEnqueuer) PublishExecute(_ context.Context, workflowID, nodeID int64, attempt int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, executeCall{workflowID: workflowID, nodeID: nodeID, attempt: attempt})
	return nil
}

func newTestScheduler(executor *fakeExecutor, enqueuer *fakeEnqueuer) *Scheduler {
	return New(Config{
		Executor: executor,
		Enqueuer: enqueuer,
	})
}

func delayedDelivery(workflowID, nodeID int64, delayMs int64) *mq.Delivery {
	return &mq.Delivery{
		Job: mq.Job{
			ID:         "job-1",
			Type:       mq.JobTypeDelayed,
			WorkflowID: workflowID,
			NodeID:     nodeID,
			Delay:      delayMs,
		},
	}
}

func TestHandleJob_WaitsDelayThenExecutes(t *testing.T) {
	executor := &fakeExecutor{}
	s := newTestScheduler(executor, &fakeEnqueuer{})

	started := time.Now()
	if err := s.handleJob(context.Background(), delayedDelivery(1, 20, 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(started)

	if elapsed < 50*time.Millisecond {
		t.Errorf("expected at least 50ms delay, got %v", elapsed)
	}
	if len(executor.calls) != 1 {
		t.Fatalf("expected 1 execute call, got %d", len(executor.calls))
	}
	call := executor.calls[0]
	if call.workflowID != 1 || call.nodeID != 20 {
		t.Errorf("unexpected call %+v", call)
	}
}

func TestHandleJob_ZeroDelayExecutesImmediately(t *testing.T) {
	executor := &fakeExecutor{}
	s := newTestScheduler(executor, &fakeEnqueuer{})

	if err := s.handleJob(context.Background(), delayedDelivery(1, 20, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executor.calls) != 1 {
		t.Fatalf("expected 1 execute call, got %d", len(executor.calls))
	}
}

func TestHandleJob_CancelledDuringWait(t *testing.T) {
	executor := &fakeExecutor{}
	s := newTestScheduler(executor, &fakeEnqueuer{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.handleJob(ctx, delayedDelivery(1, 20, 60_000))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(executor.calls) != 0 {
		t.Errorf("expected no execution after cancel, got %d", len(executor.calls))
	}
}

func TestHandleJob_RetryableFailureGoesToExecuteQueue(t *testing.T) {
	executor := &fakeExecutor{err: fmt.Errorf("transient failure")}
	enqueuer := &fakeEnqueuer{}
	s := newTestScheduler(executor, enqueuer)

	if err := s.handleJob(context.Background(), delayedDelivery(1, 20, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(enqueuer.calls) != 1 {
		t.Fatalf("expected 1 re-enqueue, got %d", len(enqueuer.calls))
	}
	if enqueuer.calls[0].attempt != 1 {
		t.Errorf("expected attempt 1, got %d", enqueuer.calls[0].attempt)
	}
}

func TestHandleJob_NotFoundIsPermanent(t *testing.T) {
	executor := &fakeExecutor{err: fmt.Errorf("workflow 1: %w", repo.ErrNotFound)}
	enqueuer := &fakeEnqueuer{}
	s := newTestScheduler(executor, enqueuer)

	if err := s.handleJob(context.Background(), delayedDelivery(1, 20, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enqueuer.calls) != 0 {
		t.Errorf("expected no retry for NotFound, got %d", len(enqueuer.calls))
	}
}
