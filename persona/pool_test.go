package persona

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/maestro/duptracker"
	"github.com/c360studio/maestro/transport"
	"github.com/c360studio/maestro/transport/localstream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolRoutesOnlyToMatchingPersona(t *testing.T) {
	tr := localstream.New()
	dup := duptracker.New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var analystCalled, reviewerCalled int
	analystDone := make(chan struct{}, 1)

	workers := []WorkerConfig{
		{Persona: "analyst", ConsumerName: "analyst-1", Handler: func(ctx context.Context, msg transport.Message) (any, error) {
			analystCalled++
			analystDone <- struct{}{}
			return map[string]string{"ok": "true"}, nil
		}},
		{Persona: "reviewer", ConsumerName: "reviewer-1", Handler: func(ctx context.Context, msg transport.Message) (any, error) {
			reviewerCalled++
			return nil, nil
		}},
	}

	pool := NewPool(tr, dup, testLogger(), "req", "resp", "pool-group", workers, WithBlockDuration(200*time.Millisecond))
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	tr.XAdd(context.Background(), "req", "*", transport.Fields{
		"workflow_id": "wf1", "to_persona": "analyst", "corr_id": "c1", "task_id": "t1",
	})

	select {
	case <-analystDone:
	case <-time.After(2 * time.Second):
		t.Fatal("analyst worker did not process the message in time")
	}

	time.Sleep(50 * time.Millisecond)
	if analystCalled != 1 {
		t.Fatalf("expected analyst called once, got %d", analystCalled)
	}
	if reviewerCalled != 0 {
		t.Fatalf("expected reviewer never called, got %d", reviewerCalled)
	}
}

func TestPoolMissingToPersonaFailsOpen(t *testing.T) {
	tr := localstream.New()
	dup := duptracker.New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{}, 1)
	workers := []WorkerConfig{
		{Persona: "analyst", ConsumerName: "analyst-1", Handler: func(ctx context.Context, msg transport.Message) (any, error) {
			done <- struct{}{}
			return nil, nil
		}},
	}
	pool := NewPool(tr, dup, testLogger(), "req", "resp", "pool-group", workers, WithBlockDuration(200*time.Millisecond))
	pool.Start(ctx)
	defer pool.Stop()

	tr.XAdd(context.Background(), "req", "*", transport.Fields{"workflow_id": "wf1", "corr_id": "c1"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected fail-open delivery when to_persona is missing")
	}
}

func TestPoolAcksDuplicateWithoutInvokingHandler(t *testing.T) {
	tr := localstream.New()
	dup := duptracker.New(testLogger())
	dup.MarkProcessed("t1", "c1", "analyst", "wf-prev")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var called int
	workers := []WorkerConfig{
		{Persona: "analyst", ConsumerName: "analyst-1", Handler: func(ctx context.Context, msg transport.Message) (any, error) {
			called++
			return nil, nil
		}},
	}
	pool := NewPool(tr, dup, testLogger(), "req", "resp", "pool-group", workers, WithBlockDuration(200*time.Millisecond))
	pool.Start(ctx)
	defer pool.Stop()

	tr.XAdd(context.Background(), "req", "*", transport.Fields{
		"workflow_id": "wf1", "to_persona": "analyst", "corr_id": "c1", "task_id": "t1",
	})

	time.Sleep(400 * time.Millisecond)
	if called != 0 {
		t.Fatalf("expected handler never invoked for a duplicate, got %d calls", called)
	}
}
