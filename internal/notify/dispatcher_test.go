package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"transferWatch/internal/model"
)

type fakeDestination struct {
	name     string
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Message
	block    chan struct{}
}

func (f *fakeDestination) Name() string { return f.name }

func (f *fakeDestination) Send(ctx context.Context, msg Message) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("send failed")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeDestination) snapshot() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, len(f.sent)
}

func TestDeliverRetriesWithLinearBackoff(t *testing.T) {
	dest := &fakeDestination{name: "flaky", failures: 2}
	d := NewDispatcher(Config{Attempts: 3, Backoff: time.Second}, Formatter{}, zap.NewNop(), dest)

	var slept []time.Duration
	d.sleep = func(_ context.Context, delay time.Duration) error {
		slept = append(slept, delay)
		return nil
	}

	if err := d.deliver(context.Background(), dest, Message{Text: "hi"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected backoff: %v", slept)
	}
	if calls, sent := dest.snapshot(); calls != 3 || sent != 1 {
		t.Fatalf("unexpected calls=%d sent=%d", calls, sent)
	}
}

func TestDeliverGivesUpAfterAttempts(t *testing.T) {
	dest := &fakeDestination{name: "down", failures: 10}
	d := NewDispatcher(Config{Attempts: 2, Backoff: time.Millisecond}, Formatter{}, zap.NewNop(), dest)
	d.sleep = func(context.Context, time.Duration) error { return nil }

	if err := d.deliver(context.Background(), dest, Message{Text: "hi"}); err == nil {
		t.Fatalf("expected error")
	}
	if calls, _ := dest.snapshot(); calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDispatchIsolatesDestinations(t *testing.T) {
	stuck := &fakeDestination{name: "stuck", block: make(chan struct{})}
	healthy := &fakeDestination{name: "healthy"}
	d := NewDispatcher(Config{Attempts: 1, DrainTimeout: 50 * time.Millisecond}, Formatter{}, zap.NewNop(), stuck, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 5; i++ {
		d.Dispatch(ctx, testEvent(model.DirectionIncoming))
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, sent := healthy.snapshot(); sent == 5 {
			break
		}
		if time.Now().After(deadline) {
			_, sent := healthy.snapshot()
			t.Fatalf("healthy destination got %d messages", sent)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, sent := stuck.snapshot(); sent != 0 {
		t.Fatalf("stuck destination should not have delivered")
	}
}

func TestDispatchCarriesDirectionAndEvent(t *testing.T) {
	dest := &fakeDestination{name: "rec"}
	d := NewDispatcher(Config{}, Formatter{}, zap.NewNop(), dest)

	d.Dispatch(context.Background(), testEvent(model.DirectionOutgoing))
	msg, ok := d.routes[0].pop()
	if !ok || msg.Direction != model.DirectionOutgoing || msg.Event == nil || msg.Event.Symbol != "FRIC" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	d.Broadcast(context.Background(), "status")
	msg, ok = d.routes[0].pop()
	if !ok || msg.Event != nil || msg.Text != "status" {
		t.Fatalf("unexpected broadcast: %+v", msg)
	}
}

func TestRunWithoutDestinations(t *testing.T) {
	d := NewDispatcher(Config{}, Formatter{}, zap.NewNop())
	if err := d.Run(context.Background()); err == nil {
		t.Fatalf("expected error without destinations")
	}
}

func waitForCalls(t *testing.T, dest *fakeDestination, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		calls, _ := dest.snapshot()
		if calls >= want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s: expected %d send attempts, got %d", dest.name, want, calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatchBacklogKeepsEveryEvent(t *testing.T) {
	slow := &fakeDestination{name: "slow", block: make(chan struct{})}
	d := NewDispatcher(Config{BacklogWarn: 2, Attempts: 1}, Formatter{}, zap.NewNop(), slow)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 10; i++ {
		d.Dispatch(ctx, testEvent(model.DirectionIncoming))
	}
	close(slow.block)

	waitForCalls(t, slow, 10)
	if _, sent := slow.snapshot(); sent != 10 {
		t.Fatalf("expected 10 deliveries, got %d", sent)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunDrainsBacklogOnShutdown(t *testing.T) {
	dest := &fakeDestination{name: "archive"}
	d := NewDispatcher(Config{Attempts: 1, DrainTimeout: time.Second}, Formatter{}, zap.NewNop(), dest)

	for i := 0; i < 5; i++ {
		d.Dispatch(context.Background(), testEvent(model.DirectionOutgoing))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls, sent := dest.snapshot(); calls != 5 || sent != 5 {
		t.Fatalf("expected 5 drained deliveries, got calls=%d sent=%d", calls, sent)
	}
	if left := d.routes[0].depth(); left != 0 {
		t.Fatalf("expected empty backlog, got %d", left)
	}
}

func TestDrainStopsAtTimeout(t *testing.T) {
	stuck := &fakeDestination{name: "stuck", block: make(chan struct{})}
	d := NewDispatcher(Config{Attempts: 1, DrainTimeout: 20 * time.Millisecond}, Formatter{}, zap.NewNop(), stuck)

	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), testEvent(model.DirectionIncoming))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("drain took %v", elapsed)
	}
	if left := d.routes[0].depth(); left != 2 {
		t.Fatalf("expected 2 abandoned messages, got %d", left)
	}
}

func TestDeliverSetsAttempt(t *testing.T) {
	var attempts []int
	dest := &recordingDestination{send: func(msg Message) error {
		attempts = append(attempts, msg.Attempt)
		if len(attempts) < 3 {
			return errors.New("send failed")
		}
		return nil
	}}
	d := NewDispatcher(Config{Attempts: 3}, Formatter{}, zap.NewNop(), dest)
	d.sleep = func(context.Context, time.Duration) error { return nil }

	if err := d.deliver(context.Background(), dest, Message{Text: "hi"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Fatalf("unexpected attempts: %v", attempts)
	}
}

type recordingDestination struct {
	send func(Message) error
}

func (r *recordingDestination) Name() string { return "recording" }

func (r *recordingDestination) Send(_ context.Context, msg Message) error { return r.send(msg) }
