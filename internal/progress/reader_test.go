package progress

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torrance721/careerflow-practice/internal/api/coach"
	"github.com/torrance721/careerflow-practice/internal/domain"
)

// fakeStreamer feeds a pre-built channel to the reader.
type fakeStreamer struct {
	ch  chan coach.ProgressResult
	err error
}

func (f *fakeStreamer) StreamPreparation(ctx context.Context, dreamJob string) (<-chan coach.ProgressResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan coach.ProgressResult)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case result, ok := <-f.ch:
				if !ok {
					return
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func event(step domain.ProgressStep, progress int) coach.ProgressResult {
	return coach.ProgressResult{Event: &domain.ProgressEvent{Step: step, Progress: progress}}
}

func TestReader_CompleteFlow(t *testing.T) {
	f := &fakeStreamer{ch: make(chan coach.ProgressResult, 8)}

	var completeCalls, errorCalls atomic.Int32
	var gotData map[string]any
	done := make(chan struct{})

	r := NewReader(f,
		WithOnComplete(func(data map[string]any) {
			completeCalls.Add(1)
			gotData = data
			close(done)
		}),
		WithOnError(func(string) { errorCalls.Add(1) }),
	)

	if err := r.Start(context.Background(), "Staff Engineer"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.ch <- event(domain.StepParsing, 10)
	f.ch <- event(domain.StepGeneratingPlan, 80)
	f.ch <- coach.ProgressResult{Event: &domain.ProgressEvent{
		Step: domain.StepComplete, Progress: 100, Data: map[string]any{"plan_id": "p1"},
	}}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion callback")
	}
	r.Close()

	if got := completeCalls.Load(); got != 1 {
		t.Errorf("complete callbacks = %d, want 1", got)
	}
	if got := errorCalls.Load(); got != 0 {
		t.Errorf("error callbacks = %d, want 0", got)
	}
	if gotData["plan_id"] != "p1" {
		t.Errorf("data[plan_id] = %v, want p1", gotData["plan_id"])
	}
	if got := len(r.History()); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
	if !r.Completed() {
		t.Error("Completed() = false, want true")
	}
}

func TestReader_ConnectionLost(t *testing.T) {
	f := &fakeStreamer{ch: make(chan coach.ProgressResult, 2)}

	var errorCalls atomic.Int32
	var gotDetail string
	done := make(chan struct{})

	r := NewReader(f,
		WithOnError(func(detail string) {
			errorCalls.Add(1)
			gotDetail = detail
			close(done)
		}),
		WithOnComplete(func(map[string]any) { t.Error("unexpected complete callback") }),
	)

	if err := r.Start(context.Background(), "Staff Engineer"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// One non-terminal event, then the connection drops.
	f.ch <- event(domain.StepParsing, 10)
	close(f.ch)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
	r.Close()

	if got := errorCalls.Load(); got != 1 {
		t.Errorf("error callbacks = %d, want exactly 1", got)
	}
	if gotDetail != "Connection lost" {
		t.Errorf("detail = %q, want %q", gotDetail, "Connection lost")
	}
}

func TestReader_BackendErrorEvent(t *testing.T) {
	f := &fakeStreamer{ch: make(chan coach.ProgressResult, 2)}

	var gotDetail string
	done := make(chan struct{})

	r := NewReader(f, WithOnError(func(detail string) {
		gotDetail = detail
		close(done)
	}))

	if err := r.Start(context.Background(), "Staff Engineer"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.ch <- coach.ProgressResult{Event: &domain.ProgressEvent{
		Step: domain.StepError, Detail: "resume could not be parsed",
	}}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
	r.Close()

	if gotDetail != "resume could not be parsed" {
		t.Errorf("detail = %q, want backend detail verbatim", gotDetail)
	}
}

func TestReader_TeardownBeforeAnyEvent(t *testing.T) {
	f := &fakeStreamer{ch: make(chan coach.ProgressResult)}

	r := NewReader(f,
		WithOnComplete(func(map[string]any) { t.Error("unexpected complete callback") }),
		WithOnError(func(string) { t.Error("unexpected error callback") }),
	)

	if err := r.Start(context.Background(), "Staff Engineer"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Immediate teardown: no callback may fire and Close must not hang.
	r.Close()

	if got := len(r.History()); got != 0 {
		t.Errorf("history length = %d, want 0", got)
	}
}

func TestReader_HistoryBounded(t *testing.T) {
	f := &fakeStreamer{ch: make(chan coach.ProgressResult, 64)}

	seen := make(chan struct{}, 64)
	r := NewReader(f,
		WithMaxHistory(5),
		WithOnEvent(func(domain.ProgressEvent) { seen <- struct{}{} }),
	)

	if err := r.Start(context.Background(), "Staff Engineer"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		f.ch <- event(domain.StepSearchingSources, i*5)
	}
	for i := 0; i < 20; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	r.Close()

	if got := len(r.History()); got != 5 {
		t.Errorf("history length = %d, want 5", got)
	}
}
