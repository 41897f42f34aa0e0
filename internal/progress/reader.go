// Package progress consumes the coach backend's preparation progress stream
// and fans events out to display callbacks, with guaranteed connection
// release on every exit path.
package progress

import (
	"context"
	"sync"

	"github.com/torrance721/careerflow-practice/internal/api/coach"
	"github.com/torrance721/careerflow-practice/internal/domain"
)

// defaultMaxHistory bounds the display history so a runaway stream cannot
// grow memory without limit.
const defaultMaxHistory = 200

// connectionLostDetail is the fixed reason reported when the transport drops
// before a terminal event.
const connectionLostDetail = "Connection lost"

// Streamer opens the preparation progress stream. *coach.Client satisfies it.
type Streamer interface {
	StreamPreparation(ctx context.Context, dreamJob string) (<-chan coach.ProgressResult, error)
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxHistory overrides the display history bound.
func WithMaxHistory(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxHistory = n
		}
	}
}

// WithOnEvent registers a callback invoked for every event appended to the
// display history.
func WithOnEvent(fn func(domain.ProgressEvent)) Option {
	return func(r *Reader) {
		r.onEvent = fn
	}
}

// WithOnComplete registers the completion callback. It receives the data
// payload of the terminal complete event.
func WithOnComplete(fn func(data map[string]any)) Option {
	return func(r *Reader) {
		r.onComplete = fn
	}
}

// WithOnError registers the error callback. It receives the detail of a
// terminal error event, or the fixed connection-lost reason on a transport
// drop.
func WithOnError(fn func(detail string)) Option {
	return func(r *Reader) {
		r.onError = fn
	}
}

// Reader consumes one preparation stream for one dream-job parameter.
// Exactly one of the complete/error callbacks fires, at most once; closing
// the reader before any terminal event fires neither.
type Reader struct {
	streamer   Streamer
	maxHistory int

	onEvent    func(domain.ProgressEvent)
	onComplete func(data map[string]any)
	onError    func(detail string)

	mu        sync.Mutex
	history   []domain.ProgressEvent
	terminal  bool
	complete  bool
	errDetail string
	closed    bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReader creates a reader over the given stream source.
func NewReader(streamer Streamer, opts ...Option) *Reader {
	r := &Reader{
		streamer:   streamer,
		maxHistory: defaultMaxHistory,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens the live connection and begins pumping events. It returns
// immediately; events arrive on the callbacks. Start may be called once.
func (r *Reader) Start(ctx context.Context, dreamJob string) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	stream, err := r.streamer.StreamPreparation(ctx, dreamJob)
	if err != nil {
		cancel()
		close(r.done)
		return err
	}

	go r.pump(stream)
	return nil
}

func (r *Reader) pump(stream <-chan coach.ProgressResult) {
	defer close(r.done)
	defer r.cancel()

	for result := range stream {
		if result.Err != nil {
			r.finishError(connectionLostDetail)
			return
		}

		event := *result.Event
		switch event.Step {
		case domain.StepComplete:
			r.append(event)
			r.finishComplete(event.Data)
			return
		case domain.StepError:
			r.append(event)
			r.finishError(event.Detail)
			return
		default:
			r.append(event)
		}
	}

	// Channel closed without a terminal event: either the caller tore the
	// reader down, or the transport dropped mid-stream.
	r.finishError(connectionLostDetail)
}

func (r *Reader) append(event domain.ProgressEvent) {
	r.mu.Lock()
	if r.closed || r.terminal {
		r.mu.Unlock()
		return
	}
	r.history = append(r.history, event)
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
	onEvent := r.onEvent
	r.mu.Unlock()

	if onEvent != nil {
		onEvent(event)
	}
}

func (r *Reader) finishComplete(data map[string]any) {
	r.mu.Lock()
	if r.closed || r.terminal {
		r.mu.Unlock()
		return
	}
	r.terminal = true
	r.complete = true
	onComplete := r.onComplete
	r.mu.Unlock()

	if onComplete != nil {
		onComplete(data)
	}
}

func (r *Reader) finishError(detail string) {
	r.mu.Lock()
	if r.closed || r.terminal {
		r.mu.Unlock()
		return
	}
	r.terminal = true
	r.errDetail = detail
	onError := r.onError
	r.mu.Unlock()

	if onError != nil {
		onError(detail)
	}
}

// Close releases the connection. It is safe to call on every exit path,
// including before any event has arrived; in that case no callback fires.
// Close blocks until the pump goroutine has exited.
func (r *Reader) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// History returns a copy of the bounded display history.
func (r *Reader) History() []domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ProgressEvent, len(r.history))
	copy(out, r.history)
	return out
}

// Completed reports whether the stream finished with a complete event.
func (r *Reader) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// ErrDetail returns the terminal error detail, if any.
func (r *Reader) ErrDetail() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errDetail
}
