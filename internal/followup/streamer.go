// Package followup implements the two-phase optimized reply path: a fast
// status/intent evaluation followed by an incremental stream of the
// assistant's reply text.
package followup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/torrance721/careerflow-practice/internal/api/coach"
	"github.com/torrance721/careerflow-practice/internal/domain"
	"github.com/torrance721/careerflow-practice/internal/tokens"
)

// Backend is the slice of the coach client the streamer needs.
type Backend interface {
	Evaluate(ctx context.Context, req *coach.EvaluateRequest) (*coach.EvaluateResponse, error)
	StreamReply(ctx context.Context, req *coach.ReplyRequest) (<-chan coach.ReplyResult, error)
}

// Request carries the conversation context for one user turn.
type Request struct {
	SessionID      string
	Topic          string
	TargetPosition string
	ResumeText     string
	Messages       []domain.Message
	CollectedInfo  []domain.CollectedInfoPoint
	UserMessage    string
}

// Result is the outcome of a completed turn.
type Result struct {
	// Content is the final streamed reply text, authoritative for display.
	Content string

	// Intent is the classification from the evaluation phase. Side-effecting
	// intents (switch_topic, end_interview, need_hint) are the caller's job;
	// difficulty intents are already reflected in Content.
	Intent domain.Intent

	// NewInfoPoints are collected-info additions detected by the fast path.
	NewInfoPoints []domain.CollectedInfoPoint
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithOnChunk registers a callback invoked with the accumulated transient
// buffer after every chunk, for incremental re-render.
func WithOnChunk(fn func(streamingContent string)) Option {
	return func(s *Streamer) {
		s.onChunk = fn
	}
}

// WithOnEvaluated registers a callback invoked with the classified intent as
// soon as the fast evaluation phase returns, before any reply text streams.
func WithOnEvaluated(fn func(intent domain.Intent)) Option {
	return func(s *Streamer) {
		s.onEvaluated = fn
	}
}

// WithContextBudget overrides the token budget applied to the history slice
// of the evaluate payload.
func WithContextBudget(budget int) Option {
	return func(s *Streamer) {
		if budget > 0 {
			s.contextBudget = budget
		}
	}
}

// Streamer runs the two-phase protocol for one session. It owns only the
// transient streaming buffer; committed history stays with the caller.
type Streamer struct {
	backend       Backend
	estimator     *tokens.Estimator
	contextBudget int
	onChunk       func(string)
	onEvaluated   func(domain.Intent)

	mu           sync.Mutex
	isEvaluating bool
	isStreaming  bool
	buffer       strings.Builder
}

// New creates a streamer over the given backend.
func New(backend Backend, opts ...Option) *Streamer {
	s := &Streamer{
		backend:       backend,
		estimator:     tokens.NewEstimator(),
		contextBudget: tokens.DefaultContextBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsEvaluating reports whether the fast evaluation phase is in flight.
func (s *Streamer) IsEvaluating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isEvaluating
}

// IsStreaming reports whether the reply stream is in flight.
func (s *Streamer) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isStreaming
}

// StreamingContent returns the current transient buffer.
func (s *Streamer) StreamingContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String()
}

// Send runs both phases for one user turn. On any error both loading flags
// are cleared and the transient buffer is discarded entirely; no partial
// text survives for the caller to commit.
func (s *Streamer) Send(ctx context.Context, req *Request) (*Result, error) {
	evalResp, err := s.evaluate(ctx, req)
	if err != nil {
		return nil, err
	}

	intent := domain.ParseIntent(evalResp.Intent)
	if s.onEvaluated != nil {
		s.onEvaluated(intent)
	}

	content, err := s.stream(ctx, req, intent)
	if err != nil {
		return nil, err
	}

	return &Result{
		Content:       content,
		Intent:        intent,
		NewInfoPoints: evalResp.NewInfoPoints,
	}, nil
}

func (s *Streamer) evaluate(ctx context.Context, req *Request) (*coach.EvaluateResponse, error) {
	s.mu.Lock()
	s.isEvaluating = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isEvaluating = false
		s.mu.Unlock()
	}()

	resp, err := s.backend.Evaluate(ctx, &coach.EvaluateRequest{
		SessionID:      req.SessionID,
		Topic:          req.Topic,
		TargetPosition: req.TargetPosition,
		ResumeText:     req.ResumeText,
		Messages:       s.estimator.TrimToBudget(req.Messages, s.contextBudget),
		CollectedInfo:  req.CollectedInfo,
		Message:        req.UserMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate phase: %w", err)
	}
	return resp, nil
}

func (s *Streamer) stream(ctx context.Context, req *Request, intent domain.Intent) (string, error) {
	s.mu.Lock()
	s.isStreaming = true
	s.buffer.Reset()
	s.mu.Unlock()

	fail := func(err error) (string, error) {
		s.mu.Lock()
		s.isStreaming = false
		s.buffer.Reset()
		s.mu.Unlock()
		return "", fmt.Errorf("streaming phase: %w", err)
	}

	stream, err := s.backend.StreamReply(ctx, &coach.ReplyRequest{
		SessionID: req.SessionID,
		Message:   req.UserMessage,
		Intent:    intent,
	})
	if err != nil {
		return fail(err)
	}

	for result := range stream {
		if result.Err != nil {
			return fail(result.Err)
		}

		s.mu.Lock()
		s.buffer.WriteString(result.Chunk.Delta)
		content := s.buffer.String()
		onChunk := s.onChunk
		s.mu.Unlock()

		if onChunk != nil {
			onChunk(content)
		}
	}

	s.mu.Lock()
	content := s.buffer.String()
	s.buffer.Reset()
	s.isStreaming = false
	s.mu.Unlock()

	return content, nil
}
