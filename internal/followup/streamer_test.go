package followup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torrance721/careerflow-practice/internal/api/coach"
	"github.com/torrance721/careerflow-practice/internal/domain"
)

// fakeBackend scripts the two phases.
type fakeBackend struct {
	evalResp *coach.EvaluateResponse
	evalErr  error

	chunks    []string
	streamErr error // delivered in-band after chunks
	openErr   error // returned from StreamReply itself

	gotEvaluate *coach.EvaluateRequest
	gotReply    *coach.ReplyRequest
}

func (f *fakeBackend) Evaluate(ctx context.Context, req *coach.EvaluateRequest) (*coach.EvaluateResponse, error) {
	f.gotEvaluate = req
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return f.evalResp, nil
}

func (f *fakeBackend) StreamReply(ctx context.Context, req *coach.ReplyRequest) (<-chan coach.ReplyResult, error) {
	f.gotReply = req
	if f.openErr != nil {
		return nil, f.openErr
	}
	out := make(chan coach.ReplyResult)
	go func() {
		defer close(out)
		for _, delta := range f.chunks {
			out <- coach.ReplyResult{Chunk: &coach.ReplyChunk{Delta: delta}}
		}
		if f.streamErr != nil {
			out <- coach.ReplyResult{Err: f.streamErr}
		}
	}()
	return out, nil
}

func TestStreamer_Send(t *testing.T) {
	backend := &fakeBackend{
		evalResp: &coach.EvaluateResponse{
			Intent: "none",
			NewInfoPoints: []domain.CollectedInfoPoint{
				{Type: "experience", Summary: "scaled the ingest pipeline", Depth: 1},
			},
		},
		chunks: []string{"Tell me ", "how you ", "measured that."},
	}

	var renders []string
	s := New(backend, WithOnChunk(func(content string) { renders = append(renders, content) }))

	result, err := s.Send(context.Background(), &Request{
		SessionID:   "s1",
		Topic:       "System Design",
		UserMessage: "We scaled ingest 10x",
	})
	require.NoError(t, err)

	assert.Equal(t, "Tell me how you measured that.", result.Content)
	assert.Equal(t, domain.IntentNone, result.Intent)
	require.Len(t, result.NewInfoPoints, 1)

	// The buffer re-renders incrementally, accumulating on each chunk.
	require.Len(t, renders, 3)
	assert.Equal(t, "Tell me ", renders[0])
	assert.Equal(t, "Tell me how you ", renders[1])
	assert.Equal(t, "Tell me how you measured that.", renders[2])

	// After completion the transient buffer is cleared and flags are down.
	assert.Empty(t, s.StreamingContent())
	assert.False(t, s.IsEvaluating())
	assert.False(t, s.IsStreaming())
}

func TestStreamer_IntentPassedToReplyStream(t *testing.T) {
	backend := &fakeBackend{
		evalResp: &coach.EvaluateResponse{Intent: "want_easier"},
		chunks:   []string{"Let's try a simpler one."},
	}

	s := New(backend)
	result, err := s.Send(context.Background(), &Request{SessionID: "s1", UserMessage: "too hard"})
	require.NoError(t, err)

	assert.Equal(t, domain.IntentWantEasier, result.Intent)
	assert.False(t, result.Intent.SideEffecting())
	require.NotNil(t, backend.gotReply)
	assert.Equal(t, domain.IntentWantEasier, backend.gotReply.Intent)
}

func TestStreamer_UnclassifiedIntentIsNone(t *testing.T) {
	backend := &fakeBackend{
		evalResp: &coach.EvaluateResponse{Intent: "shrug"},
		chunks:   []string{"Go on."},
	}

	s := New(backend)
	result, err := s.Send(context.Background(), &Request{SessionID: "s1", UserMessage: "ok"})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentNone, result.Intent)
}

func TestStreamer_EvaluateErrorAbortsTurn(t *testing.T) {
	backend := &fakeBackend{evalErr: errors.New("backend down")}

	s := New(backend)
	_, err := s.Send(context.Background(), &Request{SessionID: "s1", UserMessage: "hi"})
	require.Error(t, err)

	assert.False(t, s.IsEvaluating())
	assert.False(t, s.IsStreaming())
	assert.Nil(t, backend.gotReply, "reply stream must not open after evaluate failure")
}

func TestStreamer_StreamErrorDiscardsPartialBuffer(t *testing.T) {
	backend := &fakeBackend{
		evalResp:  &coach.EvaluateResponse{Intent: "none"},
		chunks:    []string{"partial ", "text "},
		streamErr: errors.New("connection reset"),
	}

	s := New(backend)
	_, err := s.Send(context.Background(), &Request{SessionID: "s1", UserMessage: "hi"})
	require.Error(t, err)

	// No partial text is left visible.
	assert.Empty(t, s.StreamingContent())
	assert.False(t, s.IsStreaming())
}

func TestStreamer_TrimsEvaluateHistory(t *testing.T) {
	backend := &fakeBackend{
		evalResp: &coach.EvaluateResponse{Intent: "none"},
		chunks:   []string{"ok"},
	}

	var history []domain.Message
	for i := 0; i < 200; i++ {
		history = append(history, domain.Message{
			Role:    domain.RoleUser,
			Content: "a fairly long answer about system design tradeoffs and migration strategy",
		})
	}

	s := New(backend, WithContextBudget(100))
	_, err := s.Send(context.Background(), &Request{SessionID: "s1", Messages: history, UserMessage: "hi"})
	require.NoError(t, err)

	require.NotNil(t, backend.gotEvaluate)
	assert.Less(t, len(backend.gotEvaluate.Messages), len(history))
	assert.NotEmpty(t, backend.gotEvaluate.Messages)
}
