package coach

import (
	"encoding/json"

	"github.com/torrance721/careerflow-practice/internal/domain"
)

// StartSessionRequest starts a new practice session.
type StartSessionRequest struct {
	TargetPosition string `json:"target_position"`
	ResumeText     string `json:"resume_text,omitempty"`
}

// StartSessionResponse is the backend's reply to a session start.
type StartSessionResponse struct {
	SessionID      string    `json:"session_id"`
	Topic          WireTopic `json:"topic"`
	OpeningMessage string    `json:"opening_message"`
}

// WireTopic carries the backend's topic shape. Difficulty arrives in whatever
// casing the backend feels like; normalize before use.
type WireTopic struct {
	Name       string `json:"name"`
	Difficulty string `json:"difficulty"`
}

// SendMessageRequest persists one user turn with the backend.
type SendMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// SendMessageResponse is the persistence RPC result. All fields are optional;
// the UI does not block on this call for the displayed reply text.
type SendMessageResponse struct {
	CollectedInfo []domain.CollectedInfoPoint `json:"collected_info,omitempty"`
	UserIntent    string                      `json:"user_intent,omitempty"`
	Topic         *WireTopic                  `json:"topic,omitempty"`
	Feedback      string                      `json:"feedback,omitempty"`
}

// EndSessionRequest ends a session.
type EndSessionRequest struct {
	SessionID string `json:"session_id"`
}

// EndSessionResponse carries the terminal feedback payload.
type EndSessionResponse struct {
	Feedbacks      []domain.TopicFeedback `json:"feedbacks"`
	CompanyMatches []domain.CompanyMatch  `json:"company_matches"`
	OverallSummary string                 `json:"overall_summary"`
}

// EvaluateRequest is the fast-path status/intent classification payload. It
// carries the full conversation context so the backend can classify without
// a session lookup round trip.
type EvaluateRequest struct {
	SessionID      string                      `json:"session_id"`
	Topic          string                      `json:"topic"`
	TargetPosition string                      `json:"target_position"`
	ResumeText     string                      `json:"resume_text,omitempty"`
	Messages       []domain.Message            `json:"messages"`
	CollectedInfo  []domain.CollectedInfoPoint `json:"collected_info,omitempty"`
	Message        string                      `json:"message"`
}

// EvaluateResponse is the fast-path result.
type EvaluateResponse struct {
	Intent        string                      `json:"intent,omitempty"`
	NewInfoPoints []domain.CollectedInfoPoint `json:"new_info_points,omitempty"`
}

// ReplyRequest asks for the assistant's next message as a chunk stream.
type ReplyRequest struct {
	SessionID string        `json:"session_id"`
	Message   string        `json:"message"`
	Intent    domain.Intent `json:"intent,omitempty"`
}

// ReplyChunk is one streamed fragment of the assistant's reply.
type ReplyChunk struct {
	Delta string `json:"delta"`
}

// ReplyResult wraps a chunk or error from the reply stream.
type ReplyResult struct {
	Chunk *ReplyChunk
	Err   error
}

// ProgressResult wraps a progress event or error from the preparation stream.
type ProgressResult struct {
	Event *domain.ProgressEvent
	Err   error
}

// wireProgressEvent is the backend's progress event shape before validation.
type wireProgressEvent struct {
	Step     string         `json:"step"`
	Message  string         `json:"message"`
	Detail   string         `json:"detail,omitempty"`
	Progress int            `json:"progress"`
	Data     map[string]any `json:"data,omitempty"`
}

// toCanonical validates a wire event into a domain.ProgressEvent. Unknown
// steps are rejected as protocol errors; out-of-range progress values are
// clamped for display rather than rejected.
func (e *wireProgressEvent) toCanonical() (*domain.ProgressEvent, error) {
	step := domain.ProgressStep(e.Step)
	switch step {
	case domain.StepParsing, domain.StepSearchingSources, domain.StepExtractingKnowledge,
		domain.StepGeneratingPlan, domain.StepComplete, domain.StepError:
	default:
		return nil, protocolErr("unknown progress step: " + e.Step)
	}

	progress := e.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return &domain.ProgressEvent{
		Step:     step,
		Message:  e.Message,
		Detail:   e.Detail,
		Progress: progress,
		Data:     e.Data,
	}, nil
}

func protocolErr(message string) *domain.ProtocolError {
	return domain.ErrProtocol(message)
}

// errorResponse is the backend's error envelope.
type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseErrorResponse parses a backend error body into a ProtocolError.
// Returns nil if the body is not a recognizable error envelope.
func ParseErrorResponse(body []byte) *domain.ProtocolError {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if resp.Error.Message == "" {
		return nil
	}

	perr := domain.ErrBackend(resp.Error.Message)
	if resp.Error.Code != "" {
		perr = perr.WithCode(domain.ErrorCode(resp.Error.Code))
	}
	return perr
}
