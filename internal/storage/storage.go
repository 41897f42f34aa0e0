// Package storage defines transcript persistence for completed practice
// sessions. The coach backend owns the authoritative session state; this
// store only captures a local transcript for the history views.
package storage

import (
	"context"
	"time"

	"github.com/torrance721/careerflow-practice/internal/domain"
)

// Transcript is one stored session with its messages and, once ended, its
// feedback.
type Transcript struct {
	Session  domain.Session          `json:"session"`
	Feedback *domain.SessionFeedback `json:"feedback,omitempty"`
}

// SessionSummary is the listing row for one stored session.
type SessionSummary struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id,omitempty"`
	TargetPosition string           `json:"target_position"`
	State          domain.ViewState `json:"state"`
	CurrentTopic   string           `json:"current_topic"`
	MessageCount   int              `json:"message_count"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        time.Time        `json:"ended_at,omitzero"`
}

// ListOptions filters and paginates session listings.
type ListOptions struct {
	UserID string
	Limit  int
	Offset int
}

// TranscriptStore persists session transcripts.
type TranscriptStore interface {
	// SaveSession inserts or updates the session row.
	SaveSession(ctx context.Context, sess *domain.Session) error

	// AddMessage appends one committed message to the transcript.
	AddMessage(ctx context.Context, sessionID string, msg *domain.Message) error

	// SaveFeedback stores the terminal feedback for an ended session.
	SaveFeedback(ctx context.Context, sessionID string, fb *domain.SessionFeedback) error

	// GetTranscript returns the full transcript for one session.
	GetTranscript(ctx context.Context, id string) (*Transcript, error)

	// ListSessions returns session summaries, most recent first.
	ListSessions(ctx context.Context, opts ListOptions) ([]*SessionSummary, error)

	Close() error
}
