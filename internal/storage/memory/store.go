// Package memory is an in-memory implementation of storage.TranscriptStore,
// used in tests and when no database path is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/torrance721/careerflow-practice/internal/domain"
	"github.com/torrance721/careerflow-practice/internal/storage"
)

// Store is an in-memory implementation of TranscriptStore.
type Store struct {
	mu          sync.RWMutex
	transcripts map[string]*storage.Transcript
}

var _ storage.TranscriptStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		transcripts: make(map[string]*storage.Transcript),
	}
}

func (s *Store) SaveSession(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transcripts[sess.ID]
	if !ok {
		copied := *sess
		copied.Messages = nil
		s.transcripts[sess.ID] = &storage.Transcript{Session: copied}
		return nil
	}

	messages := existing.Session.Messages
	copied := *sess
	copied.Messages = messages
	existing.Session = copied
	return nil
}

func (s *Store) AddMessage(ctx context.Context, sessionID string, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript, ok := s.transcripts[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	transcript.Session.Messages = append(transcript.Session.Messages, *msg)
	return nil
}

func (s *Store) SaveFeedback(ctx context.Context, sessionID string, fb *domain.SessionFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript, ok := s.transcripts[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	copied := *fb
	transcript.Feedback = &copied
	return nil
}

func (s *Store) GetTranscript(ctx context.Context, id string) (*storage.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript, ok := s.transcripts[id]
	if !ok {
		return nil, domain.ErrNotFound(fmt.Sprintf("session %s not found", id))
	}

	copied := *transcript
	copied.Session.Messages = append([]domain.Message(nil), transcript.Session.Messages...)
	return &copied, nil
}

func (s *Store) ListSessions(ctx context.Context, opts storage.ListOptions) ([]*storage.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.SessionSummary
	for _, transcript := range s.transcripts {
		sess := transcript.Session
		if opts.UserID != "" && sess.UserID != opts.UserID {
			continue
		}
		result = append(result, &storage.SessionSummary{
			ID:             sess.ID,
			UserID:         sess.UserID,
			TargetPosition: sess.TargetPosition,
			State:          sess.State,
			CurrentTopic:   sess.CurrentTopic,
			MessageCount:   len(sess.Messages),
			StartedAt:      sess.StartedAt,
			EndedAt:        sess.EndedAt,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	// Simple pagination
	start := opts.Offset
	if start >= len(result) {
		return []*storage.SessionSummary{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) Close() error {
	return nil
}
