// Package frontdoor exposes the practice flow to the web client over HTTP
// and SSE. It owns one session controller per live session and relays the
// coach backend's streams outward.
package frontdoor

import (
	"context"
	"sync"

	"github.com/torrance721/careerflow-practice/internal/domain"
	"github.com/torrance721/careerflow-practice/internal/followup"
	"github.com/torrance721/careerflow-practice/internal/progress"
	"github.com/torrance721/careerflow-practice/internal/session"
	"github.com/torrance721/careerflow-practice/internal/storage"
	"github.com/torrance721/careerflow-practice/internal/thinking"
)

// CoachBackend is the full upstream surface the frontdoor drives.
// *coach.Client satisfies it.
type CoachBackend interface {
	session.Backend
	progress.Streamer
}

// TurnSink receives the live events of one turn while SendMessage is
// relaying it.
type TurnSink struct {
	// OnEvaluated fires once with the classified intent, before any reply
	// text streams.
	OnEvaluated func(intent domain.Intent)

	// OnContent fires with the accumulated streaming buffer after every
	// chunk.
	OnContent func(content string)
}

// turnRelay forwards streamer events to whichever request is currently
// relaying the turn. Bound for the duration of one SendMessage call.
type turnRelay struct {
	mu   sync.Mutex
	sink *TurnSink
}

func (r *turnRelay) emitContent(content string) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil && sink.OnContent != nil {
		sink.OnContent(content)
	}
}

func (r *turnRelay) emitEvaluated(intent domain.Intent) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil && sink.OnEvaluated != nil {
		sink.OnEvaluated(intent)
	}
}

func (r *turnRelay) bind(sink *TurnSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

func (r *turnRelay) unbind() {
	r.mu.Lock()
	r.sink = nil
	r.mu.Unlock()
}

type managedSession struct {
	ctrl  *session.Controller
	relay *turnRelay
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLanguage sets the fallback-message language for new controllers.
func WithLanguage(lang string) ManagerOption {
	return func(m *Manager) {
		m.language = lang
	}
}

// WithContextBudget sets the evaluate-phase token budget for new controllers.
func WithContextBudget(budget int) ManagerOption {
	return func(m *Manager) {
		m.contextBudget = budget
	}
}

// WithSimulatorFactory overrides simulator construction. Tests install
// zero-duration timing tables here.
func WithSimulatorFactory(fn func() *thinking.Simulator) ManagerOption {
	return func(m *Manager) {
		m.newSimulator = fn
	}
}

// Manager tracks one controller per live session.
type Manager struct {
	backend       CoachBackend
	store         storage.TranscriptStore
	language      string
	contextBudget int
	newSimulator  func() *thinking.Simulator

	mu       sync.RWMutex
	sessions map[string]*managedSession
}

// NewManager creates a session manager over the coach backend.
func NewManager(backend CoachBackend, store storage.TranscriptStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:      backend,
		store:        store,
		language:     "en",
		newSimulator: func() *thinking.Simulator { return thinking.New() },
		sessions:     make(map[string]*managedSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpdateSettings applies reloaded configuration. Settings take effect for
// sessions created after the call; live controllers keep the values they
// were built with.
func (m *Manager) UpdateSettings(language string, contextBudget int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if language != "" {
		m.language = language
	}
	m.contextBudget = contextBudget
}

// Create starts a new session for userID and registers its controller.
func (m *Manager) Create(ctx context.Context, userID, targetPosition, resumeText string) (*domain.Session, error) {
	relay := &turnRelay{}

	m.mu.RLock()
	language := m.language
	contextBudget := m.contextBudget
	m.mu.RUnlock()

	ctrlOpts := []session.Option{
		session.WithStore(m.store),
		session.WithLanguage(language),
		session.WithUserID(userID),
		session.WithSimulator(m.newSimulator()),
		session.WithStreamerOptions(
			followup.WithOnChunk(relay.emitContent),
			followup.WithOnEvaluated(relay.emitEvaluated),
		),
	}
	if contextBudget > 0 {
		ctrlOpts = append(ctrlOpts, session.WithStreamerOptions(followup.WithContextBudget(contextBudget)))
	}

	ctrl := session.NewController(m.backend, ctrlOpts...)

	sess, err := ctrl.StartSession(ctx, targetPosition, resumeText)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID] = &managedSession{ctrl: ctrl, relay: relay}
	m.mu.Unlock()

	return sess, nil
}

// SendMessage runs one turn on the identified session. sink, if not nil,
// receives the turn's live events for the duration of the call.
func (m *Manager) SendMessage(ctx context.Context, sessionID, content string, sink *TurnSink) (*session.TurnResult, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	if sink != nil {
		ms.relay.bind(sink)
		defer ms.relay.unbind()
	}

	return ms.ctrl.SendMessage(ctx, content)
}

// End ends the identified session and returns its feedback.
func (m *Manager) End(ctx context.Context, sessionID string) (*domain.SessionFeedback, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return ms.ctrl.EndSession(ctx)
}

// Session returns the live in-memory session state, if the session is still
// managed by this process.
func (m *Manager) Session(sessionID string) (*domain.Session, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return ms.ctrl.Session(), nil
}

func (m *Manager) lookup(sessionID string) (*managedSession, error) {
	m.mu.RLock()
	ms, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound("session " + sessionID + " not found")
	}
	return ms, nil
}
