// Package session implements the practice session controller: the view-state
// machine that owns the canonical message history and coordinates the
// thinking simulator, the optimized follow-up streamer, and the coach RPCs
// for one session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/torrance721/careerflow-practice/internal/api/coach"
	"github.com/torrance721/careerflow-practice/internal/domain"
	"github.com/torrance721/careerflow-practice/internal/followup"
	"github.com/torrance721/careerflow-practice/internal/indicator"
	"github.com/torrance721/careerflow-practice/internal/storage"
	"github.com/torrance721/careerflow-practice/internal/thinking"
)

// Backend is the full coach client surface the controller drives.
type Backend interface {
	StartSession(ctx context.Context, req *coach.StartSessionRequest) (*coach.StartSessionResponse, error)
	SendMessage(ctx context.Context, req *coach.SendMessageRequest) (*coach.SendMessageResponse, error)
	EndSession(ctx context.Context, req *coach.EndSessionRequest) (*coach.EndSessionResponse, error)
	followup.Backend
}

// fallbackMessages are the default-language error texts appended as assistant
// messages when a turn fails.
var fallbackMessages = map[string]string{
	"en": "Sorry, something went wrong on my end. Please send that again.",
	"zh": "抱歉，我这边出了点问题，请再发送一次。",
}

// TurnResult is the outcome of one committed user turn.
type TurnResult struct {
	UserMessage      domain.Message `json:"user_message"`
	AssistantMessage domain.Message `json:"assistant_message"`
	Intent           domain.Intent  `json:"intent"`

	// DepthLevel is the bounded indicator level after merging collected info.
	DepthLevel int `json:"depth_level"`

	// TopicChanged reports that the persistence RPC moved the session to a
	// new topic (collected info resets with it).
	TopicChanged bool `json:"topic_changed"`

	// EndRequested reports an end_interview intent. Ending the session is a
	// separate, caller-triggered transition, not fused into the turn.
	EndRequested bool `json:"end_requested"`

	// HintGranted reports a need_hint intent that incremented the hint count.
	HintGranted bool `json:"hint_granted"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithSimulator overrides the thinking-step simulator.
func WithSimulator(sim *thinking.Simulator) Option {
	return func(c *Controller) {
		c.sim = sim
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithStore enables local transcript persistence.
func WithStore(store storage.TranscriptStore) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithLanguage selects the language for fallback error messages. Unknown
// languages fall back to English.
func WithLanguage(lang string) Option {
	return func(c *Controller) {
		if _, ok := fallbackMessages[lang]; ok {
			c.language = lang
		}
	}
}

// WithUserID attaches the authenticated user to sessions created by this
// controller. Passed explicitly rather than read from ambient context so the
// controller is testable without a request stack.
func WithUserID(userID string) Option {
	return func(c *Controller) {
		c.userID = userID
	}
}

// WithStreamerOptions forwards options to the follow-up streamer, e.g. an
// OnChunk render callback.
func WithStreamerOptions(opts ...followup.Option) Option {
	return func(c *Controller) {
		c.streamerOpts = append(c.streamerOpts, opts...)
	}
}

// Controller owns all state for one practice session. All session state is
// mutated only by this controller; collaborators communicate via return
// values and callbacks.
type Controller struct {
	backend      Backend
	streamer     *followup.Streamer
	streamerOpts []followup.Option
	sim          *thinking.Simulator
	store        storage.TranscriptStore
	logger       *slog.Logger
	clock        func() time.Time
	language     string
	userID       string

	mu         sync.Mutex
	state      domain.ViewState
	session    *domain.Session
	feedback   *domain.SessionFeedback
	isLoading  bool
	ended      bool
	generation uint64
}

// NewController creates a controller in the start state.
func NewController(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		sim:      thinking.New(),
		logger:   slog.Default(),
		clock:    time.Now,
		language: "en",
		state:    domain.StateStart,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.streamer = followup.New(backend, c.streamerOpts...)
	return c
}

// State returns the current view state.
func (c *Controller) State() domain.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsLoading reports whether a turn is in flight.
func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isLoading
}

// Ended reports whether the session reached its terminal state.
func (c *Controller) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// Session returns a copy of the current session, or nil before start.
func (c *Controller) Session() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionCopyLocked()
}

// Messages returns a copy of the committed message history.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	out := make([]domain.Message, len(c.session.Messages))
	copy(out, c.session.Messages)
	return out
}

// Feedback returns the terminal feedback, or nil before the session ends.
func (c *Controller) Feedback() *domain.SessionFeedback {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedback == nil {
		return nil
	}
	copied := *c.feedback
	return &copied
}

// StreamingContent returns the transient streaming buffer for the in-flight
// turn, if any.
func (c *Controller) StreamingContent() string {
	return c.streamer.StreamingContent()
}

func (c *Controller) sessionCopyLocked() *domain.Session {
	if c.session == nil {
		return nil
	}
	copied := *c.session
	copied.Messages = append([]domain.Message(nil), c.session.Messages...)
	copied.CollectedInfo = append([]domain.CollectedInfoPoint(nil), c.session.CollectedInfo...)
	return &copied
}

// StartSession starts a new practice session. On success the controller
// transitions to chat with the assistant's opening message seeded as the
// only history entry. On failure no partial state is committed.
func (c *Controller) StartSession(ctx context.Context, targetPosition, resumeText string) (*domain.Session, error) {
	if strings.TrimSpace(targetPosition) == "" {
		return nil, domain.ErrInvalidRequest("target position is required").
			WithCode(domain.ErrorCodeEmptyPosition)
	}

	c.mu.Lock()
	if c.state != domain.StateStart {
		c.mu.Unlock()
		return nil, domain.ErrInvalidRequest("session already started")
	}
	if c.isLoading {
		c.mu.Unlock()
		return nil, domain.ErrBusy("a start is already in flight")
	}
	c.isLoading = true
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	resp, err := withSimulator(ctx, c, thinking.PhaseStart, func(ctx context.Context) (*coach.StartSessionResponse, error) {
		return c.backend.StartSession(ctx, &coach.StartSessionRequest{
			TargetPosition: targetPosition,
			ResumeText:     resumeText,
		})
	})
	if err != nil {
		c.clearLoading(gen)
		return nil, fmt.Errorf("start session: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, staleErr()
	}
	now := c.clock()
	opening := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleAssistant,
		Content:   resp.OpeningMessage,
		Timestamp: now,
	}
	c.session = &domain.Session{
		ID:                resp.SessionID,
		UserID:            c.userID,
		TargetPosition:    targetPosition,
		ResumeText:        resumeText,
		State:             domain.StateChat,
		CurrentTopic:      resp.Topic.Name,
		CurrentDifficulty: domain.NormalizeDifficulty(resp.Topic.Difficulty),
		Messages:          []domain.Message{opening},
		StartedAt:         now,
	}
	c.state = domain.StateChat
	c.isLoading = false
	snapshot := c.sessionCopyLocked()
	c.mu.Unlock()

	c.persistSession(ctx, snapshot)
	c.persistMessage(ctx, snapshot.ID, &opening)

	c.logger.Info("session started",
		slog.String("session_id", snapshot.ID),
		slog.String("topic", snapshot.CurrentTopic),
		slog.String("difficulty", string(snapshot.CurrentDifficulty)),
	)

	return snapshot, nil
}

// SendMessage runs one user turn. The user message is appended optimistically
// and survives even if the turn fails. Exactly one assistant message is
// committed per turn: the streamed reply on success, a fallback text on
// failure. The persistence RPC runs concurrently with the optimized stream;
// its response is authoritative for topic and collected-info side effects
// while the streamed text is authoritative for display.
func (c *Controller) SendMessage(ctx context.Context, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrInvalidRequest("message is empty").
			WithCode(domain.ErrorCodeEmptyMessage)
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, domain.ErrNotFound("no active session")
	}
	if c.ended || c.state != domain.StateChat {
		c.mu.Unlock()
		return nil, domain.ErrSessionEnded("session is not accepting messages")
	}
	if c.isLoading {
		c.mu.Unlock()
		return nil, domain.ErrBusy("a turn is already in flight")
	}
	c.isLoading = true
	c.generation++
	gen := c.generation

	userMsg := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: c.clock(),
	}
	c.session.Messages = append(c.session.Messages, userMsg)

	req := &followup.Request{
		SessionID:      c.session.ID,
		Topic:          c.session.CurrentTopic,
		TargetPosition: c.session.TargetPosition,
		ResumeText:     c.session.ResumeText,
		Messages:       append([]domain.Message(nil), c.session.Messages...),
		CollectedInfo:  append([]domain.CollectedInfoPoint(nil), c.session.CollectedInfo...),
		UserMessage:    text,
	}
	sessionID := c.session.ID
	c.mu.Unlock()

	c.persistMessage(ctx, sessionID, &userMsg)

	// Persistence RPC, fired concurrently with the optimized stream.
	persistCh := make(chan *coach.SendMessageResponse, 1)
	go func() {
		resp, err := c.backend.SendMessage(ctx, &coach.SendMessageRequest{
			SessionID: sessionID,
			Message:   text,
		})
		if err != nil {
			c.logger.Warn("persistence RPC failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
			persistCh <- nil
			return
		}
		persistCh <- resp
	}()

	result, err := withSimulator(ctx, c, thinking.PhaseMessage, func(ctx context.Context) (*followup.Result, error) {
		return c.streamer.Send(ctx, req)
	})
	if err != nil {
		c.commitFallback(ctx, gen, sessionID, userMsg)
		return nil, fmt.Errorf("send message: %w", err)
	}

	persisted := <-persistCh

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, staleErr()
	}

	assistantMsg := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleAssistant,
		Content:   result.Content,
		Timestamp: c.clock(),
	}
	c.session.Messages = append(c.session.Messages, assistantMsg)

	c.session.CollectedInfo = append(c.session.CollectedInfo, result.NewInfoPoints...)

	turn := &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Intent:           result.Intent,
	}

	if persisted != nil {
		if persisted.CollectedInfo != nil {
			c.session.CollectedInfo = persisted.CollectedInfo
		}
		if persisted.Topic != nil && persisted.Topic.Name != c.session.CurrentTopic {
			c.session.CurrentTopic = persisted.Topic.Name
			c.session.CurrentDifficulty = domain.NormalizeDifficulty(persisted.Topic.Difficulty)
			// Collected info only grows within one topic
			c.session.CollectedInfo = nil
			turn.TopicChanged = true
		}
	}

	switch result.Intent {
	case domain.IntentEndInterview:
		turn.EndRequested = true
	case domain.IntentNeedHint:
		c.session.HintCount++
		turn.HintGranted = true
	}

	turn.DepthLevel = indicator.DepthLevel(len(c.session.CollectedInfo), indicator.MaxInfoPoints)
	c.isLoading = false
	snapshot := c.sessionCopyLocked()
	c.mu.Unlock()

	c.persistMessage(ctx, sessionID, &assistantMsg)
	c.persistSession(ctx, snapshot)

	return turn, nil
}

// EndSession ends the session and transitions to feedback. The transition is
// irreversible: a new practice run requires a brand-new session. EndSession
// may be called while a send is in flight; the generation counter discards
// the stale turn's commit when it arrives.
func (c *Controller) EndSession(ctx context.Context) (*domain.SessionFeedback, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, domain.ErrNotFound("no active session")
	}
	if c.ended {
		c.mu.Unlock()
		return nil, domain.ErrSessionEnded("session already ended")
	}
	c.isLoading = true
	c.generation++
	gen := c.generation
	sessionID := c.session.ID
	startedAt := c.session.StartedAt
	hintCount := c.session.HintCount
	c.mu.Unlock()

	resp, err := withSimulator(ctx, c, thinking.PhaseEnd, func(ctx context.Context) (*coach.EndSessionResponse, error) {
		return c.backend.EndSession(ctx, &coach.EndSessionRequest{SessionID: sessionID})
	})
	if err != nil {
		c.clearLoading(gen)
		return nil, fmt.Errorf("end session: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, staleErr()
	}
	now := c.clock()
	fb := &domain.SessionFeedback{
		Feedbacks:       resp.Feedbacks,
		CompanyMatches:  resp.CompanyMatches,
		OverallSummary:  resp.OverallSummary,
		DurationSeconds: int(now.Sub(startedAt) / time.Second),
		HintsUsed:       hintCount,
	}
	c.feedback = fb
	c.state = domain.StateFeedback
	c.ended = true
	c.isLoading = false
	c.session.State = domain.StateFeedback
	c.session.EndedAt = now
	snapshot := c.sessionCopyLocked()
	fbCopy := *fb
	c.mu.Unlock()

	c.persistSession(ctx, snapshot)
	if c.store != nil {
		if err := c.store.SaveFeedback(ctx, sessionID, fb); err != nil {
			c.logger.Warn("failed to persist feedback",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Info("session ended",
		slog.String("session_id", sessionID),
		slog.Int("duration_seconds", fb.DurationSeconds),
		slog.String("duration", indicator.FormatDuration(fb.DurationSeconds)),
	)

	return &fbCopy, nil
}

// Reset discards all session state and returns to start. No backend call is
// made; the in-memory history is dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.feedback = nil
	c.state = domain.StateStart
	c.isLoading = false
	c.ended = false
	c.generation++
}

// withSimulator runs op concurrently with the thinking simulation for phase
// and waits for both, so the apparent latency is max(simulated, real). On op
// failure the simulation is cancelled immediately and its pending timers are
// released.
func withSimulator[T any](ctx context.Context, c *Controller, phase thinking.Phase, op func(context.Context) (T, error)) (T, error) {
	simCtx, cancelSim := context.WithCancel(ctx)
	defer cancelSim()

	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		if _, err := c.sim.Run(simCtx, phase); err != nil && ctx.Err() == nil {
			c.logger.Debug("thinking simulation cancelled", slog.String("phase", string(phase)))
		}
	}()

	result, err := op(ctx)
	if err != nil {
		cancelSim()
		<-simDone
		return result, err
	}

	<-simDone
	return result, nil
}

// commitFallback appends the default-language failure text as the turn's one
// assistant message and clears the loading flag, leaving the UI interactive
// for a retry.
func (c *Controller) commitFallback(ctx context.Context, gen uint64, sessionID string, userMsg domain.Message) {
	c.mu.Lock()
	if c.generation != gen || c.session == nil {
		// Superseded by a newer action, which owns the loading flag now.
		c.mu.Unlock()
		return
	}
	fallback := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleAssistant,
		Content:   fallbackMessages[c.language],
		Timestamp: c.clock(),
	}
	c.session.Messages = append(c.session.Messages, fallback)
	c.isLoading = false
	c.mu.Unlock()

	c.persistMessage(ctx, sessionID, &fallback)
}

func (c *Controller) clearLoading(gen uint64) {
	c.mu.Lock()
	if c.generation == gen {
		c.isLoading = false
	}
	c.mu.Unlock()
}

func (c *Controller) persistSession(ctx context.Context, sess *domain.Session) {
	if c.store == nil || sess == nil {
		return
	}
	if err := c.store.SaveSession(ctx, sess); err != nil {
		c.logger.Warn("failed to persist session",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) persistMessage(ctx context.Context, sessionID string, msg *domain.Message) {
	if c.store == nil {
		return
	}
	if err := c.store.AddMessage(ctx, sessionID, msg); err != nil {
		c.logger.Warn("failed to persist message",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

func staleErr() *domain.ProtocolError {
	return domain.NewProtocolError(domain.ErrorTypeInvalidRequest, "operation superseded by a newer action").
		WithCode(domain.ErrorCodeStaleGeneration)
}
