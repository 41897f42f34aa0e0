package frontdoor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/torrance721/careerflow-practice/internal/domain"
	"github.com/torrance721/careerflow-practice/internal/indicator"
	"github.com/torrance721/careerflow-practice/internal/progress"
	"github.com/torrance721/careerflow-practice/internal/server"
	"github.com/torrance721/careerflow-practice/internal/storage"
)

// Handler serves the practice HTTP/SSE API.
type Handler struct {
	manager *Manager
	store   storage.TranscriptStore
	prep    progress.Streamer
	logger  *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(manager *Manager, store storage.TranscriptStore, prep progress.Streamer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager: manager,
		store:   store,
		prep:    prep,
		logger:  logger,
	}
}

// Routes mounts all endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", h.handleCreateSession)
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{sessionID}", h.handleGetTranscript)
		r.Post("/sessions/{sessionID}/messages", h.handleSendMessage)
		r.Post("/sessions/{sessionID}/end", h.handleEndSession)
		r.Get("/preparation", h.handlePreparation)
	})
}

type createSessionRequest struct {
	TargetPosition string `json:"target_position"`
	ResumeText     string `json:"resume_text,omitempty"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidRequest("invalid JSON body"))
		return
	}

	userID := server.GetUserID(r.Context())
	sess, err := h.manager.Create(r.Context(), userID, req.TargetPosition, req.ResumeText)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	server.AddLogField(r.Context(), "session_id", sess.ID)
	h.writeJSON(w, http.StatusCreated, sess)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// messageEvent is the terminal SSE payload of one committed turn.
type messageEvent struct {
	Message      domain.Message `json:"message"`
	Intent       domain.Intent  `json:"intent"`
	Topic        string         `json:"topic"`
	Difficulty   string         `json:"difficulty"`
	DepthLevel   int            `json:"depth_level"`
	TopicChanged bool           `json:"topic_changed,omitempty"`
	EndRequested bool           `json:"end_requested,omitempty"`
	HintGranted  bool           `json:"hint_granted,omitempty"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidRequest("invalid JSON body"))
		return
	}

	// Validate before committing to an SSE response: these failures must
	// surface as plain HTTP statuses.
	if strings.TrimSpace(req.Content) == "" {
		h.writeError(w, r, domain.ErrInvalidRequest("message is empty").
			WithCode(domain.ErrorCodeEmptyMessage))
		return
	}
	if _, err := h.manager.Session(sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, domain.ErrServer("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var sent string
	sink := &TurnSink{
		OnEvaluated: func(intent domain.Intent) {
			writeSSE(w, flusher, "evaluation", map[string]any{"intent": intent})
		},
		OnContent: func(content string) {
			// The relay hands us the accumulated buffer; emit only the new
			// suffix as a delta.
			if len(content) <= len(sent) {
				return
			}
			delta := content[len(sent):]
			sent = content
			writeSSE(w, flusher, "delta", map[string]any{"text": delta})
		},
	}

	turn, err := h.manager.SendMessage(r.Context(), sessionID, req.Content, sink)
	if err != nil {
		server.AddError(r.Context(), err)
		writeSSE(w, flusher, "error", errorPayload(err))
		return
	}

	sess, err := h.manager.Session(sessionID)
	if err != nil {
		server.AddError(r.Context(), err)
		writeSSE(w, flusher, "error", errorPayload(err))
		return
	}

	writeSSE(w, flusher, "message", messageEvent{
		Message:      turn.AssistantMessage,
		Intent:       turn.Intent,
		Topic:        sess.CurrentTopic,
		Difficulty:   indicator.LabelFor(string(sess.CurrentDifficulty)).Label,
		DepthLevel:   turn.DepthLevel,
		TopicChanged: turn.TopicChanged,
		EndRequested: turn.EndRequested,
		HintGranted:  turn.HintGranted,
	})
}

// endSessionResponse wraps the terminal feedback with a display-ready
// duration string.
type endSessionResponse struct {
	*domain.SessionFeedback
	Duration string `json:"duration"`
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	fb, err := h.manager.End(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	server.AddLogField(r.Context(), "session_id", sessionID)
	h.writeJSON(w, http.StatusOK, endSessionResponse{
		SessionFeedback: fb,
		Duration:        indicator.FormatDuration(fb.DurationSeconds),
	})
}

func (h *Handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	transcript, err := h.store.GetTranscript(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transcript)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		UserID: server.GetUserID(r.Context()),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Offset = n
		}
	}

	summaries, err := h.store.ListSessions(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []*storage.SessionSummary{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (h *Handler) handlePreparation(w http.ResponseWriter, r *http.Request) {
	dreamJob := r.URL.Query().Get("dream_job")
	if strings.TrimSpace(dreamJob) == "" {
		h.writeError(w, r, domain.ErrInvalidRequest("dream_job is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, domain.ErrServer("streaming not supported"))
		return
	}

	type terminal struct {
		data      map[string]any
		errDetail string
		failed    bool
	}

	// Buffered so a slow client can't block the reader's pump; the display
	// history in the reader stays authoritative.
	events := make(chan domain.ProgressEvent, 64)
	done := make(chan terminal, 1)

	reader := progress.NewReader(h.prep,
		progress.WithOnEvent(func(ev domain.ProgressEvent) {
			select {
			case events <- ev:
			default:
			}
		}),
		progress.WithOnComplete(func(data map[string]any) {
			done <- terminal{data: data}
		}),
		progress.WithOnError(func(detail string) {
			done <- terminal{errDetail: detail, failed: true}
		}),
	)

	if err := reader.Start(r.Context(), dreamJob); err != nil {
		h.writeError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev := <-events:
			writeSSE(w, flusher, "progress", ev)

		case t := <-done:
			// Drain anything buffered ahead of the terminal event.
			for {
				select {
				case ev := <-events:
					writeSSE(w, flusher, "progress", ev)
					continue
				default:
				}
				break
			}
			if t.failed {
				writeSSE(w, flusher, "error", map[string]any{"detail": t.errDetail})
			} else {
				writeSSE(w, flusher, "complete", map[string]any{"data": t.data})
			}
			return
		}
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	var perr *domain.ProtocolError
	if !errors.As(err, &perr) {
		perr = domain.ErrServer(err.Error())
	}

	h.writeJSON(w, perr.HTTPStatusCode(), map[string]any{"error": perr})
}

func errorPayload(err error) map[string]any {
	var perr *domain.ProtocolError
	if !errors.As(err, &perr) {
		perr = domain.ErrServer(err.Error())
	}
	return map[string]any{"error": perr}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
