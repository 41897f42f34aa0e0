// Package sqlite is a SQLite implementation of storage.TranscriptStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/torrance721/careerflow-practice/internal/domain"
	"github.com/torrance721/careerflow-practice/internal/storage"
)

// Store is a SQLite implementation of TranscriptStore.
type Store struct {
	db *sql.DB
}

var _ storage.TranscriptStore = (*Store)(nil)

// New creates a new SQLite store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			target_position TEXT NOT NULL,
			state TEXT NOT NULL,
			current_topic TEXT,
			current_difficulty TEXT,
			collected_info TEXT,
			hint_count INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			session_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveSession(ctx context.Context, sess *domain.Session) error {
	collectedInfo, err := json.Marshal(sess.CollectedInfo)
	if err != nil {
		return fmt.Errorf("marshal collected info: %w", err)
	}

	var endedAt any
	if !sess.EndedAt.IsZero() {
		endedAt = sess.EndedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, target_position, state, current_topic, current_difficulty, collected_info, hint_count, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			current_topic = excluded.current_topic,
			current_difficulty = excluded.current_difficulty,
			collected_info = excluded.collected_info,
			hint_count = excluded.hint_count,
			ended_at = excluded.ended_at`,
		sess.ID, sess.UserID, sess.TargetPosition, string(sess.State), sess.CurrentTopic,
		string(sess.CurrentDifficulty), string(collectedInfo), sess.HintCount, sess.StartedAt, endedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) AddMessage(ctx context.Context, sessionID string, msg *domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, sessionID, string(msg.Role), msg.Content, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

func (s *Store) SaveFeedback(ctx context.Context, sessionID string, fb *domain.SessionFeedback) error {
	payload, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback (session_id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload`,
		sessionID, string(payload), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

func (s *Store) GetTranscript(ctx context.Context, id string) (*storage.Transcript, error) {
	var (
		sess          domain.Session
		state         string
		difficulty    string
		collectedInfo string
		endedAt       sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, target_position, state, current_topic, current_difficulty, collected_info, hint_count, started_at, ended_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.TargetPosition, &state, &sess.CurrentTopic,
		&difficulty, &collectedInfo, &sess.HintCount, &sess.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound(fmt.Sprintf("session %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.State = domain.ViewState(state)
	sess.CurrentDifficulty = domain.Difficulty(difficulty)
	if endedAt.Valid {
		sess.EndedAt = endedAt.Time
	}
	if collectedInfo != "" {
		if err := json.Unmarshal([]byte(collectedInfo), &sess.CollectedInfo); err != nil {
			return nil, fmt.Errorf("unmarshal collected info: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg  domain.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = domain.Role(role)
		sess.Messages = append(sess.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	transcript := &storage.Transcript{Session: sess}

	var payload string
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM feedback WHERE session_id = ?`, id).Scan(&payload)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get feedback: %w", err)
	}
	if payload != "" {
		var fb domain.SessionFeedback
		if err := json.Unmarshal([]byte(payload), &fb); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
		transcript.Feedback = &fb
	}

	return transcript, nil
}

func (s *Store) ListSessions(ctx context.Context, opts storage.ListOptions) ([]*storage.SessionSummary, error) {
	query := `
		SELECT s.id, s.user_id, s.target_position, s.state, s.current_topic, s.started_at, s.ended_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id) AS message_count
		FROM sessions s`
	args := []any{}

	if opts.UserID != "" {
		query += ` WHERE s.user_id = ?`
		args = append(args, opts.UserID)
	}

	query += ` ORDER BY s.started_at DESC`

	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var result []*storage.SessionSummary
	for rows.Next() {
		var (
			summary storage.SessionSummary
			state   string
			endedAt sql.NullTime
		)
		if err := rows.Scan(&summary.ID, &summary.UserID, &summary.TargetPosition, &state,
			&summary.CurrentTopic, &summary.StartedAt, &endedAt, &summary.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		summary.State = domain.ViewState(state)
		if endedAt.Valid {
			summary.EndedAt = endedAt.Time
		}
		result = append(result, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return result, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
