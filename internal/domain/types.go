// Package domain provides the canonical types shared across the practice service.
package domain

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Difficulty is the normalized difficulty of an interview topic.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// NormalizeDifficulty maps a backend-supplied difficulty string to a canonical
// Difficulty. The coach backend is inconsistent about casing, so the lookup is
// case-insensitive. Unrecognized values default to Medium.
func NormalizeDifficulty(s string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy
	case "medium":
		return DifficultyMedium
	case "hard":
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// Intent classifies the user's last message as a control action distinct from
// its content.
type Intent string

const (
	IntentNone         Intent = "none"
	IntentSwitchTopic  Intent = "switch_topic"
	IntentEndInterview Intent = "end_interview"
	IntentNeedHint     Intent = "need_hint"
	IntentWantEasier   Intent = "want_easier"
	IntentWantHarder   Intent = "want_harder"
	IntentWantSpecific Intent = "want_specific"
)

// ParseIntent maps a backend-supplied intent string to a canonical Intent.
// Unclassified values are treated as IntentNone.
func ParseIntent(s string) Intent {
	in := Intent(strings.ToLower(strings.TrimSpace(s)))
	switch in {
	case IntentSwitchTopic, IntentEndInterview, IntentNeedHint,
		IntentWantEasier, IntentWantHarder, IntentWantSpecific:
		return in
	default:
		return IntentNone
	}
}

// SideEffecting reports whether the intent requires a caller-driven action
// beyond displaying the streamed reply. Difficulty adjustments are fully
// handled by the re-pitched reply text itself.
func (i Intent) SideEffecting() bool {
	switch i {
	case IntentSwitchTopic, IntentEndInterview, IntentNeedHint:
		return true
	default:
		return false
	}
}

// ViewState is the visible state of one practice session.
type ViewState string

const (
	StateStart    ViewState = "start"
	StateChat     ViewState = "chat"
	StateFeedback ViewState = "feedback"
)

// Message is one turn of the conversation. Messages are owned exclusively by
// the session controller's ordered history; insertion order is conversation
// order and entries are never mutated after commit.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Topic is the active discussion subject within a session.
type Topic struct {
	Name       string     `json:"name"`
	Difficulty Difficulty `json:"difficulty"`
}

// CollectedInfoPoint is a unit of information the user is judged to have
// revealed during the interview. The count of points (not their depth) drives
// the depth indicator.
type CollectedInfoPoint struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
	Depth   int    `json:"depth"`
}

// ProgressStep is a coarse preparation phase reported by the progress stream.
type ProgressStep string

const (
	StepParsing             ProgressStep = "parsing"
	StepSearchingSources    ProgressStep = "searching_sources"
	StepExtractingKnowledge ProgressStep = "extracting_knowledge"
	StepGeneratingPlan      ProgressStep = "generating_plan"
	StepComplete            ProgressStep = "complete"
	StepError               ProgressStep = "error"
)

// Terminal reports whether the step ends the progress stream.
func (s ProgressStep) Terminal() bool {
	return s == StepComplete || s == StepError
}

// ProgressEvent is one update from the preparation progress stream.
// Progress is 0-100 and nominally monotonic, but the protocol does not
// enforce that; consumers clamp defensively.
type ProgressEvent struct {
	Step     ProgressStep   `json:"step"`
	Message  string         `json:"message"`
	Detail   string         `json:"detail,omitempty"`
	Progress int            `json:"progress"`
	Data     map[string]any `json:"data,omitempty"`
}

// TopicFeedback is the end-of-session assessment for one topic.
type TopicFeedback struct {
	Topic        string   `json:"topic"`
	Score        int      `json:"score"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
}

// CompanyMatch is a suggested company fit derived from the session.
type CompanyMatch struct {
	Company    string `json:"company"`
	Role       string `json:"role"`
	MatchScore int    `json:"match_score"`
	Reason     string `json:"reason,omitempty"`
}

// SessionFeedback is the terminal result of an ended session.
type SessionFeedback struct {
	Feedbacks       []TopicFeedback `json:"feedbacks"`
	CompanyMatches  []CompanyMatch  `json:"company_matches"`
	OverallSummary  string          `json:"overall_summary"`
	DurationSeconds int             `json:"duration_seconds"`
	HintsUsed       int             `json:"hints_used"`
}

// Session identifies one practice conversation and its controller-owned state.
type Session struct {
	ID                string               `json:"id"`
	UserID            string               `json:"user_id,omitempty"`
	TargetPosition    string               `json:"target_position"`
	ResumeText        string               `json:"resume_text,omitempty"`
	State             ViewState            `json:"state"`
	CurrentTopic      string               `json:"current_topic"`
	CurrentDifficulty Difficulty           `json:"current_difficulty"`
	Messages          []Message            `json:"messages"`
	CollectedInfo     []CollectedInfoPoint `json:"collected_info,omitempty"`
	HintCount         int                  `json:"hint_count"`
	StartedAt         time.Time            `json:"started_at"`
	EndedAt           time.Time            `json:"ended_at,omitempty"`
}
