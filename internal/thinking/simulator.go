// Package thinking runs the cosmetic "thinking step" sequence shown while a
// real backend call is pending. It is presentation only: steps are invented
// client-side, never persisted, and never fed back into session state.
package thinking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Phase selects which timing table to run.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseMessage Phase = "message"
	PhaseEnd     Phase = "end"
)

// Status is the display status of one simulated step.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// StepTiming is one (label, duration) entry of a timing table.
type StepTiming struct {
	Thought         string
	Tool            string
	ToolDisplayName string
	Duration        time.Duration
}

// Step is one simulated step as surfaced to the display layer.
type Step struct {
	ID              string        `json:"id"`
	Ordinal         int           `json:"step"`
	Status          Status        `json:"status"`
	Thought         string        `json:"thought"`
	Tool            string        `json:"tool"`
	ToolDisplayName string        `json:"tool_display_name"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time,omitzero"`
	Duration        time.Duration `json:"duration_ms"`
}

// defaultTables holds the hard-coded timing tables. The end phase is
// deliberately much longer than start/message: it bridges the backend's
// feedback computation, which takes materially longer than a chat turn.
var defaultTables = map[Phase][]StepTiming{
	PhaseStart: {
		{Thought: "Reading your target position", Tool: "profile_reader", ToolDisplayName: "Profile Reader", Duration: 900 * time.Millisecond},
		{Thought: "Scanning your resume highlights", Tool: "resume_scanner", ToolDisplayName: "Resume Scanner", Duration: 1200 * time.Millisecond},
		{Thought: "Picking an opening question", Tool: "question_planner", ToolDisplayName: "Question Planner", Duration: 900 * time.Millisecond},
	},
	PhaseMessage: {
		{Thought: "Weighing your answer", Tool: "answer_review", ToolDisplayName: "Answer Review", Duration: 800 * time.Millisecond},
		{Thought: "Checking topic coverage", Tool: "coverage_check", ToolDisplayName: "Coverage Check", Duration: 700 * time.Millisecond},
		{Thought: "Drafting a follow-up", Tool: "question_planner", ToolDisplayName: "Question Planner", Duration: 900 * time.Millisecond},
	},
	PhaseEnd: {
		{Thought: "Reviewing the full conversation", Tool: "transcript_review", ToolDisplayName: "Transcript Review", Duration: 2500 * time.Millisecond},
		{Thought: "Scoring each topic", Tool: "topic_scoring", ToolDisplayName: "Topic Scoring", Duration: 3 * time.Second},
		{Thought: "Matching you against companies", Tool: "company_match", ToolDisplayName: "Company Match", Duration: 3 * time.Second},
		{Thought: "Writing your summary", Tool: "summary_writer", ToolDisplayName: "Summary Writer", Duration: 2500 * time.Millisecond},
	},
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithTimingTable replaces the table for one phase. Tests use this to run the
// sequence at zero duration.
func WithTimingTable(phase Phase, table []StepTiming) Option {
	return func(s *Simulator) {
		s.tables[phase] = table
	}
}

// WithOnUpdate registers a callback invoked on every step status change.
func WithOnUpdate(fn func(Step)) Option {
	return func(s *Simulator) {
		s.onUpdate = fn
	}
}

// Simulator iterates a phase's timing table sequentially on one logical
// timeline. No two steps are ever running at once.
type Simulator struct {
	tables   map[Phase][]StepTiming
	onUpdate func(Step)
}

// New creates a simulator with the default timing tables.
func New(opts ...Option) *Simulator {
	s := &Simulator{tables: make(map[Phase][]StepTiming, len(defaultTables))}
	for phase, table := range defaultTables {
		s.tables[phase] = table
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Total returns the wall-clock duration of a phase's full sequence.
func (s *Simulator) Total(phase Phase) time.Duration {
	var total time.Duration
	for _, entry := range s.tables[phase] {
		total += entry.Duration
	}
	return total
}

// Run executes the phase's sequence: each step is reported as running, held
// for its duration, then reported completed. Run blocks until the sequence
// finishes or ctx is cancelled; on cancellation all pending timers are
// released and ctx.Err() is returned.
func (s *Simulator) Run(ctx context.Context, phase Phase) ([]Step, error) {
	table := s.tables[phase]
	steps := make([]Step, 0, len(table))

	for i, entry := range table {
		step := Step{
			ID:              uuid.New().String(),
			Ordinal:         i + 1,
			Status:          StatusRunning,
			Thought:         entry.Thought,
			Tool:            entry.Tool,
			ToolDisplayName: entry.ToolDisplayName,
			StartTime:       time.Now(),
		}
		s.notify(step)

		if err := sleep(ctx, entry.Duration); err != nil {
			return steps, err
		}

		step.Status = StatusCompleted
		step.EndTime = time.Now()
		step.Duration = step.EndTime.Sub(step.StartTime)
		s.notify(step)
		steps = append(steps, step)
	}

	return steps, nil
}

func (s *Simulator) notify(step Step) {
	if s.onUpdate != nil {
		s.onUpdate(step)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
