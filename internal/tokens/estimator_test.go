package tokens

import (
	"fmt"
	"testing"

	"github.com/torrance721/careerflow-practice/internal/domain"
)

func TestEstimator_Count(t *testing.T) {
	e := NewEstimator()

	if got := e.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}

	short := e.Count("hello")
	long := e.Count("hello there, tell me about your last project in detail")
	if short <= 0 {
		t.Errorf("Count(short) = %d, want > 0", short)
	}
	if long <= short {
		t.Errorf("Count(long) = %d, want > %d", long, short)
	}
}

func TestEstimator_TrimToBudget(t *testing.T) {
	e := NewEstimator()

	var messages []domain.Message
	for i := 0; i < 50; i++ {
		messages = append(messages, domain.Message{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("message %d: I worked on a distributed system handling ten thousand requests per second", i),
		})
	}

	trimmed := e.TrimToBudget(messages, 100)

	if len(trimmed) == 0 {
		t.Fatal("TrimToBudget() returned empty history")
	}
	if len(trimmed) >= len(messages) {
		t.Errorf("TrimToBudget() kept %d of %d messages, expected trimming", len(trimmed), len(messages))
	}

	// Recency wins: the kept slice must be the suffix
	last := trimmed[len(trimmed)-1]
	if last.Content != messages[len(messages)-1].Content {
		t.Error("TrimToBudget() did not keep the most recent message")
	}
}

func TestEstimator_TrimToBudget_KeepsLatestEvenOverBudget(t *testing.T) {
	e := NewEstimator()

	messages := []domain.Message{
		{Role: domain.RoleUser, Content: "a very long answer that certainly costs more than one token of budget"},
	}

	trimmed := e.TrimToBudget(messages, 1)
	if len(trimmed) != 1 {
		t.Fatalf("TrimToBudget() kept %d messages, want 1", len(trimmed))
	}
}

func TestEstimator_TrimToBudget_FitsAll(t *testing.T) {
	e := NewEstimator()

	messages := []domain.Message{
		{Role: domain.RoleAssistant, Content: "Tell me about a project."},
		{Role: domain.RoleUser, Content: "I built a cache."},
	}

	trimmed := e.TrimToBudget(messages, DefaultContextBudget)
	if len(trimmed) != 2 {
		t.Errorf("TrimToBudget() kept %d messages, want 2", len(trimmed))
	}
}
