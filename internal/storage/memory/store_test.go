package memory

import (
	"context"
	"testing"
	"time"

	"github.com/torrance721/careerflow-practice/internal/domain"
	"github.com/torrance721/careerflow-practice/internal/storage"
)

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := New()

	sess := &domain.Session{
		ID:             "sess-1",
		TargetPosition: "Backend Engineer",
		State:          domain.StateChat,
		StartedAt:      time.Now(),
	}
	if err := store.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	msg := &domain.Message{ID: "m1", Role: domain.RoleAssistant, Content: "hello", Timestamp: time.Now()}
	if err := store.AddMessage(context.Background(), "sess-1", msg); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	transcript, err := store.GetTranscript(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetTranscript() error = %v", err)
	}
	if len(transcript.Session.Messages) != 1 {
		t.Fatalf("Messages count = %d, want 1", len(transcript.Session.Messages))
	}

	// Returned transcript is a copy; mutating it must not affect the store
	transcript.Session.Messages[0].Content = "mutated"
	again, err := store.GetTranscript(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetTranscript() error = %v", err)
	}
	if again.Session.Messages[0].Content != "hello" {
		t.Error("store content mutated through returned copy")
	}
}

func TestMemoryStore_AddMessage_UnknownSession(t *testing.T) {
	store := New()

	msg := &domain.Message{ID: "m1", Role: domain.RoleUser, Content: "hi"}
	if err := store.AddMessage(context.Background(), "missing", msg); err == nil {
		t.Fatal("AddMessage() expected error for unknown session")
	}
}

func TestMemoryStore_UpdatePreservesMessages(t *testing.T) {
	store := New()

	sess := &domain.Session{ID: "sess-2", TargetPosition: "SRE", State: domain.StateChat, StartedAt: time.Now()}
	if err := store.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := store.AddMessage(context.Background(), "sess-2", &domain.Message{ID: "m1", Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	sess.State = domain.StateFeedback
	if err := store.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("SaveSession() update error = %v", err)
	}

	transcript, err := store.GetTranscript(context.Background(), "sess-2")
	if err != nil {
		t.Fatalf("GetTranscript() error = %v", err)
	}
	if transcript.Session.State != domain.StateFeedback {
		t.Errorf("State = %v, want feedback", transcript.Session.State)
	}
	if len(transcript.Session.Messages) != 1 {
		t.Errorf("Messages count = %d, want 1 after update", len(transcript.Session.Messages))
	}
}

func TestMemoryStore_ListSessions(t *testing.T) {
	store := New()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		sess := &domain.Session{
			ID:             id,
			UserID:         "u1",
			TargetPosition: "Backend Engineer",
			State:          domain.StateChat,
			StartedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveSession(context.Background(), sess); err != nil {
			t.Fatalf("SaveSession(%s) error = %v", id, err)
		}
	}

	result, err := store.ListSessions(context.Background(), storage.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("count = %d, want 2", len(result))
	}
	if result[0].ID != "c" {
		t.Errorf("first ID = %v, want c (most recent first)", result[0].ID)
	}
}
