package domain

import (
	"testing"
	"time"
)

func TestSetStatusForwardTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"created to processing", StatusCreated, StatusProcessing, true},
		{"processing to applied_edit", StatusProcessing, StatusAppliedEdit, true},
		{"applied_edit back to processing", StatusAppliedEdit, StatusProcessing, true},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"created to error", StatusCreated, StatusError, true},
		{"processing to created", StatusProcessing, StatusCreated, false},
		{"completed to processing", StatusCompleted, StatusProcessing, false},
		{"error to completed", StatusError, StatusCompleted, false},
		{"completed to error", StatusCompleted, StatusError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ID: "s1", Status: tt.from}
			err := s.SetStatus(tt.to)
			if tt.ok && err != nil {
				t.Errorf("Expected transition %s -> %s to succeed, got %v", tt.from, tt.to, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("Expected transition %s -> %s to fail", tt.from, tt.to)
			}
		})
	}
}

func TestSetStatusStampsCompletion(t *testing.T) {
	s := &Session{ID: "s1", Status: StatusProcessing}

	if err := s.SetStatus(StatusCompleted); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.CompletedAt == nil {
		t.Fatal("Expected CompletedAt to be set on terminal transition")
	}
	if s.Version != 1 {
		t.Errorf("Expected version bump, got %d", s.Version)
	}
}

func TestAppendTurnStampsTimestamp(t *testing.T) {
	s := &Session{ID: "s1", Status: StatusProcessing}

	s.AppendTurn(Turn{Role: RoleUser, Content: "looks good"})
	if len(s.Turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(s.Turns))
	}
	if s.Turns[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be stamped")
	}

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.AppendTurn(Turn{Role: RoleAgent, Content: "done", Timestamp: fixed})
	if !s.Turns[1].Timestamp.Equal(fixed) {
		t.Error("Expected explicit timestamp to be preserved")
	}
}
