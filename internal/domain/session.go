// Package domain defines the core types shared across the service.
package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an editing session.
type Status string

const (
	StatusCreated     Status = "created"
	StatusProcessing  Status = "processing"
	StatusAppliedEdit Status = "applied_edit"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// statusRank orders states so transitions can only move forward.
// processing and applied_edit share a rank: the loop alternates between
// them while the session is live.
var statusRank = map[Status]int{
	StatusCreated:     0,
	StatusProcessing:  1,
	StatusAppliedEdit: 1,
	StatusCompleted:   2,
	StatusError:       2,
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one entry in the session's conversation log.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Edits     string    `json:"edits,omitempty"`
	ImagePath string    `json:"image_path,omitempty"`
}

// Session holds the full state of one iterative editing session.
//
// ShieldedHTML is the form sent to the completion backend; the placeholder
// map is built once at creation and never regenerated. CurrentShieldedHTML
// at turn N is always the edit pipeline's output from turn N-1, never
// recomputed from CurrentHTML.
type Session struct {
	ID                  string            `json:"id"`
	Status              Status            `json:"status"`
	MaxIterations       int               `json:"max_iterations"`
	CurrentIteration    int               `json:"current_iteration"`
	OriginalHTML        string            `json:"html"`
	CurrentHTML         string            `json:"current_html"`
	ShieldedHTML        string            `json:"shielded_html"`
	CurrentShieldedHTML string            `json:"current_shielded_html"`
	Placeholders        map[string]string `json:"placeholders"`
	OriginalQuery       string            `json:"original_query"`
	Backend             string            `json:"backend"`
	Message             string            `json:"message,omitempty"`
	InitialScreenshot   string            `json:"initial_screenshot,omitempty"`
	Turns               []Turn            `json:"turns"`
	Version             int               `json:"version"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
}

// SetStatus transitions the session to a new status. Backward transitions
// and transitions out of a terminal state are rejected. The update time is
// stamped and the record version bumped on success.
func (s *Session) SetStatus(to Status) error {
	if s.Status.Terminal() {
		return fmt.Errorf("session %s: illegal transition %s -> %s: session is terminal", s.ID, s.Status, to)
	}
	if statusRank[to] < statusRank[s.Status] {
		return fmt.Errorf("session %s: illegal transition %s -> %s", s.ID, s.Status, to)
	}
	s.Status = to
	s.Touch()
	if to.Terminal() {
		now := s.UpdatedAt
		s.CompletedAt = &now
	}
	return nil
}

// Touch stamps the update time and bumps the record version.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
	s.Version++
}

// AppendTurn adds a turn to the conversation log and stamps the update time.
func (s *Session) AppendTurn(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.Turns = append(s.Turns, t)
	s.Touch()
}
