package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lemurlabs/lemur-agent/internal/domain"
)

// Archiver writes post-mortem session snapshots to disk. Every terminal
// transition gets one; failures are logged, never propagated.
type Archiver struct {
	dir string
}

// NewArchiver creates an archiver rooted at dir. An empty dir disables
// archiving.
func NewArchiver(dir string) *Archiver {
	return &Archiver{dir: dir}
}

type archiveMetadata struct {
	SavedAt       time.Time `json:"saved_at"`
	SessionID     string    `json:"session_id"`
	TotalTurns    int       `json:"total_turns"`
	OriginalQuery string    `json:"original_query"`
	FinalStatus   string    `json:"final_status"`
}

type archiveEnvelope struct {
	Metadata archiveMetadata `json:"metadata"`
	Session  *domain.Session `json:"session"`
}

// Snapshot persists the full session record with a metadata header.
func (a *Archiver) Snapshot(sess *domain.Session) {
	if a == nil || a.dir == "" {
		return
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		slog.Error("Failed to create archive directory", "dir", a.dir, "error", err)
		return
	}

	envelope := archiveEnvelope{
		Metadata: archiveMetadata{
			SavedAt:       time.Now(),
			SessionID:     sess.ID,
			TotalTurns:    len(sess.Turns),
			OriginalQuery: sess.OriginalQuery,
			FinalStatus:   string(sess.Status),
		},
		Session: sess,
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		slog.Error("Failed to encode session snapshot", "session_id", sess.ID, "error", err)
		return
	}

	name := fmt.Sprintf("session_%s_%s_%s.json",
		time.Now().Format("20060102_150405"), sess.ID, sanitizeForFilename(sess.OriginalQuery))
	path := filepath.Join(a.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Error("Failed to write session snapshot", "path", path, "error", err)
		return
	}
	slog.Info("Session snapshot written", "session_id", sess.ID, "path", path)
}

// sanitizeForFilename keeps a short, filesystem-safe slice of the query.
func sanitizeForFilename(s string) string {
	if len(s) > 50 {
		s = s[:50]
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		out = "unknown"
	}
	return out
}
