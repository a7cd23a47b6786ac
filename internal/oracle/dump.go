package oracle

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DumpParseFailure writes a timestamped diagnostic artifact for a failed
// parse: the failure reason, the raw backend text, and the repaired text if
// the repair chain ran. Best effort; the returned path is empty on failure.
func DumpParseFailure(dir string, perr *ParseError) string {
	if dir == "" {
		return ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("Failed to create parse dump directory", "dir", dir, "error", err)
		return ""
	}

	ts := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("debug_parse_error_%s.txt", ts))

	body := fmt.Sprintf("Parse error: %s\nTimestamp: %s\nDetail: %v\n\nRaw response:\n%s\n",
		perr.Reason, ts, perr.Err, perr.Raw)
	if perr.Repaired != "" {
		body += fmt.Sprintf("\nRepaired text:\n%s\n", perr.Repaired)
	}

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		slog.Error("Failed to write parse dump", "path", path, "error", err)
		return ""
	}
	slog.Info("Parse failure dump written", "path", path)
	return path
}
