package agent

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SaveScreenshot decodes a base64 PNG payload (optionally carrying a
// data-URL prefix) and writes it under dir. Returns the file path.
func SaveScreenshot(dir, sessionID, data string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("screenshot directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot directory: %w", err)
	}

	if strings.HasPrefix(data, "data:image") {
		if _, rest, ok := strings.Cut(data, ","); ok {
			data = rest
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", sessionID, time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, decoded, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}
