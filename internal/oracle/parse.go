package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/lemurlabs/lemur-agent/internal/domain"
)

// SentinelCompleted is the fixed literal a backend puts in the edits field
// to signal the task is finished instead of proposing another edit.
const SentinelCompleted = "TASK_COMPLETE"

// Parse failure reasons.
const (
	ReasonDecode        = "decode failure"
	ReasonMissingFields = "missing fields"
)

// ParseError describes an unrecoverable backend response. Raw and Repaired
// are retained for the diagnostic dump.
type ParseError struct {
	Reason   string
	Err      error
	Raw      string
	Repaired string
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse backend response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse backend response: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// rawGeneration is the JSON shape backends are prompted to produce.
type rawGeneration struct {
	Edits     string `json:"edits"`
	Reasoning string `json:"reasoning"`
}

var (
	quotedStringRe  = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	invalidEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
	replaceCallRe   = regexp.MustCompile(`"([^"\\]*(?:\\.[^"\\]*)*)"\.replace\([^)]+\)`)
	splitJoinRe     = regexp.MustCompile(`"([^"\\]*(?:\\.[^"\\]*)*)"\.split\([^)]+\)\.join\([^)]+\)`)
)

// Parse recovers a Generation from raw backend text. A strict decode is
// attempted first; on failure the repair chain runs and the decode is
// retried exactly once. A syntactically valid response with neither edits
// nor reasoning is still an error.
func Parse(raw string) (*domain.Generation, error) {
	text := stripFence(raw)

	gen, err := decode(text)
	repaired := ""
	if err != nil {
		repaired = Repair(text)
		gen, err = decode(repaired)
		if err != nil {
			return nil, &ParseError{Reason: ReasonDecode, Err: err, Raw: raw, Repaired: repaired}
		}
	}

	if gen.Edits == "" && gen.Reasoning == "" {
		return nil, &ParseError{Reason: ReasonMissingFields, Raw: raw, Repaired: repaired}
	}

	if strings.Contains(gen.Edits, SentinelCompleted) {
		return &domain.Generation{
			Status:  domain.GenerationCompleted,
			Message: gen.Reasoning,
		}, nil
	}

	return &domain.Generation{
		Status:  domain.GenerationAppliedEdit,
		Message: gen.Reasoning,
		Edits:   gen.Edits,
	}, nil
}

func decode(text string) (rawGeneration, error) {
	var gen rawGeneration
	if err := json.Unmarshal([]byte(text), &gen); err != nil {
		return rawGeneration{}, err
	}
	return gen, nil
}

// stripFence removes an optional markdown code-block wrapper.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```json") {
		t = t[len("```json"):]
	}
	if strings.HasPrefix(t, "```") {
		t = t[len("```"):]
	}
	if strings.HasSuffix(t, "```") {
		t = t[:len(t)-len("```")]
	}
	return strings.TrimSpace(t)
}

// Repair runs the ordered chain of text repairs for near-JSON backend
// output. Each step is pure; the chain never recurses.
func Repair(text string) string {
	s := collapseDoubleEscapes(text)
	s = fixStringEscapes(s)
	if hasCallSuffix(s) || topLevelObjectCount(s) > 1 {
		s = truncateToFirstObject(s)
		s = stripCallSuffixes(s)
	}
	return s
}

// collapseDoubleEscapes rewrites double-escaped quotes and apostrophes
// (\\" and \\') to their single-escaped forms.
func collapseDoubleEscapes(s string) string {
	s = strings.ReplaceAll(s, `\\"`, `\"`)
	s = strings.ReplaceAll(s, `\\'`, `\'`)
	return s
}

// fixStringEscapes deletes backslashes preceding characters that are not
// legal JSON escapes, inside every quoted string value.
func fixStringEscapes(s string) string {
	return quotedStringRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := m[1 : len(m)-1]
		return `"` + invalidEscapeRe.ReplaceAllString(inner, "$1") + `"`
	})
}

// hasCallSuffix detects host-language method calls pasted after string
// values, which no JSON decoder will accept.
func hasCallSuffix(s string) bool {
	return strings.Contains(s, ".replace(") ||
		strings.Contains(s, ".split(") ||
		strings.Contains(s, ".join(")
}

// topLevelObjectCount counts opening braces at depth zero.
func topLevelObjectCount(s string) int {
	depth, count := 0, 0
	for _, r := range s {
		switch r {
		case '{':
			if depth == 0 {
				count++
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return count
}

// truncateToFirstObject keeps only the first balanced top-level object,
// tracking brace depth line by line.
func truncateToFirstObject(s string) string {
	lines := strings.Split(s, "\n")
	var kept []string
	depth := 0
	started := false
	for _, line := range lines {
		if !started && strings.HasPrefix(strings.TrimSpace(line), "{") {
			started = true
		}
		if !started {
			continue
		}
		kept = append(kept, line)
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth == 0 && len(kept) > 1 {
			break
		}
	}
	if !started {
		return s
	}
	return strings.Join(kept, "\n")
}

// stripCallSuffixes drops method-call suffixes attached to quoted strings,
// keeping the string itself.
func stripCallSuffixes(s string) string {
	s = splitJoinRe.ReplaceAllString(s, `"$1"`)
	s = replaceCallRe.ReplaceAllString(s, `"$1"`)
	return s
}
