package oracle

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemurlabs/lemur-agent/internal/domain"
)

func TestParseWellFormed(t *testing.T) {
	gen, err := Parse(`{"reasoning": "made the header blue", "edits": "// ... existing code ...\n<h1 style=\"color: blue\">Hi</h1>\n// ... existing code ..."}`)
	require.NoError(t, err)

	assert.Equal(t, domain.GenerationAppliedEdit, gen.Status)
	assert.Equal(t, "made the header blue", gen.Message)
	assert.Contains(t, gen.Edits, "color: blue")
}

func TestParseFencedPayloadMatchesUnwrapped(t *testing.T) {
	payload := `{"reasoning": "done something", "edits": "<p>x</p>"}`

	plain, err := Parse(payload)
	require.NoError(t, err)

	fenced, err := Parse("```json\n" + payload + "\n```")
	require.NoError(t, err)

	assert.Equal(t, plain, fenced)
}

func TestParseCompletionSentinel(t *testing.T) {
	gen, err := Parse(`{"reasoning": "all requested changes are in place", "edits": "TASK_COMPLETE"}`)
	require.NoError(t, err)

	assert.Equal(t, domain.GenerationCompleted, gen.Status)
	assert.Empty(t, gen.Edits, "edits must be cleared on completion")
	assert.Equal(t, "all requested changes are in place", gen.Message)
}

func TestParseMissingFieldsIsError(t *testing.T) {
	_, err := Parse(`{"status": "ok"}`)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ReasonMissingFields, perr.Reason)
}

func TestParseGarbageIsDecodeError(t *testing.T) {
	_, err := Parse(`I changed the header for you!`)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ReasonDecode, perr.Reason)
}

func TestParseRepairsDoubleEscapedQuotes(t *testing.T) {
	gen, err := Parse(`{"reasoning": "swap text", "edits": "<a href=\\"x\\">go</a>"}`)
	require.NoError(t, err)

	assert.Equal(t, domain.GenerationAppliedEdit, gen.Status)
	assert.Contains(t, gen.Edits, `href="x"`)
}

func TestParseRepairsInvalidEscapes(t *testing.T) {
	// \d is not a legal JSON escape; the repair chain drops the backslash.
	gen, err := Parse(`{"reasoning": "regex tweak", "edits": "matches \d+ digits"}`)
	require.NoError(t, err)
	assert.Contains(t, gen.Edits, "d+ digits")
}

func TestParseTruncatesToFirstObject(t *testing.T) {
	raw := "{\n\"reasoning\": \"first\",\n\"edits\": \"<p>one</p>\".replace(\"one\", \"two\")\n}\n{\n\"reasoning\": \"second\"\n}"

	gen, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "first", gen.Message)
	assert.Equal(t, "<p>one</p>", gen.Edits)
}

func TestRepairStripsSplitJoinCalls(t *testing.T) {
	got := Repair(`{"edits": "abc".split("b").join("x"), "reasoning": "r"}`)
	assert.Contains(t, got, `"abc"`)
	assert.NotContains(t, got, ".split(")
}

func TestDumpParseFailureWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	perr := &ParseError{Reason: ReasonDecode, Raw: "not json at all", Repaired: "still not json"}

	path := DumpParseFailure(dir, perr)
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "debug_parse_error_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "decode failure")
	assert.Contains(t, string(data), "not json at all")
	assert.Contains(t, string(data), "still not json")
}

func TestDumpParseFailureNoDirIsNoop(t *testing.T) {
	assert.Empty(t, DumpParseFailure("", &ParseError{Reason: ReasonDecode}))
}
