package edit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoApplier returns a canned document, recording what it was asked.
type echoApplier struct {
	result      string
	err         error
	gotDocument string
	gotEdits    string
}

func (e *echoApplier) Apply(_ context.Context, document, edits string) (string, error) {
	e.gotDocument = document
	e.gotEdits = edits
	if e.err != nil {
		return "", e.err
	}
	return e.result, nil
}

func TestApplyRestoresPlaceholders(t *testing.T) {
	applier := &echoApplier{result: `<html><head>__st1__</head><body><h1>New</h1></body></html>`}
	p := NewPipeline(applier)

	placeholders := map[string]string{"__st1__": "<style>body{margin:0}</style>"}

	final, newShielded, err := p.Apply(context.Background(), "<html>old</html>", "change h1", placeholders)
	require.NoError(t, err)

	assert.Contains(t, final, "<style>body{margin:0}</style>")
	assert.NotContains(t, final, "__st1__")
	// The shielded baseline for the next turn keeps its tokens.
	assert.Contains(t, newShielded, "__st1__")
	assert.Equal(t, "<html>old</html>", applier.gotDocument)
	assert.Equal(t, "change h1", applier.gotEdits)
}

func TestApplyPatcherFailureIsFatal(t *testing.T) {
	applier := &echoApplier{err: errors.New("upstream 500")}
	p := NewPipeline(applier)

	_, _, err := p.Apply(context.Background(), "<html></html>", "edit", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply edit instructions")
}

func TestSalvageKeepsNewScriptFromPatchedOutput(t *testing.T) {
	// The patcher emitted a new literal script but restore left it out of
	// place... here we simulate the dropped case by a document without it.
	doc := `<html><body><h1>Hi</h1></body></html>`
	patched := `<html><body><h1>Hi</h1><script>confetti()</script></body></html>`

	// doc lacks the script, so salvage must insert it before </body>.
	got := salvageScripts(doc, patched, "")
	idx := strings.Index(got, "<script>confetti()</script>")
	require.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, strings.Index(got, "</body>"))
	assert.Equal(t, 1, strings.Count(got, "<script>confetti()</script>"))
}

func TestSalvageSkipsScriptAlreadyPresent(t *testing.T) {
	doc := `<html><body><script>once()</script></body></html>`
	got := salvageScripts(doc, doc, "")
	assert.Equal(t, 1, strings.Count(got, "<script>once()</script>"))
}

func TestSalvageExtractsFromEditsWhenPatchedOutputHasNone(t *testing.T) {
	doc := `<html><body><h1>Hi</h1></body></html>`
	edits := "// ... existing code ...\n<script>spin()</script>\n// ... existing code ..."

	got := salvageScripts(doc, doc, edits)

	require.Equal(t, 1, strings.Count(got, "<script>spin()</script>"))
	idx := strings.Index(got, "<script>spin()</script>")
	assert.Less(t, idx, strings.Index(got, "</body>"))
}

func TestSalvageNoBodyTagLeavesDocumentAlone(t *testing.T) {
	doc := `<div>fragment</div>`
	patched := `<div>fragment</div><script>x()</script>`
	got := salvageScripts(doc, patched, "")
	assert.Equal(t, doc, got)
}
