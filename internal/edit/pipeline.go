// Package edit applies one round of edit instructions to a shielded
// document and reconciles the result with the placeholder map.
package edit

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lemurlabs/lemur-agent/internal/patch"
	"github.com/lemurlabs/lemur-agent/internal/shield"
)

var scriptRe = regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)

const closingBody = "</body>"

// Pipeline runs the patch service and salvages content it may drop.
type Pipeline struct {
	applier patch.Applier
}

// NewPipeline builds a pipeline over the given patch applier.
func NewPipeline(applier patch.Applier) *Pipeline {
	return &Pipeline{applier: applier}
}

// Apply patches the shielded baseline with the edit instructions, restores
// placeholders, and salvages script spans the patcher may have lost. It
// returns the fully restored document and the new shielded baseline for the
// next turn. The placeholder map is read-only here; it is never
// regenerated after session start.
func (p *Pipeline) Apply(ctx context.Context, shieldedBaseline, edits string, placeholders map[string]string) (string, string, error) {
	newShielded, err := p.applier.Apply(ctx, shieldedBaseline, edits)
	if err != nil {
		return "", "", fmt.Errorf("apply edit instructions: %w", err)
	}

	candidate := shield.Restore(newShielded, placeholders)
	final := salvageScripts(candidate, newShielded, edits)

	return final, newShielded, nil
}

// salvageScripts reinserts script spans the patch service dropped. Literal
// script spans found in the patched shielded output (pre-existing scripts
// are placeholder tokens there, so every hit is new) are checked by
// substring containment against the restored document and appended before
// the closing body tag when absent. If the patched output carries no
// scripts but the edit instructions themselves contain a script-opening
// tag, spans are extracted from the instructions instead.
//
// Containment is literal, not structural: a superficially modified script
// may be duplicated. Accepted approximation.
func salvageScripts(doc, newShielded, edits string) string {
	scripts := scriptRe.FindAllString(newShielded, -1)

	if len(scripts) == 0 && strings.Contains(strings.ToLower(edits), "<script") {
		scripts = scriptRe.FindAllString(edits, -1)
		if len(scripts) > 0 {
			slog.Info("No scripts in patched output, salvaging from edit instructions", "count", len(scripts))
		}
	}

	for _, script := range scripts {
		if strings.Contains(doc, script) {
			continue
		}
		if !strings.Contains(doc, closingBody) {
			slog.Warn("Cannot salvage script: document has no closing body tag")
			break
		}
		doc = strings.Replace(doc, closingBody, script+"\n"+closingBody, 1)
		slog.Info("Salvaged dropped script span", "script_len", len(script))
	}

	return doc
}
