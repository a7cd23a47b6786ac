package oracle

import (
	"fmt"
	"strings"

	"github.com/lemurlabs/lemur-agent/internal/domain"
)

// promptTemplate is the instruction sent with every completion request.
// Placeholders are substituted with strings.Replacer, never fmt-style
// formatting: the document and query routinely contain braces and percent
// signs.
const promptTemplate = `<role>
You are an AI web development assistant, pair-programming with the USER to
edit a live webpage (HTML, CSS, JavaScript).
</role>

<task>
The current page source is below. Apply the USER's request with precise,
complete edits. Fragile regions have been replaced by placeholder tokens of
the form __xx1__; leave those tokens untouched.
</task>

<output_format>
Respond with ONLY a single valid JSON object, no surrounding text, with
exactly two fields:

"reasoning" - a short explanation of what you changed and why.
"edits" - the code changes in this format:
// ... existing code ...
<context before>
<your full changes>
<context after>
// ... existing code ...

- Include 1-2 lines of surrounding context so the edit can be placed exactly.
- Provide complete, functional code, never placeholders or fragments.
- Multiple separate edits may appear in one "edits" value.
- Escape newlines as \n and quotes as \" inside the JSON strings.
- Never call string methods or emit more than one JSON object.

When the USER's request has been fully satisfied and no further edit is
needed, set "edits" to exactly TASK_COMPLETE.
</output_format>

{IMAGE_CONTEXT}

<file>
{FILE}
</file>

<request>
{QUERY}
</request>`

const initialImageContext = `<image_attached>
A screenshot of the webpage before any edits is attached. Use it to
understand the current layout, styling, and what the user is looking at.
</image_attached>`

const feedbackImageContext = `<image_attached>
A screenshot of the webpage after your previous edits is attached. Use it to
judge how your changes rendered and what still needs adjustment.
</image_attached>`

// BuildPrompt assembles the completion request for the session's next turn
// from the shielded document and the conversation so far. The returned
// image path is the screenshot to attach, empty when there is none.
func BuildPrompt(sess *domain.Session, initialImagePath string) (string, string) {
	var parts []string
	imagePath := ""

	if len(sess.Turns) == 0 && initialImagePath != "" {
		imagePath = initialImagePath
		parts = append(parts, "Initial screenshot of the webpage provided for context.")
	}

	for _, turn := range sess.Turns {
		switch turn.Role {
		case domain.RoleUser:
			if turn.Content != "" {
				parts = append(parts, "User: "+turn.Content)
			}
			if turn.ImagePath != "" {
				imagePath = turn.ImagePath
				parts = append(parts, "User provided screenshot: "+turn.ImagePath)
			}
		case domain.RoleAgent:
			if turn.Content != "" {
				parts = append(parts, "Assistant: "+turn.Content)
			}
			if turn.Edits != "" {
				parts = append(parts, "Previous changes made: "+truncate(turn.Edits, 200))
			}
		}
	}

	if len(sess.Turns) > 0 {
		parts = append(parts, "\nThis is a follow-up turn. Build on the previous conversation when making your changes.")
	}

	context := "No previous iterations."
	if len(parts) > 0 {
		context = strings.Join(parts, "\n")
	}

	imageContext := ""
	if imagePath != "" {
		if len(sess.Turns) == 0 {
			imageContext = initialImageContext
		} else {
			imageContext = feedbackImageContext
		}
	}

	query := fmt.Sprintf("Original request: %s\n\nContext from previous iterations:\n%s", sess.OriginalQuery, context)

	prompt := strings.NewReplacer(
		"{FILE}", sess.CurrentShieldedHTML,
		"{QUERY}", query,
		"{IMAGE_CONTEXT}", imageContext,
	).Replace(promptTemplate)

	return prompt, imagePath
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
