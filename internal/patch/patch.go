// Package patch applies edit instructions to a full document through an
// external patch-application service.
package patch

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// Applier applies edit instructions to a document and returns the patched
// document text. Failures are fatal for the calling turn; there is no
// implicit retry.
type Applier interface {
	Apply(ctx context.Context, document, edits string) (string, error)
}

const morphBaseURL = "https://api.morphllm.com/v1"

// MorphApplier drives the Morph apply endpoint, which speaks the OpenAI
// chat-completions wire format.
type MorphApplier struct {
	client *openai.Client
	model  string
}

// NewMorphApplier builds an applier for the given API key and model.
func NewMorphApplier(apiKey, model string) *MorphApplier {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = morphBaseURL
	return &MorphApplier{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// NewMorphApplierWithBaseURL is NewMorphApplier with an overridable
// endpoint, used by tests.
func NewMorphApplierWithBaseURL(apiKey, model, baseURL string) *MorphApplier {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &MorphApplier{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Apply sends the document and edit instructions and returns the patched
// document.
func (m *MorphApplier) Apply(ctx context.Context, document, edits string) (string, error) {
	slog.Info("Calling patch service", "model", m.model, "document_len", len(document), "edits_len", len(edits))

	content := fmt.Sprintf("<code>%s</code>\n<update>%s</update>", document, edits)

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("patch service call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("patch service returned no choices")
	}

	patched := resp.Choices[0].Message.Content
	if patched == "" {
		return "", fmt.Errorf("patch service returned an empty document")
	}
	return patched, nil
}
