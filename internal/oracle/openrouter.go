package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// maxCompletionTokens bounds a single generation; edits are instruction
// snippets, not whole documents, so this is generous.
const maxCompletionTokens = 4000

// OpenRouterClient completes prompts through the OpenRouter
// chat-completions API.
type OpenRouterClient struct {
	client *openai.Client
	model  string
}

// NewOpenRouterClient builds a client for the given API key and model.
func NewOpenRouterClient(apiKey, model string) *OpenRouterClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = openRouterBaseURL
	return &OpenRouterClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Complete sends the prompt (and screenshot, when present) and returns the
// raw generated text.
func (c *OpenRouterClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt}

	if req.ImagePath != "" {
		data, err := os.ReadFile(req.ImagePath)
		if err != nil {
			return "", fmt.Errorf("read screenshot %s: %w", req.ImagePath, err)
		}
		msg = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
					},
				},
			},
		}
	}

	slog.Info("Calling completion backend", "model", c.model, "prompt_len", len(req.Prompt), "has_image", req.ImagePath != "")

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  []openai.ChatCompletionMessage{msg},
		MaxTokens: maxCompletionTokens,
	})
	if err != nil {
		return "", fmt.Errorf("completion backend call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion backend returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
