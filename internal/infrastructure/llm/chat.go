package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"CaseCurator/internal/config"
	"CaseCurator/internal/ports"
)

// ChatClient implements ports.CompletionClient backed by OpenAI-compatible APIs.
type ChatClient struct {
	client
	defaultModel string
}

var _ ports.CompletionClient = (*ChatClient)(nil)

// NewChatClient builds a client from configuration.
func NewChatClient(cfg config.CompletionConfig) *ChatClient {
	return &ChatClient{client: newClient(cfg), defaultModel: cfg.Model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatRequest is the wire body of /chat/completions.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// newChatRequest converts a completion request to the wire body.
func newChatRequest(req ports.CompletionRequest) chatRequest {
	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
	}
	if s := strings.TrimSpace(req.System); s != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: s})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})
	if req.JSONOutput {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one chat completion and returns the first choice's content.
func (c *ChatClient) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chat client is nil")
	}
	if err := c.ready(); err != nil {
		return "", err
	}
	if req.Model == "" {
		req.Model = c.defaultModel
	}

	var resp chatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat/completions", newChatRequest(req), &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content (finish_reason=%s)", ErrMalformedResponse, resp.Choices[0].FinishReason)
	}
	return content, nil
}
