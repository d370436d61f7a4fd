package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ChatClient calls an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	caller
	url string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewChatClient creates a client posting to url. Model calls are slow, so
// timeout is usually much larger than for the other collaborators.
func NewChatClient(url string, timeout time.Duration) *ChatClient {
	return &ChatClient{caller: newCaller("chat", timeout), url: url}
}

// Generate sends a system and a user message to model and returns the
// trimmed content of the first choice.
func (c *ChatClient) Generate(ctx context.Context, model, systemPrompt, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat response has no choices", ErrUpstreamFailure)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
