// Package llm talks to chat-completion models used to tidy up text
// captured from callers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const cerebrasEndpoint = "https://api.cerebras.ai/v1/chat/completions"

const systemPrompt = "You clean up speech recognition transcripts of phone callers. " +
	"Answer with the requested value only, without quotes or commentary."

// ErrNoAnswer is returned when the model replies without any choice.
var ErrNoAnswer = errors.New("cerebras: empty choices")

// StatusError is a non-2xx reply from the completions endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cerebras error: status=%d body=%s", e.Code, e.Body)
}

// CerebrasClient refines short caller answers with a Cerebras-hosted model.
type CerebrasClient struct {
	HTTPClient  *http.Client
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	return &CerebrasClient{
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
		APIKey:      apiKey,
		Model:       model,
		MaxTokens:   128,
		Temperature: 0.1,
	}
}

// Complete sends prompt as a single user turn and returns the trimmed answer.
func (c *CerebrasClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("cerebras api key missing")
	}
	body, err := json.Marshal(chatCompletionsRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cerebrasEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("cerebras: decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", ErrNoAnswer
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
