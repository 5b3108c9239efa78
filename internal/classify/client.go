// Package classify talks to the external generative classification service:
// phone-number spam checks, recording transcription and short text completion.
package classify

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

	"github.com/chadiek/callscreen/internal/metrics"
	"github.com/chadiek/callscreen/internal/phone"
)

const (
	DefaultBaseURL        = "https://generativelanguage.googleapis.com"
	DefaultModel          = "gemini-2.0-flash"
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 5 * time.Second
	// DefaultInlineLimit is the audio size at which the client switches from
	// inline embedding to upload-then-reference.
	DefaultInlineLimit = 15 << 20
)

var (
	// ErrRateLimited marks a rate-limit response from the service.
	ErrRateLimited = errors.New("classify: rate limited")
	// ErrEmptyResponse is returned when the service answers without candidate text.
	ErrEmptyResponse = errors.New("classify: empty response")
)

// StatusError is a non-2xx response from the service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classify: status=%d body=%s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match 429 responses.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// Client calls the generateContent and file upload endpoints.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string

	Temperature float64
	MaxTokens   int

	MaxRetries     int
	InitialBackoff time.Duration
	// InlineLimit is the audio byte size at or above which uploads are used.
	InlineLimit int64
	// Sleep waits between retries; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewClient returns a client with the default retry policy.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		HTTPClient:     &http.Client{Timeout: 60 * time.Second},
		APIKey:         apiKey,
		Model:          model,
		BaseURL:        DefaultBaseURL,
		Temperature:    0.1,
		MaxTokens:      512,
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		InlineLimit:    DefaultInlineLimit,
		Sleep:          sleepContext,
	}
}

// Result is a number classification.
type Result struct {
	IsSpam     bool
	Confidence float64
	Reason     string
	// Structured is false when the answer could not be parsed and the raw
	// text was used instead.
	Structured bool
}

// Transcription is the outcome of transcribing a screening recording.
type Transcription struct {
	Text           string
	Summary        string
	IsSpam         bool
	SpamConfidence float64
	Structured     bool
}

// ClassifyNumber asks the service whether calls from number are unwanted.
func (c *Client) ClassifyNumber(ctx context.Context, number phone.Number) (Result, error) {
	raw, err := c.generate(ctx, "classify_number", []part{{Text: numberPrompt(number)}})
	if err != nil {
		return Result{}, err
	}
	return parseClassification(raw), nil
}

// Complete runs a plain text completion.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	raw, err := c.generate(ctx, "complete", []part{{Text: prompt}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

type part struct {
	Text       string    `json:"text,omitempty"`
	InlineData *blob     `json:"inlineData,omitempty"`
	FileData   *fileData `json:"fileData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, op string, parts []part) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("classify: api key missing")
	}
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{Temperature: c.Temperature, MaxOutputTokens: c.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("classify: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(c.BaseURL, "/"), c.Model)

	var text string
	err = c.withRetry(ctx, op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.APIKey)

		var gr generateResponse
		if err := c.doJSON(req, &gr); err != nil {
			return err
		}
		var b strings.Builder
		if len(gr.Candidates) > 0 {
			for _, p := range gr.Candidates[0].Content.Parts {
				b.WriteString(p.Text)
			}
		}
		if strings.TrimSpace(b.String()) == "" {
			return ErrEmptyResponse
		}
		text = b.String()
		return nil
	})
	record(op, err)
	return text, err
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("classify: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("classify: decode response: %w", err)
	}
	return nil
}

func record(op string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrRateLimited):
		outcome = "rate_limited"
	case err != nil:
		outcome = "error"
	}
	metrics.ClassificationRequests.WithLabelValues(op, outcome).Inc()
}

func numberPrompt(number phone.Number) string {
	return fmt.Sprintf(`You screen incoming phone calls. Decide whether calls from the number %s are likely unwanted (spam, robocalls, telemarketing, scams).
Consider the country and carrier prefix, number formatting and any widely reported abuse.
Answer only with JSON: {"isSpam": true|false, "confidence": number between 0 and 1, "reason": "one short sentence"}`, number)
}
