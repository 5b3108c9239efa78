package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	elevenLabsModel   = "eleven_flash_v2_5"
)

// ElevenLabsClient synthesizes speech over the HTTP streaming endpoint.
type ElevenLabsClient struct {
	APIKey     string
	VoiceID    string
	Model      string
	SampleRate int
	BaseURL    string
	HTTPClient *http.Client
}

func NewElevenLabsClient(apiKey, voiceID string) *ElevenLabsClient {
	return &ElevenLabsClient{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		Model:      elevenLabsModel,
		SampleRate: DefaultSampleRate,
		BaseURL:    elevenLabsBaseURL,
		HTTPClient: &http.Client{Timeout: 0},
	}
}

// StreamPCM streams 16-bit mono PCM at SampleRate for text.
func (e *ElevenLabsClient) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if e.APIKey == "" || e.VoiceID == "" {
			errCh <- fmt.Errorf("elevenlabs: api key or voice id missing")
			return
		}
		if err := e.httpStream(ctx, text, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

// Render writes text as a WAV file.
func (e *ElevenLabsClient) Render(ctx context.Context, text string, w io.Writer) error {
	return renderStream(ctx, e.StreamPCM, e.SampleRate, text, w)
}

func (e *ElevenLabsClient) httpStream(ctx context.Context, text string, pcmCh chan<- []byte) error {
	base := e.BaseURL
	if base == "" {
		base = elevenLabsBaseURL
	}
	u, err := url.Parse(base + "/v1/text-to-speech/" + url.PathEscape(e.VoiceID) + "/stream")
	if err != nil {
		return err
	}
	model := e.Model
	if model == "" {
		model = elevenLabsModel
	}
	q := u.Query()
	q.Set("model_id", model)
	q.Set("output_format", "pcm_"+strconv.Itoa(e.SampleRate))
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": model,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.5,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}

	bufChunk := make([]byte, 4096)
	logged := false
	for {
		n, rerr := resp.Body.Read(bufChunk)
		if n > 0 {
			if !logged {
				log.Printf("elevenlabs http: receiving audio stream (%d bytes first chunk)", n)
				logged = true
			}
			out := make([]byte, n)
			copy(out, bufChunk[:n])
			if !send(ctx, pcmCh, out) {
				return ctx.Err()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("elevenlabs http read error: %w", rerr)
		}
	}
}
