package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

const (
	defaultDeepgramModel = "aura-2-thalia-en"
	defaultIdleWindow    = 400 * time.Millisecond
	defaultMaxDuration   = 12 * time.Second
)

// DeepgramClient renders prompts over Deepgram's speak websocket. The socket
// never signals the end of an utterance, so a stream is considered finished
// once audio stops arriving for IdleWindow.
type DeepgramClient struct {
	APIKey     string
	Model      string
	SampleRate int
	// IdleWindow is the silence after the first chunk that ends a stream.
	IdleWindow time.Duration
	// MaxDuration caps a whole stream.
	MaxDuration time.Duration
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = defaultDeepgramModel
	}
	return &DeepgramClient{
		APIKey:      apiKey,
		Model:       model,
		SampleRate:  DefaultSampleRate,
		IdleWindow:  defaultIdleWindow,
		MaxDuration: defaultMaxDuration,
	}
}

// Render writes text as a WAV file.
func (d *DeepgramClient) Render(ctx context.Context, text string, w io.Writer) error {
	return renderStream(ctx, d.StreamPCM, d.SampleRate, text, w)
}

// StreamPCM streams linear16 mono PCM for text.
func (d *DeepgramClient) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if err := d.stream(ctx, text, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (d *DeepgramClient) stream(ctx context.Context, text string, out chan<- []byte) error {
	if d.APIKey == "" {
		return errors.New("deepgram: API key missing")
	}
	if text == "" {
		return nil
	}

	var last atomic.Int64
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		last.Store(time.Now().UnixNano())
		send(ctx, out, append([]byte(nil), data...))
		return nil
	}}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.Model,
		Encoding:   "linear16",
		SampleRate: d.rate(),
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.APIKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return fmt.Errorf("deepgram: create ws client: %w", err)
	}
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { dg.Stop() }) }
	defer stop()

	if ok := dg.Connect(); !ok {
		return errors.New("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		log.Printf("deepgram: flush error: %v", err)
	}

	waitIdle(ctx, &last, d.idleWindow(), d.maxDuration())
	return nil
}

// waitIdle returns once audio has been seen and then stayed quiet for idle.
// limit bounds the wait.
func waitIdle(ctx context.Context, last *atomic.Int64, idle, limit time.Duration) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			if ns := last.Load(); ns != 0 && time.Since(time.Unix(0, ns)) > idle {
				return
			}
		}
	}
}

func (d *DeepgramClient) rate() int {
	if d.SampleRate > 0 {
		return d.SampleRate
	}
	return DefaultSampleRate
}

func (d *DeepgramClient) idleWindow() time.Duration {
	if d.IdleWindow > 0 {
		return d.IdleWindow
	}
	return defaultIdleWindow
}

func (d *DeepgramClient) maxDuration() time.Duration {
	if d.MaxDuration > 0 {
		return d.MaxDuration
	}
	return defaultMaxDuration
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
