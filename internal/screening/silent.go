package screening

import (
	"context"
	"fmt"
	"time"

	"github.com/chadiek/callscreen/internal/telephony"
)

const (
	DefaultResponseWindow  = 8 * time.Second
	DefaultPlaybackTimeout = 30 * time.Second
)

// Silent answers with the local microphone muted and no local audio, plays
// a greeting, leaves a response window for the caller and says goodbye
// before hanging up. The caller's answer is captured by the recording.
type Silent struct {
	Prompts *PromptCache
	// ResponseWindow applies when the session carries no override.
	ResponseWindow  time.Duration
	PlaybackTimeout time.Duration
}

// NewSilent returns a Silent strategy playing prompts from cache.
func NewSilent(cache *PromptCache) *Silent {
	return &Silent{
		Prompts:         cache,
		ResponseWindow:  DefaultResponseWindow,
		PlaybackTimeout: DefaultPlaybackTimeout,
	}
}

func (s *Silent) Name() string { return "silent" }

func (s *Silent) Prepare(ctx context.Context) error {
	if s.Prompts == nil {
		return fmt.Errorf("screening: silent strategy has no prompt cache")
	}
	return s.Prompts.Ensure(ctx)
}

func (s *Silent) Route(ctx context.Context, call telephony.Call) error {
	if err := call.SetMicrophoneMuted(ctx, true); err != nil {
		return err
	}
	return call.SetOutputDevice(ctx, telephony.OutputNone)
}

func (s *Silent) Converse(ctx context.Context, call telephony.Call, sess *Session) error {
	greeting, err := s.Prompts.Path(ctx, PromptGreeting)
	if err != nil {
		return err
	}
	goodbye, err := s.Prompts.Path(ctx, PromptGoodbye)
	if err != nil {
		return err
	}

	if err := sess.transition(PlayingGreeting); err != nil {
		return err
	}
	if err := s.play(ctx, call, greeting); err != nil {
		return err
	}

	if err := sess.transition(WaitingResponse); err != nil {
		return err
	}
	window := sess.ResponseWindow
	if window <= 0 {
		window = s.ResponseWindow
	}
	if window <= 0 {
		window = DefaultResponseWindow
	}
	t := time.NewTimer(window)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}

	if err := sess.transition(PlayingGoodbye); err != nil {
		return err
	}
	if err := s.play(ctx, call, goodbye); err != nil {
		return err
	}
	if err := call.Terminate(ctx); err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	return sess.transition(Completed)
}

func (s *Silent) play(ctx context.Context, call telephony.Call, path string) error {
	onComplete, done := completion()
	if err := call.PlayFile(ctx, path, onComplete); err != nil {
		return fmt.Errorf("play %s: %w", path, err)
	}
	timeout := s.PlaybackTimeout
	if timeout <= 0 {
		timeout = DefaultPlaybackTimeout
	}
	return awaitCompletion(ctx, done, timeout, "prompt playback")
}
