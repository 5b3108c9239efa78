package screening

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chadiek/callscreen/internal/telephony"
)

const (
	DefaultListenTimeout = 10 * time.Second
	DefaultSpeakTimeout  = 30 * time.Second
	refineTimeout        = 10 * time.Second
	maxCapturedLength    = 200
)

const (
	defaultNamePrompt    = "Hello, this call is being screened. Please say your name."
	defaultPurposePrompt = "Thank you. What is the reason for your call?"
)

// Refiner cleans up recognized text with a language model.
type Refiner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Voice conducts an audible two-question dialogue: it asks for the caller's
// name, then their purpose, listening after each question.
type Voice struct {
	// Speaker and Listener default to the call itself when it implements
	// them.
	Speaker  telephony.Speaker
	Listener telephony.Listener
	// Refiner is optional; without it the recognized text is kept verbatim.
	Refiner Refiner

	NamePrompt    string
	PurposePrompt string
	ListenTimeout time.Duration
	SpeakTimeout  time.Duration
}

// NewVoice returns a Voice strategy with the default prompts and timeouts.
func NewVoice(speaker telephony.Speaker, listener telephony.Listener, refiner Refiner) *Voice {
	return &Voice{
		Speaker:       speaker,
		Listener:      listener,
		Refiner:       refiner,
		NamePrompt:    defaultNamePrompt,
		PurposePrompt: defaultPurposePrompt,
		ListenTimeout: DefaultListenTimeout,
		SpeakTimeout:  DefaultSpeakTimeout,
	}
}

func (v *Voice) Name() string { return "voice" }

func (v *Voice) Prepare(ctx context.Context) error { return nil }

func (v *Voice) Route(ctx context.Context, call telephony.Call) error {
	if err := call.SetMicrophoneMuted(ctx, false); err != nil {
		return err
	}
	return call.SetOutputDevice(ctx, telephony.OutputSpeaker)
}

func (v *Voice) Converse(ctx context.Context, call telephony.Call, sess *Session) error {
	speaker, listener := v.Speaker, v.Listener
	if speaker == nil {
		speaker, _ = call.(telephony.Speaker)
	}
	if listener == nil {
		listener, _ = call.(telephony.Listener)
	}
	if speaker == nil || listener == nil {
		return errors.New("screening: voice strategy needs a speaker and a listener")
	}

	if err := sess.transition(Greeting); err != nil {
		return err
	}
	if err := v.speak(ctx, speaker, v.NamePrompt); err != nil {
		return err
	}
	if err := sess.transition(WaitingName); err != nil {
		return err
	}
	name, err := v.listen(ctx, listener)
	if err != nil {
		return err
	}
	sess.setCallerName(v.refine(ctx, "name", name))

	if err := sess.transition(AskingPurpose); err != nil {
		return err
	}
	if err := v.speak(ctx, speaker, v.PurposePrompt); err != nil {
		return err
	}
	if err := sess.transition(WaitingPurpose); err != nil {
		return err
	}
	purpose, err := v.listen(ctx, listener)
	if err != nil {
		return err
	}
	sess.setCallerPurpose(v.refine(ctx, "purpose", purpose))
	return sess.transition(Completed)
}

func (v *Voice) speak(ctx context.Context, speaker telephony.Speaker, text string) error {
	onComplete, done := completion()
	if err := speaker.Speak(ctx, text, onComplete); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return awaitCompletion(ctx, done, v.speakTimeout(), "speech synthesis")
}

// listen returns NoResponse when the caller stays silent for the whole
// window or recognition fails.
func (v *Voice) listen(ctx context.Context, listener telephony.Listener) (string, error) {
	timeout := v.ListenTimeout
	if timeout <= 0 {
		timeout = DefaultListenTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := listener.Listen(lctx, timeout)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		if errors.Is(err, telephony.ErrCallEnded) {
			return "", err
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[screening] recognition failed: %v", err)
		}
		return NoResponse, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return NoResponse, nil
	}
	return truncate(text, maxCapturedLength), nil
}

func (v *Voice) refine(ctx context.Context, field, raw string) string {
	if v.Refiner == nil || raw == NoResponse {
		return raw
	}
	rctx, cancel := context.WithTimeout(ctx, refineTimeout)
	defer cancel()
	prompt := fmt.Sprintf("A phone caller was asked for their %s and answered: %q\n"+
		"Reply with only the caller's %s, corrected for obvious speech recognition errors. "+
		"If the answer contains no %s, reply with the answer unchanged.", field, raw, field, field)
	out, err := v.Refiner.Complete(rctx, prompt)
	if err != nil {
		log.Printf("[screening] refine %s failed, keeping raw text: %v", field, err)
		return raw
	}
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		return raw
	}
	return truncate(out, maxCapturedLength)
}

func (v *Voice) speakTimeout() time.Duration {
	if v.SpeakTimeout > 0 {
		return v.SpeakTimeout
	}
	return DefaultSpeakTimeout
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
