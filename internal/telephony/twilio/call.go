package twilio

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/telephony"
)

// Call is one Twilio call leg. Twilio answers inbound calls as soon as the
// voice webhook returns, so the leg is held in a silent pause and reported
// as ringing until Accept. The leg has no local microphone or speaker;
// mute and output routing are tracked so Forward can honor them.
type Call struct {
	g      *Gateway
	sid    string
	remote phone.Number
	ended  chan struct{}

	mu        sync.Mutex
	state     telephony.CallState
	muted     bool
	output    telephony.OutputKind
	playToken string
	rec       *recording
}

type recording struct {
	sid  string
	path string
	done chan struct{}
	once sync.Once
	err  error
}

func newCall(g *Gateway, sid string, remote phone.Number) *Call {
	return &Call{
		g:      g,
		sid:    sid,
		remote: remote,
		ended:  make(chan struct{}),
		state:  telephony.StateRinging,
		output: telephony.OutputEarpiece,
	}
}

func (c *Call) ID() string           { return c.sid }
func (c *Call) Remote() phone.Number { return c.remote }

func (c *Call) State() telephony.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Call) markEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == telephony.StateEnded {
		return
	}
	c.state = telephony.StateEnded
	close(c.ended)
}

func (c *Call) Accept(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == telephony.StateEnded {
		return telephony.ErrCallEnded
	}
	c.state = telephony.StateActive
	return nil
}

func (c *Call) Terminate(ctx context.Context) error {
	if c.State() == telephony.StateEnded {
		return nil
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := c.g.api.UpdateCall(c.sid, params); err != nil {
		if c.State() == telephony.StateEnded {
			return nil
		}
		return fmt.Errorf("terminate call %s: %w", c.sid, err)
	}
	c.markEnded()
	return nil
}

func (c *Call) SetMicrophoneMuted(ctx context.Context, muted bool) error {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	log.Printf("[twilio] call=%s microphone muted=%v", c.sid, muted)
	return nil
}

func (c *Call) SetOutputDevice(ctx context.Context, kind telephony.OutputKind) error {
	c.mu.Lock()
	c.output = kind
	c.mu.Unlock()
	log.Printf("[twilio] call=%s output=%s", c.sid, kind)
	return nil
}

// Forward bridges the caller to the configured forward number. Calls routed
// to OutputNone are never forwarded.
func (c *Call) Forward(ctx context.Context) error {
	c.mu.Lock()
	output := c.output
	c.mu.Unlock()
	if output == telephony.OutputNone {
		return fmt.Errorf("twilio: call %s is routed away from the user", c.sid)
	}
	doc, err := c.g.forwardTwiML()
	if err != nil {
		return err
	}
	c.dropPlayback()
	return c.update(doc)
}

// Release forwards the call regardless of local routing. It is used when
// screening fails and the caller would otherwise stay on hold.
func (c *Call) Release(ctx context.Context) error {
	doc, err := c.g.forwardTwiML()
	if err != nil {
		return err
	}
	c.dropPlayback()
	return c.update(doc)
}

func (c *Call) update(doc string) error {
	if c.State() == telephony.StateEnded {
		return telephony.ErrCallEnded
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := c.g.api.UpdateCall(c.sid, params); err != nil {
		if c.State() == telephony.StateEnded {
			return telephony.ErrCallEnded
		}
		return fmt.Errorf("update call %s: %w", c.sid, err)
	}
	return nil
}

func (c *Call) PlayFile(ctx context.Context, path string, onComplete func()) error {
	token := c.g.addWaiter(c.sid, onComplete, nil)
	play := &twiml.VoicePlay{Url: c.g.promptURL(path)}
	return c.playDocument(token, play)
}

// Speak reads text with Twilio's synthesizer.
func (c *Call) Speak(ctx context.Context, text string, onComplete func()) error {
	token := c.g.addWaiter(c.sid, onComplete, nil)
	say := &twiml.VoiceSay{Message: text}
	return c.playDocument(token, say)
}

func (c *Call) playDocument(token string, verb twiml.Element) error {
	redirect := &twiml.VoiceRedirect{Url: c.g.url("/twilio/resume?token=" + token), Method: "POST"}
	doc, err := twiml.Voice([]twiml.Element{verb, redirect})
	if err != nil {
		c.g.takeWaiter(token)
		return err
	}
	c.mu.Lock()
	c.playToken = token
	c.mu.Unlock()
	if err := c.update(doc); err != nil {
		c.g.takeWaiter(token)
		return err
	}
	return nil
}

func (c *Call) dropPlayback() {
	c.mu.Lock()
	token := c.playToken
	c.playToken = ""
	c.mu.Unlock()
	if token != "" {
		c.g.takeWaiter(token)
	}
}

func (c *Call) StopPlayback(ctx context.Context) error {
	c.dropPlayback()
	if c.State() == telephony.StateEnded {
		return nil
	}
	doc, err := c.g.holdTwiML()
	if err != nil {
		return err
	}
	return c.update(doc)
}

// Listen gathers one speech utterance.
func (c *Call) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	speech := make(chan string, 1)
	token := c.g.addWaiter(c.sid, nil, speech)
	defer c.g.takeWaiter(token)

	seconds := int(timeout.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	action := c.g.url("/twilio/gather?token=" + token)
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		Timeout:       strconv.Itoa(seconds),
		SpeechTimeout: "auto",
	}
	redirect := &twiml.VoiceRedirect{Url: action, Method: "POST"}
	doc, err := twiml.Voice([]twiml.Element{gather, redirect})
	if err != nil {
		return "", err
	}
	if err := c.update(doc); err != nil {
		return "", err
	}

	select {
	case text := <-speech:
		if text == "" {
			return "", fmt.Errorf("twilio: no speech within %s: %w", timeout, context.DeadlineExceeded)
		}
		return text, nil
	case <-c.ended:
		return "", telephony.ErrCallEnded
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Call) StartRecording(ctx context.Context, path string) error {
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(c.g.url("/twilio/recording-status"))
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("mono")
	params.SetRecordingTrack("both")

	resp, err := c.g.api.CreateCallRecording(c.sid, params)
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	rec := &recording{path: path, done: make(chan struct{})}
	if resp != nil && resp.Sid != nil {
		rec.sid = *resp.Sid
	}
	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()
	log.Printf("[twilio] call=%s recording %s -> %s", c.sid, rec.sid, path)
	return nil
}

func (c *Call) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec == nil {
		return nil
	}
	if c.State() != telephony.StateEnded && rec.sid != "" {
		params := &twilioApi.UpdateCallRecordingParams{}
		params.SetStatus("stopped")
		if _, err := c.g.api.UpdateCallRecording(c.sid, rec.sid, params); err != nil {
			log.Printf("[twilio] call=%s stop recording: %v", c.sid, err)
		}
	}

	t := time.NewTimer(c.g.config.RecordingTimeout)
	defer t.Stop()
	select {
	case <-rec.done:
		return rec.err
	case <-t.C:
		return fmt.Errorf("twilio: recording for %s not delivered within %s", c.sid, c.g.config.RecordingTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recordingReady downloads a completed recording to its requested path.
func (c *Call) recordingReady(ctx context.Context, mediaURL string) {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec == nil {
		log.Printf("[twilio] call=%s recording callback without a recording", c.sid)
		return
	}
	rec.once.Do(func() {
		rec.err = c.g.download(ctx, mediaURL, rec.path)
		close(rec.done)
	})
}
