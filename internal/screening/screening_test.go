package screening

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/telephony"
)

type fakeCall struct {
	mu           sync.Mutex
	state        telephony.CallState
	accepted     bool
	terminated   bool
	muted        bool
	output       telephony.OutputKind
	plays        []string
	stops        int
	autoComplete bool
	playStarted  chan string
	// terminateLag delays Terminate's return after the call is marked ended.
	terminateLag time.Duration
}

func newFakeCall() *fakeCall {
	return &fakeCall{autoComplete: true, playStarted: make(chan string, 8)}
}

func (c *fakeCall) ID() string           { return "CA1" }
func (c *fakeCall) Remote() phone.Number { return "+15550001111" }

func (c *fakeCall) State() telephony.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeCall) hangUp() {
	c.mu.Lock()
	c.state = telephony.StateEnded
	c.mu.Unlock()
}

func (c *fakeCall) Accept(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted = true
	c.state = telephony.StateActive
	return nil
}

func (c *fakeCall) Terminate(ctx context.Context) error {
	c.mu.Lock()
	c.terminated = true
	c.state = telephony.StateEnded
	lag := c.terminateLag
	c.mu.Unlock()
	time.Sleep(lag)
	return nil
}

func (c *fakeCall) SetMicrophoneMuted(ctx context.Context, muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	return nil
}

func (c *fakeCall) SetOutputDevice(ctx context.Context, kind telephony.OutputKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = kind
	return nil
}

func (c *fakeCall) StartRecording(ctx context.Context, path string) error { return nil }
func (c *fakeCall) StopRecording(ctx context.Context) error               { return nil }

func (c *fakeCall) PlayFile(ctx context.Context, path string, onComplete func()) error {
	c.mu.Lock()
	c.plays = append(c.plays, filepath.Base(path))
	auto := c.autoComplete
	c.mu.Unlock()
	c.playStarted <- filepath.Base(path)
	if auto {
		go onComplete()
	}
	return nil
}

func (c *fakeCall) StopPlayback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

type fakeSpeaker struct {
	mu     sync.Mutex
	said   []string
	onSay  func(n int)
	silent bool
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string, onComplete func()) error {
	s.mu.Lock()
	s.said = append(s.said, text)
	n := len(s.said)
	s.mu.Unlock()
	if s.onSay != nil {
		s.onSay(n)
	}
	if !s.silent {
		onComplete()
	}
	return nil
}

// scriptedListener answers each Listen call from replies; an empty reply
// blocks until the listen window closes.
type scriptedListener struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (l *scriptedListener) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	l.mu.Lock()
	var reply string
	if l.calls < len(l.replies) {
		reply = l.replies[l.calls]
	}
	l.calls++
	l.mu.Unlock()
	if reply == "" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, nil
}

type refinerFunc func(ctx context.Context, prompt string) (string, error)

func (f refinerFunc) Complete(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

type fakeRecorder struct {
	mu       sync.Mutex
	started  int
	finished []Snapshot
}

func (r *fakeRecorder) Start(ctx context.Context, call telephony.Call, snap Snapshot) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return "rec-1", nil
}

func (r *fakeRecorder) Finish(ctx context.Context, call telephony.Call, handle string, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, snap)
}

func collectStates(t *testing.T, bus *events.Bus) func() []string {
	t.Helper()
	ch, cancel := bus.Subscribe(64)
	return func() []string {
		cancel()
		var out []string
		for ev := range ch {
			if sc, ok := ev.(events.StateChanged); ok {
				out = append(out, sc.To)
			}
		}
		return out
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestVoiceSilentCallerCompletesWithPlaceholders(t *testing.T) {
	bus := events.NewBus()
	states := collectStates(t, bus)

	v := NewVoice(&fakeSpeaker{}, &scriptedListener{}, nil)
	v.ListenTimeout = 20 * time.Millisecond
	call := newFakeCall()
	sess := NewSession(call.ID(), call.Remote(), v.Name(), bus)

	r := &Runner{Bus: bus, MonitorInterval: 5 * time.Millisecond}
	snap := r.Run(context.Background(), v, call, sess)

	if snap.State != Completed {
		t.Fatalf("state = %s, want completed (err=%v)", snap.State, snap.Err)
	}
	if snap.CallerName != NoResponse || snap.CallerPurpose != NoResponse {
		t.Fatalf("captured = (%q, %q), want placeholders", snap.CallerName, snap.CallerPurpose)
	}
	want := []string{"greeting", "waiting_name", "asking_purpose", "waiting_purpose", "completed"}
	if got := states(); !equalStrings(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if call.muted || call.output != telephony.OutputSpeaker {
		t.Fatalf("routing = muted:%v output:%s", call.muted, call.output)
	}
}

func TestVoiceNoNameThenPurpose(t *testing.T) {
	bus := events.NewBus()
	call := newFakeCall()
	var sess *Session
	var nameWhenAsked string
	speaker := &fakeSpeaker{onSay: func(n int) {
		if n == 2 {
			snap := sess.Snapshot()
			if snap.State == AskingPurpose {
				nameWhenAsked = snap.CallerName
			}
		}
	}}
	v := NewVoice(speaker, &scriptedListener{replies: []string{"", "  Selling insurance  "}}, nil)
	v.ListenTimeout = 20 * time.Millisecond
	sess = NewSession(call.ID(), call.Remote(), v.Name(), bus)

	snap := (&Runner{Bus: bus}).Run(context.Background(), v, call, sess)

	if nameWhenAsked != NoResponse {
		t.Fatalf("name while asking purpose = %q, want %q", nameWhenAsked, NoResponse)
	}
	if snap.State != Completed || snap.CallerName != NoResponse || snap.CallerPurpose != "Selling insurance" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestVoiceRefiner(t *testing.T) {
	cases := []struct {
		name    string
		refiner Refiner
		want    string
	}{
		{"refined", refinerFunc(func(ctx context.Context, p string) (string, error) { return `"Bob Smith"`, nil }), "Bob Smith"},
		{"error keeps raw", refinerFunc(func(ctx context.Context, p string) (string, error) { return "", errors.New("down") }), "its bob smith"},
		{"empty keeps raw", refinerFunc(func(ctx context.Context, p string) (string, error) { return "  ", nil }), "its bob smith"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewVoice(&fakeSpeaker{}, &scriptedListener{replies: []string{"its bob smith", "a delivery"}}, tc.refiner)
			call := newFakeCall()
			sess := NewSession(call.ID(), call.Remote(), v.Name(), nil)
			snap := (&Runner{}).Run(context.Background(), v, call, sess)
			if snap.CallerName != tc.want {
				t.Fatalf("name = %q, want %q", snap.CallerName, tc.want)
			}
		})
	}
}

func TestVoiceSpeechTimeoutProceeds(t *testing.T) {
	v := NewVoice(&fakeSpeaker{silent: true}, &scriptedListener{replies: []string{"Ann", "hello"}}, nil)
	v.SpeakTimeout = 10 * time.Millisecond
	call := newFakeCall()
	sess := NewSession(call.ID(), call.Remote(), v.Name(), nil)
	snap := (&Runner{}).Run(context.Background(), v, call, sess)
	if snap.State != Completed || snap.CallerName != "Ann" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func writePrompts(t *testing.T) *PromptCache {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{PromptGreeting, PromptGoodbye} {
		if err := os.WriteFile(filepath.Join(dir, name+".wav"), []byte("RIFF"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return NewPromptCache(dir, nil)
}

func TestSilentFullFlow(t *testing.T) {
	bus := events.NewBus()
	states := collectStates(t, bus)
	s := NewSilent(writePrompts(t))
	call := newFakeCall()
	sess := NewSession(call.ID(), call.Remote(), s.Name(), bus)
	sess.ResponseWindow = 10 * time.Millisecond
	rec := &fakeRecorder{}

	snap := (&Runner{Bus: bus, Recorder: rec, MonitorInterval: 5 * time.Millisecond}).Run(context.Background(), s, call, sess)

	if snap.State != Completed || snap.HungUp {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !call.muted || call.output != telephony.OutputNone {
		t.Fatalf("routing = muted:%v output:%s", call.muted, call.output)
	}
	if !equalStrings(call.plays, []string{"greeting.wav", "goodbye.wav"}) {
		t.Fatalf("plays = %v", call.plays)
	}
	if !call.terminated {
		t.Fatal("call not terminated after goodbye")
	}
	want := []string{"playing_greeting", "waiting_response", "playing_goodbye", "completed"}
	if got := states(); !equalStrings(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if rec.started != 1 || len(rec.finished) != 1 || rec.finished[0].State != Completed {
		t.Fatalf("recorder = started %d finished %+v", rec.started, rec.finished)
	}
}

func TestSilentHangupDuringGreeting(t *testing.T) {
	s := NewSilent(writePrompts(t))
	call := newFakeCall()
	call.autoComplete = false
	sess := NewSession(call.ID(), call.Remote(), s.Name(), nil)
	rec := &fakeRecorder{}
	r := &Runner{Recorder: rec, MonitorInterval: 5 * time.Millisecond}

	done := make(chan Snapshot, 1)
	go func() { done <- r.Run(context.Background(), s, call, sess) }()

	select {
	case <-call.playStarted:
	case <-time.After(time.Second):
		t.Fatal("greeting never started")
	}
	if st := sess.State(); st != PlayingGreeting {
		t.Fatalf("state = %s, want playing_greeting", st)
	}
	call.hangUp()

	var snap Snapshot
	select {
	case snap = <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not end after hangup")
	}
	if snap.State != Completed || !snap.HungUp {
		t.Fatalf("snapshot = %+v", snap)
	}
	if call.stops == 0 {
		t.Fatal("playback not stopped")
	}
	if len(call.plays) != 1 {
		t.Fatalf("plays = %v, want greeting only", call.plays)
	}
	if call.terminated {
		t.Fatal("terminate called on a call the remote already ended")
	}
	if len(rec.finished) != 1 || !rec.finished[0].HungUp {
		t.Fatalf("recording not finalized: %+v", rec.finished)
	}
}

func TestPrepareFailureLeavesCallUnanswered(t *testing.T) {
	s := NewSilent(NewPromptCache(t.TempDir(), nil))
	call := newFakeCall()
	sess := NewSession(call.ID(), call.Remote(), s.Name(), nil)
	snap := (&Runner{}).Run(context.Background(), s, call, sess)
	if snap.State != Error || snap.Err == nil {
		t.Fatalf("snapshot = %+v, want error", snap)
	}
	if call.accepted {
		t.Fatal("call answered despite missing prompts")
	}
}

type countingRenderer struct {
	mu    sync.Mutex
	count int
}

func (r *countingRenderer) Render(ctx context.Context, text string, w io.Writer) error {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
	_, err := io.WriteString(w, "RIFF"+text)
	return err
}

func TestPromptCacheRendersOnce(t *testing.T) {
	r := &countingRenderer{}
	p := NewPromptCache(t.TempDir(), r)
	for i := 0; i < 3; i++ {
		if _, err := p.Path(context.Background(), PromptGreeting); err != nil {
			t.Fatal(err)
		}
	}
	if r.count != 1 {
		t.Fatalf("renders = %d, want 1", r.count)
	}
	b, err := os.ReadFile(p.File(PromptGreeting))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "RIFF"+DefaultPromptTexts[PromptGreeting] {
		t.Fatalf("content = %q", b)
	}
	if _, err := p.Path(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown prompt")
	}
}

func TestSessionRejectsInvalidTransition(t *testing.T) {
	sess := NewSession("CA1", "+1", "voice", nil)
	if err := sess.transition(Completed); err == nil {
		t.Fatal("idle -> completed accepted")
	}
	if err := sess.transition(Greeting); err != nil {
		t.Fatal(err)
	}
	sess.fail(errors.New("boom"))
	if err := sess.transition(WaitingName); err == nil {
		t.Fatal("transition out of error accepted")
	}
	if sess.State() != Error {
		t.Fatalf("state = %s", sess.State())
	}
}

type talkingCall struct {
	*fakeCall
	*fakeSpeaker
	*scriptedListener
}

func TestVoiceFallsBackToCallAudio(t *testing.T) {
	speaker := &fakeSpeaker{}
	call := talkingCall{newFakeCall(), speaker, &scriptedListener{replies: []string{"Dana", "invoice"}}}
	v := NewVoice(nil, nil, nil)
	sess := NewSession(call.ID(), call.Remote(), v.Name(), nil)

	snap := (&Runner{MonitorInterval: 5 * time.Millisecond}).Run(context.Background(), v, call, sess)
	if snap.State != Completed || snap.CallerName != "Dana" || snap.CallerPurpose != "invoice" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(speaker.said) != 2 {
		t.Fatalf("prompts spoken = %d, want 2", len(speaker.said))
	}
}

func TestVoiceWithoutAudioFails(t *testing.T) {
	v := NewVoice(nil, nil, nil)
	call := newFakeCall()
	sess := NewSession(call.ID(), call.Remote(), v.Name(), nil)
	snap := (&Runner{MonitorInterval: 5 * time.Millisecond}).Run(context.Background(), v, call, sess)
	if snap.State != Error || snap.Err == nil {
		t.Fatalf("snapshot = %+v, want error", snap)
	}
}

func TestSilentOwnTerminateIsNotHangup(t *testing.T) {
	s := NewSilent(writePrompts(t))
	call := newFakeCall()
	call.terminateLag = 20 * time.Millisecond
	sess := NewSession(call.ID(), call.Remote(), s.Name(), nil)
	sess.ResponseWindow = 10 * time.Millisecond
	rec := &fakeRecorder{}

	snap := (&Runner{Recorder: rec, MonitorInterval: 5 * time.Millisecond}).Run(context.Background(), s, call, sess)
	if snap.State != Completed || snap.HungUp {
		t.Fatalf("snapshot = %+v, want completed without hangup", snap)
	}
	if len(rec.finished) != 1 || rec.finished[0].HungUp {
		t.Fatalf("recorder finished = %+v", rec.finished)
	}
}

// endingListener hangs the call up and reports it, as the telephony stack
// does when the caller leaves mid-question.
type endingListener struct{ call *fakeCall }

func (l endingListener) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	l.call.hangUp()
	return "", telephony.ErrCallEnded
}

func TestVoiceHangupBeforeMonitorTick(t *testing.T) {
	call := newFakeCall()
	v := NewVoice(&fakeSpeaker{}, endingListener{call}, nil)
	sess := NewSession(call.ID(), call.Remote(), v.Name(), nil)

	snap := (&Runner{MonitorInterval: time.Hour}).Run(context.Background(), v, call, sess)
	if snap.State != Completed || !snap.HungUp || snap.Err != nil {
		t.Fatalf("snapshot = %+v, want hung-up completion", snap)
	}
}

func TestCompleteHungUpAfterCompletion(t *testing.T) {
	sess := NewSession("CA1", "+15550001111", "silent", nil)
	for _, st := range []State{PlayingGreeting, WaitingResponse, PlayingGoodbye, Completed} {
		if err := sess.transition(st); err != nil {
			t.Fatal(err)
		}
	}
	sess.completeHungUp()
	if snap := sess.Snapshot(); snap.HungUp {
		t.Fatal("finished session marked as hung up")
	}
}
