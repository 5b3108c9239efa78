// Package telephony describes the capabilities the screening pipeline needs
// from whatever stack actually carries the call.
package telephony

import (
	"context"
	"errors"
	"time"

	"github.com/chadiek/callscreen/internal/phone"
)

// ErrCallEnded is returned by operations attempted after the call ended.
var ErrCallEnded = errors.New("telephony: call ended")

// CallState is the lifecycle of a call.
type CallState int

const (
	StateRinging CallState = iota
	StateActive
	StateEnded
)

func (s CallState) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Direction of a call.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// OutputKind selects where call audio is routed locally.
type OutputKind string

const (
	OutputEarpiece OutputKind = "earpiece"
	OutputSpeaker  OutputKind = "speaker"
	// OutputNone keeps call audio away from the local user entirely.
	OutputNone OutputKind = "none"
)

// CallEvent is a lifecycle transition reported by the stack.
type CallEvent struct {
	CallID    string
	Direction Direction
	Remote    string
	State     CallState
	At        time.Time
}

// Call is one live call. Implementations must tolerate calls from one
// goroutine at a time; State may be polled concurrently.
type Call interface {
	ID() string
	Remote() phone.Number
	State() CallState

	Accept(ctx context.Context) error
	Terminate(ctx context.Context) error
	SetMicrophoneMuted(ctx context.Context, muted bool) error
	SetOutputDevice(ctx context.Context, kind OutputKind) error

	// StartRecording records both directions into path.
	StartRecording(ctx context.Context, path string) error
	// StopRecording returns once the file at the recording path is final.
	StopRecording(ctx context.Context) error

	// PlayFile injects a pre-rendered prompt into the outbound stream.
	// onComplete fires once when playback finishes naturally.
	PlayFile(ctx context.Context, path string, onComplete func()) error
	// StopPlayback cancels any pending playback; its onComplete never fires.
	StopPlayback(ctx context.Context) error
}

// Speaker synthesizes text audibly on the call; onComplete fires when the
// synthesized utterance has finished playing.
type Speaker interface {
	Speak(ctx context.Context, text string, onComplete func()) error
}

// Listener captures the remote party's next utterance. It returns the
// recognized text, or an error wrapping context.DeadlineExceeded when
// nothing was said within the timeout.
type Listener interface {
	Listen(ctx context.Context, timeout time.Duration) (string, error)
}

// Releaser is implemented by calls that can be handed back to normal
// delivery when screening gives up on them.
type Releaser interface {
	Release(ctx context.Context) error
}
