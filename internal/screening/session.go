// Package screening runs automated pre-answer conversations with callers.
// Two strategies share one session model: Voice (audible dialogue with
// speech synthesis and recognition) and Silent (pre-rendered prompts
// injected into the call with the local side muted).
package screening

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/phone"
)

// NoResponse is recorded when the caller says nothing within a listen window.
const NoResponse = "no response"

// State of a screening session.
type State int

const (
	Idle State = iota
	Greeting
	WaitingName
	AskingPurpose
	WaitingPurpose
	PlayingGreeting
	WaitingResponse
	PlayingGoodbye
	Completed
	Error
)

var stateNames = [...]string{
	Idle:            "idle",
	Greeting:        "greeting",
	WaitingName:     "waiting_name",
	AskingPurpose:   "asking_purpose",
	WaitingPurpose:  "waiting_purpose",
	PlayingGreeting: "playing_greeting",
	WaitingResponse: "waiting_response",
	PlayingGoodbye:  "playing_goodbye",
	Completed:       "completed",
	Error:           "error",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Completed || s == Error }

// transitions lists the natural edges. Error is reachable from any
// non-terminal state, and Completed from any non-terminal state when the
// remote party hangs up.
var transitions = map[State][]State{
	Idle:            {Greeting, PlayingGreeting},
	Greeting:        {WaitingName},
	WaitingName:     {AskingPurpose},
	AskingPurpose:   {WaitingPurpose},
	WaitingPurpose:  {Completed},
	PlayingGreeting: {WaitingResponse},
	WaitingResponse: {PlayingGoodbye},
	PlayingGoodbye:  {Completed},
}

// Session is the state of one screened call. It is owned by the Runner that
// created it; other goroutines only read snapshots.
type Session struct {
	ID        string
	CallID    string
	Number    phone.Number
	Strategy  string
	StartedAt time.Time
	// ResponseWindow overrides the silent strategy's recording window.
	ResponseWindow time.Duration

	bus *events.Bus

	mu            sync.Mutex
	state         State
	callerName    string
	callerPurpose string
	hungUp        bool
	err           error
}

// NewSession creates an Idle session.
func NewSession(callID string, number phone.Number, strategy string, bus *events.Bus) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CallID:    callID,
		Number:    number,
		Strategy:  strategy,
		StartedAt: time.Now(),
		bus:       bus,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	from := s.state
	allowed := false
	for _, next := range transitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		s.mu.Unlock()
		return fmt.Errorf("screening: invalid transition %s -> %s", from, to)
	}
	s.state = to
	s.mu.Unlock()
	s.publish(from, to)
	return nil
}

// fail moves a non-terminal session to Error.
func (s *Session) fail(err error) {
	s.mu.Lock()
	from := s.state
	if from.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = Error
	s.err = err
	s.mu.Unlock()
	s.publish(from, Error)
}

// completeHungUp ends a non-terminal session because the caller left.
func (s *Session) completeHungUp() {
	s.mu.Lock()
	from := s.state
	if from.Terminal() {
		s.mu.Unlock()
		return
	}
	s.hungUp = true
	s.state = Completed
	s.mu.Unlock()
	s.publish(from, Completed)
}

func (s *Session) setCallerName(v string) {
	s.mu.Lock()
	s.callerName = v
	s.mu.Unlock()
}

func (s *Session) setCallerPurpose(v string) {
	s.mu.Lock()
	s.callerPurpose = v
	s.mu.Unlock()
}

func (s *Session) publish(from, to State) {
	s.bus.Publish(events.StateChanged{CallID: s.CallID, From: from.String(), To: to.String()})
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID            string
	CallID        string
	Number        phone.Number
	Strategy      string
	StartedAt     time.Time
	State         State
	CallerName    string
	CallerPurpose string
	HungUp        bool
	Err           error
}

// Snapshot copies the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.ID,
		CallID:        s.CallID,
		Number:        s.Number,
		Strategy:      s.Strategy,
		StartedAt:     s.StartedAt,
		State:         s.state,
		CallerName:    s.callerName,
		CallerPurpose: s.callerPurpose,
		HungUp:        s.hungUp,
		Err:           s.err,
	}
}
