// Package triage decides what happens to each incoming call: nothing for
// trusted numbers, a spam classification, or a full screening session.
package triage

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chadiek/callscreen/internal/classify"
	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/directory"
	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/metrics"
	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/screening"
	"github.com/chadiek/callscreen/internal/spamcache"
	"github.com/chadiek/callscreen/internal/telephony"
)

// ErrSessionActive is returned when a screening session is already running.
var ErrSessionActive = errors.New("triage: a screening session is already active")

const (
	lookupTimeout   = 2 * time.Second
	classifyTimeout = 2 * time.Minute
)

// Decision is the action taken for a ringing call.
type Decision int

const (
	// None means no feature is enabled for the call.
	None Decision = iota
	// Ignore means the caller is a trusted contact.
	Ignore
	ClassifyOnly
	Screen
)

func (d Decision) String() string {
	switch d {
	case Ignore:
		return "ignore"
	case ClassifyOnly:
		return "classify"
	case Screen:
		return "screen"
	}
	return "none"
}

// Classifier labels a phone number.
type Classifier interface {
	ClassifyNumber(ctx context.Context, number phone.Number) (classify.Result, error)
}

// Deps are the collaborators of an Engine. Directory, Classifier and the
// strategies are optional.
type Deps struct {
	Settings   config.SettingsSource
	Directory  directory.Lookup
	Cache      spamcache.Cache
	Classifier Classifier
	Runner     *screening.Runner
	Strategies map[config.ScreeningMode]screening.Strategy
	Bus        *events.Bus
}

// Engine handles call events. HandleCallEvent returns without waiting on
// the network; classification and screening run on background goroutines.
type Engine struct {
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active  atomic.Bool
	mu      sync.Mutex
	current *screening.Session
}

// New returns an Engine.
func New(d Deps) *Engine {
	if d.Runner == nil {
		d.Runner = &screening.Runner{Bus: d.Bus}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{deps: d, ctx: ctx, cancel: cancel}
}

// HandleCallEvent triages a call event. Only ringing events start work.
func (e *Engine) HandleCallEvent(ev telephony.CallEvent, call telephony.Call) Decision {
	if ev.State != telephony.StateRinging {
		return None
	}
	number := phone.Normalize(ev.Remote)
	s := e.deps.Settings.Current()

	known, name := e.lookup(number)
	e.deps.Bus.Publish(events.CallRinging{CallID: ev.CallID, Number: number, Known: known, Name: name})

	d := e.decide(s, known)
	switch d {
	case Screen:
		if err := e.StartScreening(call, number, s); err != nil {
			log.Printf("[triage] call=%s screening not started: %v", ev.CallID, err)
			d = ClassifyOnly
		}
		e.classifyAsync(ev.CallID, number)
	case ClassifyOnly:
		e.classifyAsync(ev.CallID, number)
	}
	metrics.TriageDecisions.WithLabelValues(d.String()).Inc()
	log.Printf("[triage] call=%s number=%s known=%v decision=%s", ev.CallID, number, known, d)
	return d
}

func (e *Engine) decide(s config.Settings, known bool) Decision {
	switch {
	case known && !s.TestMode:
		return Ignore
	case s.Screening:
		return Screen
	case s.SpamDetection:
		return ClassifyOnly
	}
	return None
}

func (e *Engine) lookup(number phone.Number) (bool, string) {
	if e.deps.Directory == nil || !number.Valid() {
		return false, ""
	}
	ctx, cancel := context.WithTimeout(e.ctx, lookupTimeout)
	defer cancel()
	known, err := e.deps.Directory.IsKnown(ctx, number)
	if err != nil {
		log.Printf("[triage] directory lookup %s: %v", number, err)
		return false, ""
	}
	if !known {
		return false, ""
	}
	name, _, err := e.deps.Directory.DisplayName(ctx, number)
	if err != nil {
		log.Printf("[triage] display name %s: %v", number, err)
	}
	return true, name
}

// StartScreening launches a screening session for call using the strategy
// selected by s. Only one session runs at a time.
func (e *Engine) StartScreening(call telephony.Call, number phone.Number, s config.Settings) error {
	st := e.deps.Strategies[s.Mode]
	if st == nil {
		return errors.New("triage: no strategy for mode " + string(s.Mode))
	}
	if !e.active.CompareAndSwap(false, true) {
		return ErrSessionActive
	}
	sess := screening.NewSession(call.ID(), number, st.Name(), e.deps.Bus)
	sess.ResponseWindow = s.ScreeningDuration()
	e.mu.Lock()
	e.current = sess
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			e.current = nil
			e.mu.Unlock()
			e.active.Store(false)
		}()
		snap := e.deps.Runner.Run(e.ctx, st, call, sess)
		e.release(call, snap)
	}()
	return nil
}

// release hands a call back to normal delivery after a failed session.
func (e *Engine) release(call telephony.Call, snap screening.Snapshot) {
	if snap.State != screening.Error || call.State() == telephony.StateEnded {
		return
	}
	r, ok := call.(telephony.Releaser)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), lookupTimeout)
	defer cancel()
	if err := r.Release(ctx); err != nil {
		log.Printf("[triage] release call=%s: %v", call.ID(), err)
	}
}

// Active returns the running session, if any.
func (e *Engine) Active() (screening.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return screening.Snapshot{}, false
	}
	return e.current.Snapshot(), true
}

func (e *Engine) classifyAsync(callID string, number phone.Number) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, classifyTimeout)
		defer cancel()
		e.Classify(ctx, callID, number)
	}()
}

// Classify returns the cached record for number or asks the classifier.
// Errors degrade to a not-spam record that is published but never cached.
func (e *Engine) Classify(ctx context.Context, callID string, number phone.Number) models.ClassificationRecord {
	if e.deps.Cache != nil {
		if rec, ok := e.deps.Cache.Get(ctx, number); ok {
			e.deps.Bus.Publish(events.Classified{CallID: callID, Record: rec, Cached: true})
			return rec
		}
	}

	var (
		res classify.Result
		err error
	)
	if e.deps.Classifier == nil {
		err = errors.New("classification service not configured")
	} else {
		res, err = e.deps.Classifier.ClassifyNumber(ctx, number)
	}
	if err != nil {
		log.Printf("[triage] classify %s failed: %v", number, err)
		rec := models.ClassificationRecord{
			PhoneNumber: number,
			Reason:      err.Error(),
			ObservedAt:  time.Now(),
		}
		e.deps.Bus.Publish(events.Classified{CallID: callID, Record: rec, Fallback: true})
		return rec
	}

	rec := models.ClassificationRecord{
		PhoneNumber: number,
		IsSpam:      res.IsSpam,
		Confidence:  res.Confidence,
		Reason:      res.Reason,
		ObservedAt:  time.Now(),
	}
	if e.deps.Cache != nil {
		if err := e.deps.Cache.Put(ctx, rec); err != nil {
			log.Printf("[triage] cache %s: %v", number, err)
		}
	}
	e.deps.Bus.Publish(events.Classified{CallID: callID, Record: rec})
	return rec
}

// Wait blocks until background work has finished.
func (e *Engine) Wait() { e.wg.Wait() }

// Close cancels background work and waits for it.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}
