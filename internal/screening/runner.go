package screening

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/metrics"
	"github.com/chadiek/callscreen/internal/telephony"
)

// DefaultMonitorInterval is how often the runner polls for a remote hangup.
const DefaultMonitorInterval = 500 * time.Millisecond

var errRemoteHangup = errors.New("screening: remote hangup")

// Strategy is one way of conducting a screening conversation.
type Strategy interface {
	Name() string
	// Prepare runs before the call is answered; an error leaves it ringing.
	Prepare(ctx context.Context) error
	// Route configures local audio right after the call is answered.
	Route(ctx context.Context, call telephony.Call) error
	// Converse drives sess from Idle to Completed. It must return promptly
	// once ctx is cancelled.
	Converse(ctx context.Context, call telephony.Call, sess *Session) error
}

// Recorder captures the call for the duration of a session.
type Recorder interface {
	// Start begins recording and returns a handle for Finish.
	Start(ctx context.Context, call telephony.Call, snap Snapshot) (string, error)
	// Finish stops recording. It must not block on post-processing.
	Finish(ctx context.Context, call telephony.Call, handle string, snap Snapshot)
}

// Runner executes strategies against calls: it answers, routes audio,
// records, watches for hangups and publishes the outcome.
type Runner struct {
	Bus *events.Bus
	// Recorder is optional; nil disables recording.
	Recorder        Recorder
	MonitorInterval time.Duration
}

// Run drives one session to a terminal state and returns its final snapshot.
func (r *Runner) Run(ctx context.Context, st Strategy, call telephony.Call, sess *Session) Snapshot {
	r.Bus.Publish(events.ScreeningStarted{
		CallID:    sess.CallID,
		Number:    sess.Number,
		Strategy:  sess.Strategy,
		StartedAt: sess.StartedAt,
	})
	log.Printf("[screening] start call=%s number=%s strategy=%s", sess.CallID, sess.Number, st.Name())

	snap := r.run(ctx, st, call, sess)

	outcome := snap.State.String()
	if snap.HungUp {
		outcome = "hung_up"
	}
	metrics.ScreeningSessions.WithLabelValues(st.Name(), outcome).Inc()

	ev := events.ScreeningCompleted{
		CallID:        snap.CallID,
		Number:        snap.Number,
		Strategy:      snap.Strategy,
		State:         snap.State.String(),
		CallerName:    snap.CallerName,
		CallerPurpose: snap.CallerPurpose,
		HungUp:        snap.HungUp,
	}
	if snap.Err != nil {
		ev.Err = snap.Err.Error()
		log.Printf("[screening] call=%s ended in error: %v", sess.CallID, snap.Err)
	} else {
		log.Printf("[screening] done call=%s state=%s hung_up=%v", sess.CallID, snap.State, snap.HungUp)
	}
	r.Bus.Publish(ev)
	return snap
}

func (r *Runner) run(ctx context.Context, st Strategy, call telephony.Call, sess *Session) Snapshot {
	if err := st.Prepare(ctx); err != nil {
		sess.fail(err)
		return sess.Snapshot()
	}
	if err := call.Accept(ctx); err != nil {
		sess.fail(err)
		return sess.Snapshot()
	}
	if err := st.Route(ctx, call); err != nil {
		sess.fail(err)
		return sess.Snapshot()
	}

	var handle string
	recording := false
	if r.Recorder != nil {
		h, err := r.Recorder.Start(ctx, call, sess.Snapshot())
		if err != nil {
			sess.fail(err)
			return sess.Snapshot()
		}
		handle, recording = h, true
	}

	convCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchHangup(convCtx, call, r.interval(), cancel)
	}()

	err := st.Converse(convCtx, call, sess)
	cancelled := errors.Is(context.Cause(convCtx), errRemoteHangup)
	cancel(nil)
	wg.Wait()

	switch {
	case err == nil && sess.State() == Completed:
		// Finished on its own; a call ended by the strategy is not a hangup.
	case cancelled || call.State() == telephony.StateEnded:
		if perr := call.StopPlayback(context.WithoutCancel(ctx)); perr != nil {
			log.Printf("[screening] call=%s stop playback: %v", sess.CallID, perr)
		}
		sess.completeHungUp()
	case err != nil:
		sess.fail(err)
	case !sess.State().Terminal():
		sess.fail(errors.New("screening: strategy returned before completion"))
	}

	snap := sess.Snapshot()
	if recording {
		r.Recorder.Finish(context.WithoutCancel(ctx), call, handle, snap)
	}
	return snap
}

func (r *Runner) interval() time.Duration {
	if r.MonitorInterval > 0 {
		return r.MonitorInterval
	}
	return DefaultMonitorInterval
}

// watchHangup polls the call and cancels the conversation once it ends.
func watchHangup(ctx context.Context, call telephony.Call, every time.Duration, cancel context.CancelCauseFunc) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if call.State() == telephony.StateEnded {
				cancel(errRemoteHangup)
				return
			}
		}
	}
}

// awaitCompletion waits for done, treating a timeout as a natural finish.
func awaitCompletion(ctx context.Context, done <-chan struct{}, timeout time.Duration, what string) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		log.Printf("[screening] %s did not report completion within %s", what, timeout)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// completion returns a callback that closes the channel exactly once.
func completion() (func(), <-chan struct{}) {
	done := make(chan struct{})
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, done
}
