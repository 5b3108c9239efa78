// Package recording captures screening calls to disk and enriches each
// recording with a transcription once the call is over.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/callscreen/internal/classify"
	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/metrics"
	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/screening"
	"github.com/chadiek/callscreen/internal/telephony"
)

const (
	stopTimeout       = 90 * time.Second
	transcribeTimeout = 3 * time.Minute
	archiveTimeout    = time.Minute
)

// Transcriber turns a recording into text plus a spam assessment.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, path string, number phone.Number) (classify.Transcription, error)
}

// Archiver copies a finished recording to remote storage and returns its key.
type Archiver interface {
	Archive(ctx context.Context, a models.RecordingArtifact) (string, error)
}

// ArtifactStore persists artifacts.
type ArtifactStore interface {
	InsertArtifact(ctx context.Context, a *models.RecordingArtifact) error
	UpdateArtifact(ctx context.Context, a *models.RecordingArtifact) error
	GetArtifact(ctx context.Context, id string) (models.RecordingArtifact, error)
	ListArtifacts(ctx context.Context, limit int) ([]models.RecordingArtifact, error)
	ArtifactsBefore(ctx context.Context, t time.Time) ([]models.RecordingArtifact, error)
	DeleteArtifact(ctx context.Context, id string) error
}

// Coordinator implements screening.Recorder. Post-processing runs on its own
// goroutines and never holds up the caller.
type Coordinator struct {
	Dir         string
	Store       ArtifactStore
	Transcriber Transcriber
	// Archiver is optional.
	Archiver Archiver
	Bus      *events.Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ screening.Recorder = (*Coordinator)(nil)

// NewCoordinator returns a Coordinator writing recordings under dir.
func NewCoordinator(dir string, st ArtifactStore, tr Transcriber, bus *events.Bus) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{Dir: dir, Store: st, Transcriber: tr, Bus: bus, ctx: ctx, cancel: cancel}
}

// Start begins recording the call and stores a pending artifact.
func (c *Coordinator) Start(ctx context.Context, call telephony.Call, snap screening.Snapshot) (string, error) {
	id := uuid.NewString()
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(c.Dir, fmt.Sprintf("%s_%s.wav", snap.StartedAt.UTC().Format("20060102T150405"), id[:8]))
	if err := call.StartRecording(ctx, path); err != nil {
		return "", err
	}

	a := &models.RecordingArtifact{
		ID:          id,
		CallID:      snap.CallID,
		PhoneNumber: snap.Number,
		Strategy:    snap.Strategy,
		Path:        path,
		Status:      models.ArtifactPending,
	}
	if err := c.Store.InsertArtifact(ctx, a); err != nil {
		c.abandon(ctx, call, path)
		return "", fmt.Errorf("recording: store artifact %s: %w", id, err)
	}
	c.publish(*a)
	log.Printf("[recording] started call=%s artifact=%s", snap.CallID, id)
	return id, nil
}

// abandon stops a recording that could not be tracked and drops its file.
func (c *Coordinator) abandon(ctx context.Context, call telephony.Call, path string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := call.StopRecording(stopCtx); err != nil {
		log.Printf("[recording] stop untracked recording call=%s: %v", call.ID(), err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[recording] remove %s: %v", path, err)
	}
}

// Finish stops recording in the background and queues transcription.
func (c *Coordinator) Finish(ctx context.Context, call telephony.Call, handle string, snap screening.Snapshot) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.finalize(call, handle, snap)
	}()
}

// Wait blocks until queued post-processing is done.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Close cancels queued post-processing and waits for it to stop.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) finalize(call telephony.Call, id string, snap screening.Snapshot) {
	a, err := c.Store.GetArtifact(c.ctx, id)
	if err != nil {
		log.Printf("[recording] artifact %s: %v", id, err)
		return
	}
	a.CallerName = snap.CallerName
	a.CallerPurpose = snap.CallerPurpose
	if snap.Err != nil {
		a.ErrorNote = "screening: " + snap.Err.Error()
	}

	stopCtx, cancel := context.WithTimeout(c.ctx, stopTimeout)
	stopErr := call.StopRecording(stopCtx)
	cancel()
	if stopErr != nil {
		log.Printf("[recording] stop call=%s: %v", snap.CallID, stopErr)
	}

	size, dur, err := Measure(a.Path)
	switch {
	case err != nil:
		c.fail(&a, fmt.Errorf("recording unavailable: %w", errors.Join(stopErr, err)))
		return
	case size == 0:
		c.fail(&a, errors.New("recording is empty"))
		return
	}
	a.SizeBytes = size
	a.DurationMs = dur.Milliseconds()
	a.Status = models.ArtifactProcessing
	c.save(&a)

	if c.Archiver != nil {
		actx, cancel := context.WithTimeout(c.ctx, archiveTimeout)
		key, err := c.Archiver.Archive(actx, a)
		cancel()
		if err != nil {
			log.Printf("[recording] archive %s: %v", a.ID, err)
		} else {
			a.ArchiveKey = key
		}
	}

	if c.Transcriber == nil {
		a.Status = models.ArtifactCompleted
		c.save(&a)
		return
	}
	tctx, cancel := context.WithTimeout(c.ctx, transcribeTimeout)
	tr, err := c.Transcriber.TranscribeAudio(tctx, a.Path, a.PhoneNumber)
	cancel()
	if err != nil {
		metrics.Transcriptions.WithLabelValues("error").Inc()
		c.fail(&a, fmt.Errorf("transcription: %w", err))
		return
	}
	metrics.Transcriptions.WithLabelValues("ok").Inc()
	a.Transcription = tr.Text
	a.Summary = tr.Summary
	a.IsSpam = tr.IsSpam
	a.SpamConfidence = tr.SpamConfidence
	a.Status = models.ArtifactCompleted
	c.save(&a)
	log.Printf("[recording] artifact %s transcribed (%d ms, spam=%v)", a.ID, a.DurationMs, a.IsSpam)
}

func (c *Coordinator) fail(a *models.RecordingArtifact, err error) {
	log.Printf("[recording] artifact %s failed: %v", a.ID, err)
	a.Status = models.ArtifactFailed
	if a.ErrorNote != "" {
		a.ErrorNote += "; "
	}
	a.ErrorNote += err.Error()
	c.save(a)
}

func (c *Coordinator) save(a *models.RecordingArtifact) {
	if err := c.Store.UpdateArtifact(context.WithoutCancel(c.ctx), a); err != nil {
		log.Printf("[recording] update artifact %s: %v", a.ID, err)
	}
	c.publish(*a)
}

func (c *Coordinator) publish(a models.RecordingArtifact) {
	c.Bus.Publish(events.ArtifactUpdated{Artifact: a})
}

// Delete removes an artifact and its file.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	a, err := c.Store.GetArtifact(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", a.Path, err)
	}
	return c.Store.DeleteArtifact(ctx, id)
}

// List returns the most recent artifacts, newest first.
func (c *Coordinator) List(ctx context.Context, limit int) ([]models.RecordingArtifact, error) {
	return c.Store.ListArtifacts(ctx, limit)
}

// Get returns one artifact.
func (c *Coordinator) Get(ctx context.Context, id string) (models.RecordingArtifact, error) {
	return c.Store.GetArtifact(ctx, id)
}
