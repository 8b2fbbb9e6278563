// Package session drives the invisibility cloak: it owns the background
// reference and runs the blocking read, composite, deliver loop.
//
// All image work happens on the goroutine that calls Step or Run. Other
// goroutines (web handlers, the recapture schedule, key handlers) only
// raise request flags, which the loop services between frames, so the
// background is never replaced while a frame is being composited.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/teslashibe/go-cloak/internal/log"
	"github.com/teslashibe/go-cloak/pkg/background"
	"github.com/teslashibe/go-cloak/pkg/camera"
	"github.com/teslashibe/go-cloak/pkg/cloak"
	"github.com/teslashibe/go-cloak/pkg/compositor"
	"github.com/teslashibe/go-cloak/pkg/debug"
	"github.com/teslashibe/go-cloak/pkg/snapshot"
	"gocv.io/x/gocv"
)

// Session ties a camera, an estimator and a compositor together.
type Session struct {
	id   string
	cfg  Config
	src  camera.Source
	est  *background.Estimator
	comp *compositor.Compositor
	spec cloak.ColorSpec

	ref        atomic.Pointer[background.Reference]
	recapture  atomic.Bool
	screenshot atomic.Bool

	// recaptureAt is the armed recapture deadline in unix nanoseconds,
	// 0 when none is pending. Only the loop goroutine writes it.
	recaptureAt atomic.Int64
	now         func() time.Time

	frame    gocv.Mat
	mirrored gocv.Mat
	out      gocv.Mat

	sched *cron.Cron

	mu    sync.Mutex
	stats Stats

	// OnFrame receives every composited frame. The Mat is reused on the
	// next step, so copy it to keep it. Returning ErrStopped ends Run.
	OnFrame func(out gocv.Mat) error

	// OnScreenshot is called with the path of every saved screenshot.
	OnScreenshot func(path string)

	// OnBackground is called after every successful (re)capture.
	OnBackground func(ref *background.Reference)
}

// New creates a session. The caller keeps ownership of src and must
// close it after the session is closed.
func New(src camera.Source, est *background.Estimator, comp *compositor.Compositor, spec cloak.ColorSpec, cfg Config) (*Session, error) {
	if src == nil || est == nil || comp == nil {
		return nil, errors.New("session: source, estimator and compositor are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		src:      src,
		est:      est,
		comp:     comp,
		spec:     spec,
		now:      time.Now,
		frame:    gocv.NewMat(),
		mirrored: gocv.NewMat(),
		out:      gocv.NewMat(),
	}
	s.stats = Stats{
		ID:        s.id,
		Color:     spec.Name(),
		StartedAt: time.Now(),
		LastDrift: -1,
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Spec returns the active colour spec.
func (s *Session) Spec() cloak.ColorSpec {
	return s.spec
}

// Reference returns the active background, or nil before the first capture.
func (s *Session) Reference() *background.Reference {
	return s.ref.Load()
}

// CaptureBackground reads a new background and swaps it in. On failure
// the previous background, if any, stays active and the error is returned.
// Must be called from the loop goroutine (or before Run starts).
func (s *Session) CaptureBackground() error {
	ref, err := s.est.Capture(s.src)
	if err != nil {
		s.mu.Lock()
		s.stats.FailedRecaptures++
		s.mu.Unlock()
		return fmt.Errorf("capture background: %w", err)
	}

	old := s.ref.Swap(ref)

	drift := -1
	if old != nil {
		if d, err := old.Drift(ref); err == nil {
			drift = d
		}
		old.Close()
		log.Info("background recaptured", "session", s.id, "drift", drift)
	}

	s.mu.Lock()
	if old != nil {
		s.stats.Recaptures++
	}
	s.stats.LastDrift = drift
	s.stats.BackgroundAt = ref.CapturedAt()
	s.stats.BackgroundFrames = ref.Frames()
	s.mu.Unlock()

	if s.OnBackground != nil {
		s.OnBackground(ref)
	}
	return nil
}

// RequestRecapture asks the loop to recapture the background once
// RecaptureDelay has passed. Safe to call from any goroutine; it never
// blocks. A request made while one is already armed is absorbed by it.
func (s *Session) RequestRecapture() {
	s.recapture.Store(true)
}

// RequestScreenshot asks the loop to save the next output frame.
// Safe to call from any goroutine.
func (s *Session) RequestScreenshot() {
	s.screenshot.Store(true)
}

// Step services pending requests, reads one frame, composites it and
// delivers the result to OnFrame.
func (s *Session) Step() error {
	s.serviceRecapture()

	ref := s.ref.Load()
	if ref == nil {
		return ErrNoReference
	}

	if err := s.src.Read(&s.frame); err != nil {
		n := s.noteReadFailure()
		if n >= s.cfg.MaxReadFailures {
			return fmt.Errorf("%w: %d consecutive read failures: %v", ErrDeviceLost, n, err)
		}
		return err
	}

	live := s.frame
	if s.cfg.Mirror {
		camera.Mirror(s.frame, &s.mirrored)
		live = s.mirrored
	}

	if err := s.comp.Composite(live, ref.Mat(), s.spec, &s.out); err != nil {
		return err
	}
	frames := s.noteFrame(s.comp.Coverage())
	debug.Sampled(int(frames), 30, "🎭 frame %d coverage %.1f%%\n", frames, s.comp.Coverage()*100)

	if s.screenshot.CompareAndSwap(true, false) {
		s.saveScreenshot()
	}

	if s.OnFrame != nil {
		return s.OnFrame(s.out)
	}
	return nil
}

// Run loops Step until ctx is cancelled, OnFrame returns ErrStopped, a
// video file ends, or a fatal error occurs. Single read failures are retried on the next tick;
// MaxReadFailures in a row end the session with ErrDeviceLost.
func (s *Session) Run(ctx context.Context) error {
	if s.ref.Load() == nil {
		return ErrNoReference
	}

	log.Info("session started", "session", s.id, "color", s.spec.Name())
	defer log.Info("session ended", "session", s.id)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := s.Step()
		switch {
		case err == nil:
		case errors.Is(err, ErrStopped), errors.Is(err, camera.ErrEndOfStream):
			return nil
		case errors.Is(err, ErrDeviceLost):
			return err
		case errors.Is(err, camera.ErrReadFailed):
			log.Warn("frame read failed", "session", s.id, "error", err)
		default:
			return err
		}
	}
}

// StartSchedule starts periodic recapture requests if a schedule is set.
func (s *Session) StartSchedule() error {
	if s.cfg.RecaptureSchedule == "" || s.sched != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.RecaptureSchedule, s.RequestRecapture); err != nil {
		return fmt.Errorf("session: schedule recapture: %w", err)
	}
	c.Start()
	s.sched = c
	log.Info("scheduled background recapture", "session", s.id, "schedule", s.cfg.RecaptureSchedule)
	return nil
}

// Stats returns a copy of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()

	st.RecapturePending = s.recapture.Load() || s.recaptureAt.Load() != 0
	if at := s.recaptureAt.Load(); at != 0 {
		st.RecaptureAt = time.Unix(0, at)
	}
	st.ScreenshotPending = s.screenshot.Load()
	if elapsed := time.Since(st.StartedAt).Seconds(); elapsed > 0 {
		st.FPS = float64(st.Frames) / elapsed
	}
	return st
}

// Close stops the schedule and releases the background and buffers.
// It does not close the camera.
func (s *Session) Close() error {
	if s.sched != nil {
		<-s.sched.Stop().Done()
		s.sched = nil
	}
	if ref := s.ref.Swap(nil); ref != nil {
		ref.Close()
	}
	s.frame.Close()
	s.mirrored.Close()
	s.out.Close()
	return nil
}

// serviceRecapture arms a pending request and captures once the deadline
// has passed.
func (s *Session) serviceRecapture() {
	now := s.now()
	if s.recapture.CompareAndSwap(true, false) && s.recaptureAt.Load() == 0 {
		at := now.Add(s.cfg.RecaptureDelay)
		s.recaptureAt.Store(at.UnixNano())
		if s.cfg.RecaptureDelay > 0 {
			log.Info("background recapture armed", "session", s.id, "in", s.cfg.RecaptureDelay)
		}
	}

	at := s.recaptureAt.Load()
	if at == 0 || now.UnixNano() < at {
		return
	}
	s.recaptureAt.Store(0)
	if err := s.CaptureBackground(); err != nil {
		log.Warn("recapture failed, keeping previous background", "session", s.id, "error", err)
	}
}

func (s *Session) saveScreenshot() {
	path, err := snapshot.Save(s.cfg.ScreenshotDir, s.out, s.cfg.JPEGQuality)
	if err != nil {
		log.Error("screenshot failed", "session", s.id, "error", err)
		return
	}

	s.mu.Lock()
	s.stats.Screenshots++
	s.stats.LastScreenshot = path
	s.mu.Unlock()

	log.Info("screenshot saved", "session", s.id, "path", path)
	if s.OnScreenshot != nil {
		s.OnScreenshot(path)
	}
}

func (s *Session) noteReadFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ReadFailures++
	s.stats.ConsecutiveFailures++
	return s.stats.ConsecutiveFailures
}

func (s *Session) noteFrame(coverage float64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Frames++
	s.stats.ConsecutiveFailures = 0
	s.stats.Coverage = coverage
	return s.stats.Frames
}
