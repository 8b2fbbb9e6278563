// Package background estimates a static background from a run of frames.
//
// Each pixel of the estimate is the median of that pixel across the run,
// so anything present in fewer than half the frames does not show up.
package background

import (
	"fmt"

	"github.com/teslashibe/go-cloak/internal/log"
	"github.com/teslashibe/go-cloak/pkg/camera"
	"gocv.io/x/gocv"
)

// Config controls background capture.
type Config struct {
	// Frames is how many consecutive frames are read. At least 30 keeps
	// the estimate stable against sensor noise and flicker.
	Frames int

	// Mirror flips each frame horizontally to match the live display.
	Mirror bool
}

// DefaultConfig returns 30 mirrored frames.
func DefaultConfig() Config {
	return Config{
		Frames: 30,
		Mirror: true,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Frames < 1 {
		return fmt.Errorf("background: frames must be >= 1, got %d", c.Frames)
	}
	return nil
}

// Estimator captures reference images from a camera.
type Estimator struct {
	cfg Config

	// OnProgress, if set, is called after every read attempt.
	OnProgress func(read, total int)
}

// NewEstimator creates an estimator.
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg}, nil
}

// Config returns the estimator configuration.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Capture reads the configured number of frames from src and returns
// their median. Failed reads and frames that do not match the first
// accepted frame are skipped. If nothing usable was read it returns
// ErrCaptureFailed.
func (e *Estimator) Capture(src camera.Source) (*Reference, error) {
	frame := gocv.NewMat()
	defer frame.Close()

	frames := make([]gocv.Mat, 0, e.cfg.Frames)
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	var failed, skipped int
	for i := 0; i < e.cfg.Frames; i++ {
		if err := src.Read(&frame); err != nil {
			failed++
			log.Debug("background read failed", "frame", i, "error", err)
			e.progress(i + 1)
			continue
		}

		kept := gocv.NewMat()
		if e.cfg.Mirror {
			camera.Mirror(frame, &kept)
		} else {
			frame.CopyTo(&kept)
		}

		if len(frames) > 0 && !sameShape(frames[0], kept) {
			skipped++
			log.Warn("background frame skipped: size changed mid-capture",
				"frame", i,
				"want", fmt.Sprintf("%dx%d", frames[0].Cols(), frames[0].Rows()),
				"got", fmt.Sprintf("%dx%d", kept.Cols(), kept.Rows()))
			kept.Close()
			e.progress(i + 1)
			continue
		}

		frames = append(frames, kept)
		e.progress(i + 1)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: 0 of %d frames read", ErrCaptureFailed, e.cfg.Frames)
	}

	median, err := Median(frames)
	if err != nil {
		median.Close()
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	log.Info("background captured",
		"frames", len(frames),
		"failed", failed,
		"skipped", skipped,
		"size", fmt.Sprintf("%dx%d", median.Cols(), median.Rows()))

	return NewReference(median, len(frames)), nil
}

func (e *Estimator) progress(n int) {
	if e.OnProgress != nil {
		e.OnProgress(n, e.cfg.Frames)
	}
}

func sameShape(a, b gocv.Mat) bool {
	return a.Rows() == b.Rows() && a.Cols() == b.Cols() && a.Type() == b.Type()
}
