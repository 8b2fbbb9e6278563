package camera

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-cloak/internal/log"
	"gocv.io/x/gocv"
)

// Source produces frames, one blocking read at a time.
type Source interface {
	// Read fills dst with the next frame.
	Read(dst *gocv.Mat) error

	// Close releases the underlying handle.
	Close() error
}

// Format is the frame format a device actually delivers.
type Format struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// Device is a Source backed by an OpenCV VideoCapture.
type Device struct {
	cap    *gocv.VideoCapture
	cfg    Config
	format Format
	mu     sync.Mutex
	closed bool
}

// Open acquires the device (or file) described by cfg.
// The resolution and frame rate are requested but not enforced.
func Open(cfg Config) (*Device, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if cfg.Path != "" {
		vc, err = gocv.VideoCaptureFile(cfg.Path)
	} else {
		vc, err = gocv.VideoCaptureDevice(cfg.Device)
	}
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, cfg.Source(), err)
	}
	if vc == nil || !vc.IsOpened() {
		if vc != nil {
			vc.Close()
		}
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, cfg.Source())
	}

	if cfg.Path == "" {
		if cfg.Width > 0 {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		}
		if cfg.Height > 0 {
			vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		}
		if cfg.Framerate > 0 {
			vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
		}
	}

	d := &Device{
		cap: vc,
		cfg: cfg,
		format: Format{
			Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
			FPS:    vc.Get(gocv.VideoCaptureFPS),
		},
	}

	if d.format.Width != cfg.Width || d.format.Height != cfg.Height {
		log.Info("camera negotiated a different format",
			"source", cfg.Source(),
			"requested", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"actual", fmt.Sprintf("%dx%d", d.format.Width, d.format.Height))
	}
	log.Debug("camera opened", "source", cfg.Source(), "fps", d.format.FPS)

	return d, nil
}

// Format returns the negotiated frame format.
func (d *Device) Format() Format {
	return d.format
}

// Config returns the configuration the device was opened with.
func (d *Device) Config() Config {
	return d.cfg
}

// Read blocks until the next frame is available.
func (d *Device) Read(dst *gocv.Mat) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if ok := d.cap.Read(dst); !ok {
		if d.cfg.Path != "" {
			return fmt.Errorf("%w: %s", ErrEndOfStream, d.cfg.Path)
		}
		return fmt.Errorf("%w: %s", ErrReadFailed, d.cfg.Source())
	}
	if dst.Empty() {
		return fmt.Errorf("%w: %s: empty frame", ErrReadFailed, d.cfg.Source())
	}
	return nil
}

// Close releases the device. Calling it more than once is safe.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.cap.Close()
}

// Mirror flips src around the vertical axis into dst.
func Mirror(src gocv.Mat, dst *gocv.Mat) {
	gocv.Flip(src, dst, 1)
}
