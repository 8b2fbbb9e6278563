// Cloak - real-time "invisibility cloak" for a webcam.
// Pixels matching the cloak colour are replaced with a captured background.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-cloak/internal/config"
	"github.com/teslashibe/go-cloak/internal/log"
	"github.com/teslashibe/go-cloak/pkg/app"
	"github.com/teslashibe/go-cloak/pkg/camera"
	"github.com/teslashibe/go-cloak/pkg/cloak"
	"github.com/teslashibe/go-cloak/pkg/session"
)

func main() {
	cfg, logLevel := parseFlags()
	log.Init(logLevel)

	a, err := app.New(cfg)
	if err != nil {
		fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		a.Shutdown()
		if errors.Is(err, context.Canceled) {
			return
		}
		fatalf("❌ Initialization failed: %v", err)
	}

	err = a.Run(ctx)
	a.Shutdown()
	if err != nil {
		if errors.Is(err, session.ErrDeviceLost) {
			fatalf("❌ Camera lost: %v", err)
		}
		fatalf("❌ Runtime error: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// parseFlags parses command line flags on top of CLOAK_* environment
// defaults and returns the app configuration and log level.
func parseFlags() (app.Config, string) {
	cfg := app.DefaultConfig()
	cfg.Color = config.Color()
	cfg.Camera.Device = config.CameraDevice(cfg.Camera.Device)
	cfg.WebPort = config.WebPort()
	cfg.Session.ScreenshotDir = config.ScreenshotDir()

	color := flag.String("color", cfg.Color, fmt.Sprintf("Cloak colour: name or number (%v)", cloak.PresetNames()))
	device := flag.Int("camera", cfg.Camera.Device, "Camera device index (CLOAK_CAMERA)")
	input := flag.String("input", "", "Read from a video file instead of a camera")
	preset := flag.String("preset", "", fmt.Sprintf("Capture preset %v (overrides -width/-height/-fps)", camera.PresetNames()))
	width := flag.Int("width", cfg.Camera.Width, "Requested frame width")
	height := flag.Int("height", cfg.Camera.Height, "Requested frame height")
	fps := flag.Int("fps", cfg.Camera.Framerate, "Requested frame rate")
	quality := flag.Int("quality", cfg.Camera.Quality, "JPEG quality for screenshots and preview")
	frames := flag.Int("frames", cfg.Background.Frames, "Frames in the background median")
	noMirror := flag.Bool("no-mirror", false, "Do not flip frames horizontally")
	port := flag.Int("port", cfg.WebPort, "Web preview port, 0 disables (CLOAK_PORT)")
	headless := flag.Bool("headless", false, "No desktop window; use the web preview")
	screenshots := flag.String("screenshots", cfg.Session.ScreenshotDir, "Screenshot directory (CLOAK_SCREENSHOT_DIR)")
	recaptureDelay := flag.Duration("recapture-delay", cfg.Session.RecaptureDelay, "Time to leave the frame after a recapture request")
	recapture := flag.String("recapture-every", "", "Cron spec for automatic background recapture, e.g. \"@every 10m\"")
	maxFailures := flag.Int("max-read-failures", cfg.Session.MaxReadFailures, "Consecutive read failures before giving up")
	countdown := flag.Duration("countdown", cfg.Countdown, "Time to leave the frame before background capture")
	streamFPS := flag.Int("stream-fps", cfg.StreamFPS, "Max frames per second sent to the web preview")
	debug := flag.Bool("debug", false, "Enable verbose debug output")
	showMask := flag.Bool("show-mask", false, "Show the refined mask in a second window")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	if *preset != "" {
		p := camera.GetPreset(*preset)
		if p == nil {
			fatalf("❌ Unknown camera preset %q (choose %v)", *preset, camera.PresetNames())
		}
		*width, *height, *fps = p.Width, p.Height, p.Framerate
	}

	mirror := !*noMirror
	cfg.Color = *color
	cfg.Camera.Device, cfg.Camera.Path = *device, *input
	cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Framerate = *width, *height, *fps
	cfg.Camera.Quality = *quality
	cfg.Background.Frames = *frames
	cfg.Background.Mirror = mirror
	cfg.Session.Mirror = mirror
	cfg.Session.ScreenshotDir = *screenshots
	cfg.Session.RecaptureSchedule = *recapture
	cfg.Session.RecaptureDelay = *recaptureDelay
	cfg.Session.MaxReadFailures = *maxFailures
	cfg.Session.JPEGQuality = *quality
	cfg.WebPort = *port
	cfg.Headless = *headless
	cfg.Countdown = *countdown
	cfg.StreamFPS = *streamFPS
	cfg.Debug, cfg.ShowMask = *debug, *showMask

	if *input != "" && *countdown == app.DefaultCountdown {
		// Nobody has to leave the frame of a recording.
		cfg.Countdown = 0
	}

	level := *logLevel
	if *debug {
		level = "debug"
	}
	return cfg, level
}
