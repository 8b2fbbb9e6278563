package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/teslashibe/go-cloak/internal/log"
	"github.com/teslashibe/go-cloak/pkg/background"
	"github.com/teslashibe/go-cloak/pkg/camera"
	"github.com/teslashibe/go-cloak/pkg/cloak"
	"github.com/teslashibe/go-cloak/pkg/compositor"
	"github.com/teslashibe/go-cloak/pkg/debug"
	"github.com/teslashibe/go-cloak/pkg/display"
	"github.com/teslashibe/go-cloak/pkg/session"
	"github.com/teslashibe/go-cloak/pkg/snapshot"
	"github.com/teslashibe/go-cloak/pkg/web"
	"gocv.io/x/gocv"
)

// App is the cloak application orchestrator.
// It owns every component and their lifecycle.
type App struct {
	config Config
	spec   cloak.ColorSpec

	// Pipeline
	device     *camera.Device
	estimator  *background.Estimator
	compositor *compositor.Compositor
	session    *session.Session

	// Outputs
	window     *display.Window
	maskWindow *display.Window
	webServer  *web.Server

	lastPublish time.Time
}

// New creates an application with the given configuration.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spec, err := cloak.Lookup(cfg.Color)
	if err != nil {
		return nil, err
	}

	debug.Enabled = cfg.Debug
	debug.Mask = cfg.ShowMask

	return &App{config: cfg, spec: spec}, nil
}

// Init opens the camera and captures the first background.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	fmt.Println("🧥 Invisibility Cloak")
	fmt.Println("====================")
	fmt.Printf("🎨 Cloak colour: %s\n", a.spec.Name())
	if debug.Enabled {
		fmt.Println("🐛 Debug mode enabled")
	}

	fmt.Printf("📷 Opening %s... ", a.config.Camera.Source())
	dev, err := camera.Open(a.config.Camera)
	if err != nil {
		fmt.Println("❌")
		return fmt.Errorf("camera: %w", err)
	}
	a.device = dev
	f := dev.Format()
	fmt.Printf("✅ %dx%d @ %.0ffps\n", f.Width, f.Height, f.FPS)

	if err := a.initPipeline(); err != nil {
		return err
	}

	if err := a.countdown(ctx); err != nil {
		return err
	}

	fmt.Println("📸 Capturing background, stay out of the frame...")
	if err := a.session.CaptureBackground(); err != nil {
		return err
	}
	ref := a.session.Reference()
	rows, cols := ref.Size()
	fmt.Printf("\n✅ Background captured (%dx%d from %d frames)\n", cols, rows, ref.Frames())

	a.initOutputs()
	return nil
}

func (a *App) initPipeline() error {
	est, err := background.NewEstimator(a.config.Background)
	if err != nil {
		return fmt.Errorf("estimator: %w", err)
	}
	est.OnProgress = func(read, total int) {
		fmt.Printf("\r   %d/%d frames", read, total)
	}
	a.estimator = est

	comp, err := compositor.New(a.config.Compositor)
	if err != nil {
		return fmt.Errorf("compositor: %w", err)
	}
	a.compositor = comp

	sess, err := session.New(a.device, est, comp, a.spec, a.config.Session)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	sess.OnFrame = a.onFrame
	sess.OnScreenshot = a.onScreenshot
	sess.OnBackground = a.onBackground
	a.session = sess
	return nil
}

func (a *App) initOutputs() {
	if !a.config.Headless {
		a.window = display.NewWindow(WindowTitle)
		if debug.Mask {
			a.maskWindow = display.NewWindow(MaskWindowTitle)
		}
		fmt.Println("⌨️  Keys: [s] screenshot  [r] recapture background  [q] quit")
	}

	if a.config.WebPort > 0 {
		port := strconv.Itoa(a.config.WebPort)
		a.webServer = web.NewServer(port, a.session)
		f := a.device.Format()
		a.webServer.SetCamera(web.CameraInfo{
			Source:    a.config.Camera.Source(),
			Width:     f.Width,
			Height:    f.Height,
			FPS:       f.FPS,
			Mirror:    a.config.Session.Mirror,
			Requested: fmt.Sprintf("%dx%d@%d", a.config.Camera.Width, a.config.Camera.Height, a.config.Camera.Framerate),
		})
		a.webServer.StartAsync()
		fmt.Printf("🌐 Preview: http://localhost:%s\n", port)
	}
}

// countdown gives the user time to step out of view.
func (a *App) countdown(ctx context.Context) error {
	remaining := a.config.Countdown
	for _, step := range countdownSteps(remaining) {
		fmt.Printf("⏳ %d...\n", int((remaining+time.Second-1)/time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
		remaining -= step
	}
	return nil
}

// countdownSteps splits d into waits that end on whole seconds of the
// remaining time: 1.5s becomes 500ms then 1s. The steps sum to d.
func countdownSteps(d time.Duration) []time.Duration {
	var steps []time.Duration
	for d > 0 {
		step := d % time.Second
		if step == 0 {
			step = time.Second
		}
		steps = append(steps, step)
		d -= step
	}
	return steps
}

// Run starts the frame loop. Blocks until ctx is cancelled, the user
// quits, or the camera is lost.
func (a *App) Run(ctx context.Context) error {
	if a.session == nil {
		return errors.New("app: Init must be called before Run")
	}
	if err := a.session.StartSchedule(); err != nil {
		return err
	}

	fmt.Println("\n🎭 Cloak active! (Ctrl+C to exit)")
	err := a.session.Run(ctx)

	st := a.session.Stats()
	fmt.Printf("📊 %d frames (%.1f fps), %d recaptures, %d screenshots\n",
		st.Frames, st.FPS, st.Recaptures, st.Screenshots)
	return err
}

// Shutdown releases every component. The camera is closed last.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Goodbye!")

	if a.webServer != nil {
		if err := a.webServer.Shutdown(); err != nil {
			log.Warn("web shutdown", "error", err)
		}
	}
	if a.maskWindow != nil {
		a.maskWindow.Close()
	}
	if a.window != nil {
		a.window.Close()
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.compositor != nil {
		a.compositor.Close()
	}
	if a.device != nil {
		a.device.Close()
	}
}

// onFrame runs on the session loop goroutine for every output frame.
func (a *App) onFrame(out gocv.Mat) error {
	if a.window != nil {
		a.window.Show(out)
		if a.maskWindow != nil {
			a.maskWindow.Show(a.compositor.Mask())
		}
		if err := a.apply(a.window.Poll()); err != nil {
			return err
		}
		if !a.window.Open() {
			return session.ErrStopped
		}
	}

	a.publish(out)
	return nil
}

// apply turns a key action into a session request.
func (a *App) apply(action display.Action) error {
	if action != display.None {
		debug.Log("⌨️  %s\n", action)
	}
	switch action {
	case display.Quit:
		return session.ErrStopped
	case display.Recapture:
		fmt.Printf("🔄 Recapturing background in %v, step out of the frame...\n", a.config.Session.RecaptureDelay)
		a.session.RequestRecapture()
	case display.Screenshot:
		a.session.RequestScreenshot()
	}
	return nil
}

// publish sends out to the web preview at most StreamFPS times a second.
func (a *App) publish(out gocv.Mat) {
	if a.webServer == nil {
		return
	}
	interval := time.Second / time.Duration(a.config.StreamFPS)
	if time.Since(a.lastPublish) < interval {
		return
	}
	a.lastPublish = time.Now()

	jpeg, err := snapshot.EncodeJPEG(out, a.config.Camera.Quality)
	if err != nil {
		log.Warn("preview encode failed", "error", err)
		return
	}
	a.webServer.PublishFrame(jpeg)
}

func (a *App) onScreenshot(path string) {
	fmt.Printf("📸 Screenshot saved: %s\n", path)
	if a.webServer != nil {
		a.webServer.PublishEvent("screenshot", map[string]string{"path": path})
	}
}

func (a *App) onBackground(ref *background.Reference) {
	st := a.session.Stats()
	if st.Recaptures > 0 {
		fmt.Printf("✅ Background recaptured (drift %d)\n", st.LastDrift)
	}
	if a.webServer != nil {
		rows, cols := ref.Size()
		a.webServer.PublishEvent("background", map[string]any{
			"captured_at": ref.CapturedAt(),
			"frames":      ref.Frames(),
			"width":       cols,
			"height":      rows,
			"drift":       st.LastDrift,
		})
	}
}
