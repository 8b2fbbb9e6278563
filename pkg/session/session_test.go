package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-cloak/pkg/background"
	"github.com/teslashibe/go-cloak/pkg/camera"
	"github.com/teslashibe/go-cloak/pkg/cloak"
	"github.com/teslashibe/go-cloak/pkg/compositor"
	"gocv.io/x/gocv"
)

const rows, cols = 24, 32

func bgr(b, g, r float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// funcSource lets a test decide each read.
type funcSource struct {
	mu   sync.Mutex
	read func(n int, dst *gocv.Mat) error
	n    int
}

func (f *funcSource) Read(dst *gocv.Mat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return f.read(f.n, dst)
}

func (f *funcSource) Close() error { return nil }

func newSession(t *testing.T, src camera.Source, cfg Config) *Session {
	t.Helper()

	est, err := background.NewEstimator(background.Config{Frames: 3, Mirror: true})
	require.NoError(t, err)
	comp, err := compositor.New(compositor.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { comp.Close() })

	s, err := New(src, est, comp, cloak.Red(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.MaxReadFailures = 3
	cfg.RecaptureDelay = 0
	cfg.ScreenshotDir = t.TempDir()
	return cfg
}

func TestNew_Validation(t *testing.T) {
	est, _ := background.NewEstimator(background.DefaultConfig())
	comp, _ := compositor.New(compositor.DefaultConfig())
	defer comp.Close()
	src := camera.NewMockSource()
	defer src.Close()

	_, err := New(nil, est, comp, cloak.Red(), DefaultConfig())
	assert.Error(t, err)

	_, err = New(src, est, comp, cloak.ColorSpec{}, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxReadFailures = 0
	_, err = New(src, est, comp, cloak.Red(), cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.RecaptureSchedule = "every now and then"
	_, err = New(src, est, comp, cloak.Red(), cfg)
	assert.Error(t, err)

	cfg.RecaptureSchedule = ""
	cfg.RecaptureDelay = -time.Second
	_, err = New(src, est, comp, cloak.Red(), cfg)
	assert.Error(t, err)

	cfg.RecaptureDelay = DefaultRecaptureDelay
	cfg.RecaptureSchedule = "@every 10m"
	s, err := New(src, est, comp, cloak.Red(), cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	s.Close()
}

func TestRun_RequiresBackground(t *testing.T) {
	src := camera.NewMockSource()
	defer src.Close()
	s := newSession(t, src, testConfig(t))

	assert.ErrorIs(t, s.Run(context.Background()), ErrNoReference)
	assert.ErrorIs(t, s.Step(), ErrNoReference)
}

func TestCaptureBackground_FailureWithoutPrevious(t *testing.T) {
	src := camera.NewMockSource()
	defer src.Close()
	s := newSession(t, src, testConfig(t))

	err := s.CaptureBackground()
	assert.ErrorIs(t, err, background.ErrCaptureFailed)
	assert.Nil(t, s.Reference())
	assert.Equal(t, 1, s.Stats().FailedRecaptures)
}

func TestStep_ReplacesCloakWithBackground(t *testing.T) {
	bg := bgr(200, 200, 200)
	defer bg.Close()
	red := bgr(0, 42, 255)
	defer red.Close()

	src := camera.NewMockSource(&bg, &bg, &bg, &red)
	defer src.Close()
	s := newSession(t, src, testConfig(t))

	require.NoError(t, s.CaptureBackground())

	var got []byte
	s.OnFrame = func(out gocv.Mat) error {
		got = append([]byte(nil), out.ToBytes()...)
		return nil
	}
	require.NoError(t, s.Step())

	assert.True(t, bytes.Equal(bg.ToBytes(), got), "cloak pixels should show the background")
	st := s.Stats()
	assert.Equal(t, uint64(1), st.Frames)
	assert.InDelta(t, 1.0, st.Coverage, 1e-9)
	assert.Equal(t, 3, st.BackgroundFrames)
	assert.Equal(t, "Red", st.Color)
}

func TestStep_RecaptureSwapsReference(t *testing.T) {
	first := bgr(50, 50, 50)
	defer first.Close()
	second := bgr(150, 150, 150)
	defer second.Close()

	src := camera.NewMockSource(&first, &first, &first, &second)
	defer src.Close()
	s := newSession(t, src, testConfig(t))

	require.NoError(t, s.CaptureBackground())
	old := s.Reference()
	require.NotNil(t, old)

	var refs []*background.Reference
	s.OnBackground = func(ref *background.Reference) { refs = append(refs, ref) }

	s.RequestRecapture()
	assert.True(t, s.Stats().RecapturePending)
	require.NoError(t, s.Step())

	cur := s.Reference()
	require.NotNil(t, cur)
	assert.NotSame(t, old, cur)
	assert.Len(t, refs, 1)
	curMat := cur.Mat()
	assert.Equal(t, uint8(150), curMat.GetVecbAt(0, 0)[0])

	st := s.Stats()
	assert.Equal(t, 1, st.Recaptures)
	assert.False(t, st.RecapturePending)
	assert.GreaterOrEqual(t, st.LastDrift, 0)
}

func TestStep_FailedRecaptureKeepsPrevious(t *testing.T) {
	gray := bgr(90, 90, 90)
	defer gray.Close()

	failing := false
	src := &funcSource{read: func(n int, dst *gocv.Mat) error {
		if failing {
			return camera.ErrReadFailed
		}
		gray.CopyTo(dst)
		return nil
	}}
	s := newSession(t, src, testConfig(t))
	require.NoError(t, s.CaptureBackground())
	old := s.Reference()

	failing = true
	s.RequestRecapture()
	err := s.Step()

	// The recapture failed (kept old) and then the live read failed too.
	assert.ErrorIs(t, err, camera.ErrReadFailed)
	assert.Same(t, old, s.Reference())
	assert.Equal(t, 1, s.Stats().FailedRecaptures)

	failing = false
	require.NoError(t, s.Step())
}

func TestRun_DeviceLostAfterConsecutiveFailures(t *testing.T) {
	gray := bgr(90, 90, 90)
	defer gray.Close()

	// 3 frames for the background, one good live frame, two failures,
	// one good frame, then failures forever.
	src := camera.NewMockSource(&gray, &gray, &gray, &gray, nil, nil, &gray)
	src.FailWhenDone = true
	defer src.Close()

	s := newSession(t, src, testConfig(t))
	require.NoError(t, s.CaptureBackground())

	delivered := 0
	s.OnFrame = func(gocv.Mat) error {
		delivered++
		return nil
	}

	err := s.Run(context.Background())
	assert.True(t, errors.Is(err, ErrDeviceLost), "got %v", err)
	assert.Equal(t, 2, delivered)

	st := s.Stats()
	assert.Equal(t, uint64(5), st.ReadFailures)
	assert.Equal(t, 3, st.ConsecutiveFailures)
}

func TestRun_StopsOnErrStopped(t *testing.T) {
	gray := bgr(90, 90, 90)
	defer gray.Close()
	src := camera.NewMockSource(&gray)
	defer src.Close()

	s := newSession(t, src, testConfig(t))
	require.NoError(t, s.CaptureBackground())

	n := 0
	s.OnFrame = func(gocv.Mat) error {
		n++
		if n == 5 {
			return ErrStopped
		}
		return nil
	}
	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 5, n)
}

func TestRun_StopsOnCancel(t *testing.T) {
	gray := bgr(90, 90, 90)
	defer gray.Close()
	src := camera.NewMockSource(&gray)
	defer src.Close()

	s := newSession(t, src, testConfig(t))
	require.NoError(t, s.CaptureBackground())

	ctx, cancel := context.WithCancel(context.Background())
	s.OnFrame = func(gocv.Mat) error {
		cancel()
		return nil
	}
	assert.NoError(t, s.Run(ctx))
	assert.Equal(t, uint64(1), s.Stats().Frames)
}

func TestRun_DimensionMismatchIsFatal(t *testing.T) {
	small := bgr(90, 90, 90)
	defer small.Close()
	big := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), rows*2, cols*2, gocv.MatTypeCV8UC3)
	defer big.Close()

	src := camera.NewMockSource(&small, &small, &small, &big)
	defer src.Close()

	s := newSession(t, src, testConfig(t))
	require.NoError(t, s.CaptureBackground())

	assert.ErrorIs(t, s.Run(context.Background()), compositor.ErrDimensionMismatch)
}

func TestStep_Screenshot(t *testing.T) {
	gray := bgr(90, 90, 90)
	defer gray.Close()
	src := camera.NewMockSource(&gray)
	defer src.Close()

	cfg := testConfig(t)
	s := newSession(t, src, cfg)
	require.NoError(t, s.CaptureBackground())

	var saved string
	s.OnScreenshot = func(path string) { saved = path }

	require.NoError(t, s.Step())
	assert.Empty(t, saved, "no screenshot without a request")

	s.RequestScreenshot()
	require.NoError(t, s.Step())
	require.NotEmpty(t, saved)

	info, err := os.Stat(saved)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	st := s.Stats()
	assert.Equal(t, 1, st.Screenshots)
	assert.Equal(t, saved, st.LastScreenshot)
	assert.False(t, st.ScreenshotPending)
}

func TestStartSchedule(t *testing.T) {
	src := camera.NewMockSource()
	defer src.Close()

	cfg := testConfig(t)
	s := newSession(t, src, cfg)
	assert.NoError(t, s.StartSchedule(), "empty schedule is a no-op")
	assert.Nil(t, s.sched)

	cfg.RecaptureSchedule = "@every 1h"
	s2 := newSession(t, src, cfg)
	require.NoError(t, s2.StartSchedule())
	assert.NotNil(t, s2.sched)
	require.NoError(t, s2.Close())
	assert.Nil(t, s2.sched)
}

func TestRequests_ConcurrentCallers(t *testing.T) {
	src := camera.NewMockSource()
	defer src.Close()
	s := newSession(t, src, testConfig(t))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RequestRecapture()
			s.RequestScreenshot()
			_ = s.Stats()
		}()
	}
	wg.Wait()

	st := s.Stats()
	assert.True(t, st.RecapturePending)
	assert.True(t, st.ScreenshotPending)
}

func TestRun_EndOfStreamStopsCleanly(t *testing.T) {
	gray := bgr(90, 90, 90)
	defer gray.Close()

	src := &funcSource{read: func(n int, dst *gocv.Mat) error {
		if n > 5 {
			return camera.ErrEndOfStream
		}
		gray.CopyTo(dst)
		return nil
	}}
	s := newSession(t, src, testConfig(t))
	require.NoError(t, s.CaptureBackground())

	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, uint64(2), s.Stats().Frames)
}

func TestStep_RecaptureWaitsForDelay(t *testing.T) {
	first := bgr(50, 50, 50)
	defer first.Close()
	second := bgr(150, 150, 150)
	defer second.Close()

	src := camera.NewMockSource(&first, &first, &first, &second)
	defer src.Close()

	cfg := testConfig(t)
	cfg.RecaptureDelay = 3 * time.Second
	s := newSession(t, src, cfg)

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	require.NoError(t, s.CaptureBackground())
	old := s.Reference()

	s.RequestRecapture()
	require.NoError(t, s.Step())
	assert.Same(t, old, s.Reference(), "background must not be read before the delay")
	st := s.Stats()
	assert.True(t, st.RecapturePending)
	assert.Equal(t, clock.Add(3*time.Second), st.RecaptureAt.UTC())

	// A second request while armed does not push the deadline back.
	clock = clock.Add(2 * time.Second)
	s.RequestRecapture()
	require.NoError(t, s.Step())
	assert.Same(t, old, s.Reference())

	readsBefore := src.Reads
	clock = clock.Add(1 * time.Second)
	require.NoError(t, s.Step())

	cur := s.Reference()
	assert.NotSame(t, old, cur)
	curMat := cur.Mat()
	assert.Equal(t, uint8(150), curMat.GetVecbAt(0, 0)[0])
	assert.Equal(t, readsBefore+4, src.Reads, "3 background frames and 1 live frame")

	st = s.Stats()
	assert.False(t, st.RecapturePending)
	assert.True(t, st.RecaptureAt.IsZero())
	assert.Equal(t, 1, st.Recaptures)
}

func TestRequestRecapture_DoesNotBlock(t *testing.T) {
	src := camera.NewMockSource()
	defer src.Close()
	cfg := testConfig(t)
	cfg.RecaptureDelay = time.Hour
	s := newSession(t, src, cfg)

	done := make(chan struct{})
	go func() {
		s.RequestRecapture()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestRecapture blocked")
	}
}
