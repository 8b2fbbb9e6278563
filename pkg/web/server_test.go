package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-cloak/pkg/session"
)

type fakeController struct {
	mu          sync.Mutex
	recaptures  int
	screenshots int
	stats       session.Stats
}

func (f *fakeController) Stats() session.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.stats
	st.RecapturePending = f.recaptures > 0
	st.ScreenshotPending = f.screenshots > 0
	return st
}

func (f *fakeController) RequestRecapture() {
	f.mu.Lock()
	f.recaptures++
	f.mu.Unlock()
}

func (f *fakeController) RequestScreenshot() {
	f.mu.Lock()
	f.screenshots++
	f.mu.Unlock()
}

func newTestServer() (*Server, *fakeController) {
	ctrl := &fakeController{stats: session.Stats{ID: "abc", Color: "Red", Frames: 42}}
	return NewServer("0", ctrl), ctrl
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 80, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "abc", st.Session.ID)
	assert.Equal(t, uint64(42), st.Session.Frames)
	assert.Nil(t, st.FrameAt)

	s.PublishFrame(testJPEG(t, 8, 8))
	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	st = Status{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.NotNil(t, st.FrameAt)
}

func TestColors(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/colors", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var colors []ColorInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&colors))
	require.Len(t, colors, 5)

	assert.Equal(t, 1, colors[0].Choice)
	assert.Equal(t, "red", colors[0].Key)
	assert.True(t, colors[0].Wraps)
	assert.True(t, colors[0].Active)
	assert.Len(t, colors[0].Ranges, 2)

	for _, c := range colors[1:] {
		assert.False(t, c.Active, c.Key)
		assert.Len(t, c.Ranges, 1, c.Key)
	}
}

func TestCamera(t *testing.T) {
	s, _ := newTestServer()
	s.SetCamera(CameraInfo{Source: "device 0", Width: 640, Height: 480, FPS: 30, Mirror: true})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/camera", nil))
	require.NoError(t, err)

	var info CameraInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "device 0", info.Source)
	assert.Equal(t, 640, info.Width)
	assert.True(t, info.Mirror)
}

func TestControlEndpoints(t *testing.T) {
	s, ctrl := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/recapture", nil))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	resp, err = s.App().Test(httptest.NewRequest("POST", "/api/screenshot", nil))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	resp, err = s.App().Test(httptest.NewRequest("POST", "/api/screenshot", nil))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	assert.Equal(t, 1, ctrl.recaptures)
	assert.Equal(t, 2, ctrl.screenshots)

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/recapture", nil))
	require.NoError(t, err)
	assert.Equal(t, 405, resp.StatusCode)
}

func TestFrame_NoneYet(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/frame", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestFrame_LatestAndThumbnail(t *testing.T) {
	s, _ := newTestServer()
	full := testJPEG(t, 64, 48)
	s.PublishFrame(testJPEG(t, 16, 16))
	s.PublishFrame(full)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/frame", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, full, body)

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/frame?width=16", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 12, cfg.Height)

	for _, bad := range []string{"0", "-5", "wide", "100000"} {
		resp, err = s.App().Test(httptest.NewRequest("GET", "/api/frame?width="+bad, nil))
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode, bad)
	}
}

func TestWebsocket_RequiresUpgrade(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/stream", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestStream_ReceivesFrames(t *testing.T) {
	s, _ := newTestServer()
	first := testJPEG(t, 8, 8)
	s.PublishFrame(first)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)
	t.Cleanup(func() { s.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/ws/stream"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, first, data, "latest frame is sent on connect")

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	next := testJPEG(t, 4, 4)
	s.PublishFrame(next)
	kind, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, next, data)

	s.PublishEvent("recaptured", map[string]int{"drift": 3})
	kind, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Contains(t, string(data), `"type":"recaptured"`)
}
