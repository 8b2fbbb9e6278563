// Package web serves a live preview of the cloak output and a small
// HTTP control surface (status, recapture, screenshot).
package web

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-cloak/internal/log"
	"github.com/teslashibe/go-cloak/pkg/hub"
	"github.com/teslashibe/go-cloak/pkg/session"
)

// Controller is the part of a session the web layer drives.
// *session.Session implements it.
type Controller interface {
	Stats() session.Stats
	RequestRecapture()
	RequestScreenshot()
}

// CameraInfo describes the capture source for /api/camera.
type CameraInfo struct {
	Source    string  `json:"source"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FPS       float64 `json:"fps"`
	Mirror    bool    `json:"mirror"`
	Requested string  `json:"requested,omitempty"`
}

// Server is the preview and control server.
type Server struct {
	app  *fiber.App
	port string
	ctrl Controller

	stream   *hub.Hub
	ctx      context.Context
	cancel   context.CancelFunc
	hubStart sync.Once

	frameMu sync.RWMutex
	frame   []byte
	frameAt time.Time

	cameraMu sync.RWMutex
	camera   CameraInfo
}

// NewServer creates a server bound to ctrl. It does not listen until
// Start is called.
func NewServer(port string, ctrl Controller) *Server {
	s := &Server{
		port:   port,
		ctrl:   ctrl,
		stream: hub.New("stream"),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	app := fiber.New(fiber.Config{
		AppName:               "go-cloak",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/colors", s.handleColors)
	api.Get("/camera", s.handleCamera)
	api.Get("/frame", s.handleFrame)
	api.Post("/recapture", s.handleRecapture)
	api.Post("/screenshot", s.handleScreenshot)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stream", websocket.New(s.handleStreamWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the stream hub.
func (s *Server) Hub() *hub.Hub {
	return s.stream
}

// Start runs the hub and listens on the configured port. It blocks.
func (s *Server) Start() error {
	s.startHub()
	log.Info("web preview listening", "url", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// Serve runs the hub and serves on an existing listener. It blocks.
func (s *Server) Serve(ln net.Listener) error {
	s.startHub()
	log.Info("web preview listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server stopped", "error", err)
		}
	}()
}

func (s *Server) startHub() {
	s.hubStart.Do(func() { go s.stream.Run(s.ctx) })
}

// SetCamera records the capture source shown by /api/camera.
func (s *Server) SetCamera(info CameraInfo) {
	s.cameraMu.Lock()
	s.camera = info
	s.cameraMu.Unlock()
}

// PublishFrame stores jpeg as the latest frame and sends it to stream
// clients. The server keeps the slice, so callers must not modify it.
func (s *Server) PublishFrame(jpeg []byte) {
	s.frameMu.Lock()
	s.frame = jpeg
	s.frameAt = time.Now()
	s.frameMu.Unlock()

	if s.stream.ClientCount() > 0 {
		s.stream.BroadcastFrame(jpeg)
	}
}

// PublishEvent sends a JSON event to stream clients.
func (s *Server) PublishEvent(kind string, data any) {
	if err := s.stream.BroadcastEvent(kind, data); err != nil {
		log.Warn("event not sent", "type", kind, "error", err)
	}
}

// LatestFrame returns the most recent JPEG and when it was published.
func (s *Server) LatestFrame() ([]byte, time.Time) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.frame, s.frameAt
}

// Shutdown stops the hub and the HTTP server.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
