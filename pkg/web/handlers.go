package web

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-cloak/internal/log"
	"github.com/teslashibe/go-cloak/pkg/cloak"
	"github.com/teslashibe/go-cloak/pkg/hub"
	"github.com/teslashibe/go-cloak/pkg/session"
	"github.com/teslashibe/go-cloak/pkg/snapshot"
)

// maxPreviewWidth bounds /api/frame?width=N.
const maxPreviewWidth = 4096

// Status is the /api/status response.
type Status struct {
	Session session.Stats `json:"session"`
	Clients int           `json:"clients"`
	FrameAt *time.Time    `json:"frame_at,omitempty"`
}

// ColorInfo describes one preset for /api/colors.
type ColorInfo struct {
	Choice int           `json:"choice"`
	Key    string        `json:"key"`
	Name   string        `json:"name"`
	Ranges []cloak.Range `json:"ranges"`
	Wraps  bool          `json:"wraps"`
	Active bool          `json:"active"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{
		Session: s.ctrl.Stats(),
		Clients: s.stream.ClientCount(),
	}
	if _, at := s.LatestFrame(); !at.IsZero() {
		st.FrameAt = &at
	}
	return c.JSON(st)
}

func (s *Server) handleColors(c *fiber.Ctx) error {
	active := s.ctrl.Stats().Color
	presets := cloak.Presets()

	out := make([]ColorInfo, 0, len(presets))
	for i, key := range cloak.PresetNames() {
		spec := presets[key]
		out = append(out, ColorInfo{
			Choice: i + 1,
			Key:    key,
			Name:   spec.Name(),
			Ranges: spec.Ranges(),
			Wraps:  spec.Wraps(),
			Active: spec.Name() == active,
		})
	}
	return c.JSON(out)
}

func (s *Server) handleCamera(c *fiber.Ctx) error {
	s.cameraMu.RLock()
	defer s.cameraMu.RUnlock()
	return c.JSON(s.camera)
}

func (s *Server) handleRecapture(c *fiber.Ctx) error {
	s.ctrl.RequestRecapture()
	log.Info("recapture requested", "via", "http")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "pending"})
}

func (s *Server) handleScreenshot(c *fiber.Ctx) error {
	s.ctrl.RequestScreenshot()
	log.Info("screenshot requested", "via", "http")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "pending"})
}

// handleFrame returns the latest output frame, optionally scaled down
// to ?width=N.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	frame, _ := s.LatestFrame()
	if len(frame) == 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no frame yet",
		})
	}

	if w := c.Query("width"); w != "" {
		width, err := strconv.Atoi(w)
		if err != nil || width <= 0 || width > maxPreviewWidth {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "width must be between 1 and " + strconv.Itoa(maxPreviewWidth),
			})
		}
		thumb, err := snapshot.Thumbnail(frame, uint(width))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		frame = thumb
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(frame)
}

// handleStreamWS sends the latest frame immediately, then every
// published frame until the client goes away.
func (s *Server) handleStreamWS(conn *websocket.Conn) {
	if frame, _ := s.LatestFrame(); len(frame) > 0 {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			conn.Close()
			return
		}
	}

	client, err := hub.NewClient(s.stream, conn)
	if err != nil {
		conn.Close()
		return
	}
	client.Run()
}
