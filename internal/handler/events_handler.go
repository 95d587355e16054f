package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/middleware"
	"github.com/noah-isme/rendus-api/internal/service"
	"github.com/noah-isme/rendus-api/internal/utils"
)

// ProcessingSnapshotter reports the current in-flight workflows of a course.
type ProcessingSnapshotter interface {
	Snapshot(courseID uint) []dto.ProcessingStatusResponse
}

// SnapshotMessage is the first frame sent on a new events connection.
type SnapshotMessage struct {
	Type     string                         `json:"type"`
	CourseID uint                           `json:"course_id"`
	Items    []dto.ProcessingStatusResponse `json:"items"`
}

// EventsHandler streams processing events to websocket clients.
type EventsHandler struct {
	hub          service.EventHub
	snapshots    ProcessingSnapshotter
	pingInterval time.Duration
	logger       zerolog.Logger
}

// NewEventsHandler constructs an events handler.
func NewEventsHandler(hub service.EventHub, snapshots ProcessingSnapshotter, pingInterval time.Duration, logger zerolog.Logger) *EventsHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &EventsHandler{
		hub:          hub,
		snapshots:    snapshots,
		pingInterval: pingInterval,
		logger:       logger.With().Str("component", "events_handler").Logger(),
	}
}

// Register wires the websocket route under /courses.
func (h *EventsHandler) Register(router fiber.Router) {
	router.Get("/:courseId/events/ws", h.upgrade, websocket.New(h.handleConnection))
}

func (h *EventsHandler) upgrade(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("course_id", courseID)
	c.Locals("correlation_id", middleware.GetCorrelationID(c))
	return c.Next()
}

func (h *EventsHandler) handleConnection(conn *websocket.Conn) {
	courseID, _ := conn.Locals("course_id").(uint)
	correlation, _ := conn.Locals("correlation_id").(string)
	logger := h.logger.With().Uint("course_id", courseID).Str("correlation_id", correlation).Logger()

	events, cleanup := h.hub.Subscribe(courseID)
	defer cleanup()

	snapshot := SnapshotMessage{Type: "processing.snapshot", CourseID: courseID, Items: []dto.ProcessingStatusResponse{}}
	if h.snapshots != nil {
		snapshot.Items = append(snapshot.Items, h.snapshots.Snapshot(courseID)...)
	}
	if err := conn.WriteJSON(snapshot); err != nil {
		logger.Debug().Err(err).Msg("failed to write processing snapshot")
		return
	}

	logger.Info().Msg("events websocket connected")
	defer logger.Info().Msg("events websocket disconnected")

	// Clients only listen; reading detects the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("failed to write processing event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
