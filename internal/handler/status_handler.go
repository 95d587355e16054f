package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/middleware"
	"github.com/noah-isme/rendus-api/internal/service"
	"github.com/noah-isme/rendus-api/internal/utils"
)

// StatusHandler edits individual submission statuses.
type StatusHandler struct {
	service service.StatusService
	logger  zerolog.Logger
}

// NewStatusHandler constructs a status handler.
func NewStatusHandler(service service.StatusService, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		service: service,
		logger:  logger.With().Str("component", "status_handler").Logger(),
	}
}

// Register wires status routes under /statuses.
func (h *StatusHandler) Register(router fiber.Router) {
	router.Get("/states", h.states)
	router.Put("/batch", h.batch)
	router.Put("/:statusId", h.update)
	router.Delete("/:statusId", middleware.RequireConfirmation(), h.delete)
}

func (h *StatusHandler) states(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "submission states", h.service.States())
}

func (h *StatusHandler) update(c *fiber.Ctx) error {
	statusID, err := parseIDParam(c, "statusId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid status type")
	}

	status, err := h.service.Update(requestContext(c), statusID, req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update status")
	}
	return utils.SendSuccess(c, "status updated", status)
}

func (h *StatusHandler) batch(c *fiber.Ctx) error {
	var req dto.BatchStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.UpdateBatch(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update statuses")
	}

	message := "statuses updated"
	if len(result.Failed) > 0 {
		message = "statuses partially updated"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *StatusHandler) delete(c *fiber.Ctx) error {
	statusID, err := parseIDParam(c, "statusId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	courseID, err := parseQueryInt(c, "courseId")
	if err != nil || courseID < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid courseId")
	}

	if err := h.service.Delete(requestContext(c), statusID, uint(courseID)); err != nil {
		return respondError(c, h.logger, err, "failed to delete status")
	}
	return utils.SendSuccess(c, "status deleted", nil)
}
