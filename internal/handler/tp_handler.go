package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/middleware"
	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/repository"
	"github.com/noah-isme/rendus-api/internal/service"
	"github.com/noah-isme/rendus-api/internal/utils"
)

// TPHandler exposes assignments, submission archives and the processing workflows.
type TPHandler struct {
	tps         service.TPService
	coordinator service.ProcessingCoordinator
	logger      zerolog.Logger
}

// NewTPHandler constructs a TP handler.
func NewTPHandler(tps service.TPService, coordinator service.ProcessingCoordinator, logger zerolog.Logger) *TPHandler {
	return &TPHandler{
		tps:         tps,
		coordinator: coordinator,
		logger:      logger.With().Str("component", "tp_handler").Logger(),
	}
}

// Register wires TP routes under /courses.
func (h *TPHandler) Register(router fiber.Router) {
	router.Get("/:courseId/tps", h.list)
	router.Post("/:courseId/tps/:tpNo", h.create)
	router.Delete("/:courseId/tps/:tpNo", middleware.RequireConfirmation(), h.delete)
	router.Post("/:courseId/tps/:tpNo/submission", h.upload)
	router.Get("/:courseId/tps/:tpNo/download", h.download)
	router.Post("/:courseId/tps/:tpNo/process", h.process)
	router.Post("/:courseId/tps/:tpNo/refresh", h.refresh)

	router.Get("/:courseId/processing", h.snapshot)
	router.Get("/:courseId/processing/runs", h.runs)
	router.Get("/:courseId/processing/latest", h.latest)
}

func (h *TPHandler) list(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	tps, err := h.tps.List(requestContext(c), courseID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list tps")
	}
	return utils.SendSuccess(c, "tps retrieved", tps)
}

func (h *TPHandler) create(c *fiber.Ctx) error {
	courseID, tpNo, err := courseAndTP(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	tp, err := h.tps.Create(requestContext(c), courseID, tpNo)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create tp")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "tp created", tp)
}

func (h *TPHandler) delete(c *fiber.Ctx) error {
	courseID, tpNo, err := courseAndTP(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.tps.Delete(requestContext(c), courseID, tpNo); err != nil {
		return respondError(c, h.logger, err, "failed to delete tp")
	}
	return utils.SendSuccess(c, "tp deleted", nil)
}

func (h *TPHandler) upload(c *fiber.Ctx) error {
	courseID, tpNo, err := courseAndTP(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	tp, err := h.tps.UploadSubmission(requestContext(c), courseID, tpNo, file)
	if err != nil {
		return respondError(c, h.logger, err, "failed to upload submissions")
	}
	return utils.SendSuccess(c, "submissions uploaded", tp)
}

func (h *TPHandler) download(c *fiber.Ctx) error {
	courseID, tpNo, err := courseAndTP(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	archive, err := h.tps.Download(requestContext(c), courseID, tpNo)
	if err != nil {
		return respondError(c, h.logger, err, "failed to download archive")
	}

	c.Attachment(archive.FileName)
	c.Set(fiber.HeaderContentType, archive.ContentType)

	size := -1
	if archive.ContentLength > 0 {
		size = int(archive.ContentLength)
	}
	return c.SendStream(archive.Body, size)
}

func (h *TPHandler) process(c *fiber.Ctx) error {
	courseID, tpNo, err := courseAndTP(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.coordinator.Trigger(requestContext(c), courseID, tpNo, userIDFromContext(c)); err != nil {
		return respondError(c, h.logger, err, "failed to start processing")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "processing started", dto.ProcessingAcceptedResponse{
		CourseID: courseID,
		TPNo:     tpNo,
		Kind:     models.ProcessingKindRestructure,
		State:    string(service.ProcessingTriggering),
	})
}

func (h *TPHandler) refresh(c *fiber.Ctx) error {
	courseID, tpNo, err := courseAndTP(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.coordinator.Refresh(requestContext(c), courseID, tpNo, userIDFromContext(c)); err != nil {
		return respondError(c, h.logger, err, "failed to start refresh")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "refresh started", dto.ProcessingAcceptedResponse{
		CourseID: courseID,
		TPNo:     tpNo,
		Kind:     models.ProcessingKindRefresh,
		State:    string(service.ProcessingRefreshing),
	})
}

func (h *TPHandler) snapshot(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return utils.SendSuccess(c, "processing state", h.coordinator.Snapshot(courseID))
}

func (h *TPHandler) runs(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "pageSize")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}

	filter := repository.ProcessingRunFilter{
		CourseID: courseID,
		Kind:     models.ProcessingKind(strings.TrimSpace(c.Query("kind"))),
		Outcome:  models.ProcessingOutcome(strings.TrimSpace(c.Query("outcome"))),
		Page:     page,
		PageSize: pageSize,
	}
	if c.Query("tpNo") != "" {
		tpNo, err := parseQueryInt(c, "tpNo")
		if err != nil || tpNo <= 0 {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid tp number")
		}
		filter.TPNo = &tpNo
	}

	runs, total, err := h.coordinator.Runs(requestContext(c), filter)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list processing runs")
	}

	return utils.SendSuccess(c, "processing runs", dto.ProcessingRunListResponse{
		Items:      dto.NewProcessingRunResponses(runs),
		Pagination: dto.NewPaginationMeta(page, pageSize, total),
	})
}

func (h *TPHandler) latest(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	runs, err := h.coordinator.LatestRuns(requestContext(c), courseID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load latest processing runs")
	}
	return utils.SendSuccess(c, "latest processing runs", dto.NewProcessingRunResponses(runs))
}

func courseAndTP(c *fiber.Ctx) (uint, int, error) {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return 0, 0, err
	}
	tpNo, err := parseTPNo(c)
	if err != nil {
		return 0, 0, err
	}
	return courseID, tpNo, nil
}
