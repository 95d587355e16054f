package handler

import (
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/service"
	"github.com/noah-isme/rendus-api/internal/utils"
)

const thresholdMessage = "threshold must be a percentage between 0 and 100"

// ReportHandler serves the completion grid and its exports.
type ReportHandler struct {
	service          service.ReportService
	defaultThreshold float64
	logger           zerolog.Logger
}

// NewReportHandler constructs a report handler.
func NewReportHandler(service service.ReportService, defaultThreshold float64, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service:          service,
		defaultThreshold: defaultThreshold,
		logger:           logger.With().Str("component", "report_handler").Logger(),
	}
}

// Register wires report routes under /courses.
func (h *ReportHandler) Register(router fiber.Router) {
	router.Get("/:courseId/report", h.grid)
	router.Get("/:courseId/report/pdf", h.pdf)
	router.Get("/:courseId/report/csv", h.csv)
	router.Get("/:courseId/report/exports", h.exports)
}

func (h *ReportHandler) grid(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	grid, err := h.service.Grid(requestContext(c), courseID, strings.TrimSpace(c.Query("search")))
	if err != nil {
		return respondError(c, h.logger, err, "failed to build report")
	}
	return utils.SendSuccess(c, "report generated", grid)
}

func (h *ReportHandler) pdf(c *fiber.Ctx) error {
	req, problem := h.exportRequest(c)
	if problem != "" {
		return utils.SendError(c, fiber.StatusBadRequest, problem)
	}

	file, err := h.service.ExportPDF(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to export report")
	}
	return sendExport(c, file)
}

func (h *ReportHandler) csv(c *fiber.Ctx) error {
	req, problem := h.exportRequest(c)
	if problem != "" {
		return utils.SendError(c, fiber.StatusBadRequest, problem)
	}

	file, err := h.service.ExportCSV(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to export report")
	}
	return sendExport(c, file)
}

func (h *ReportHandler) exports(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	exports, err := h.service.ListExports(requestContext(c), courseID, limit)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list exports")
	}
	return utils.SendSuccess(c, "report exports", exports)
}

// exportRequest returns a non-empty problem when the query is unusable.
func (h *ReportHandler) exportRequest(c *fiber.Ctx) (dto.ExportRequest, string) {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return dto.ExportRequest{}, err.Error()
	}

	threshold := h.defaultThreshold
	if raw := strings.TrimSpace(c.Query("threshold")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 || parsed > 100 {
			return dto.ExportRequest{}, thresholdMessage
		}
		threshold = parsed
	}

	return dto.ExportRequest{CourseID: courseID, Threshold: threshold, ActorID: userIDFromContext(c)}, ""
}

func sendExport(c *fiber.Ctx, file dto.ExportFile) error {
	c.Attachment(file.FileName)
	c.Set(fiber.HeaderContentType, file.ContentType)
	if file.ArchiveURL != "" {
		c.Set("X-Archive-URL", file.ArchiveURL)
	}
	return c.Status(fiber.StatusOK).Send(file.Content)
}
