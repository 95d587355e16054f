package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/middleware"
	"github.com/noah-isme/rendus-api/internal/service"
	"github.com/noah-isme/rendus-api/internal/utils"
)

// CourseHandler exposes course and roster management.
type CourseHandler struct {
	service service.CourseService
	logger  zerolog.Logger
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(service service.CourseService, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		service: service,
		logger:  logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register wires course and student routes under /courses.
func (h *CourseHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:courseId", h.get)
	router.Put("/:courseId", h.update)
	router.Delete("/:courseId", middleware.RequireConfirmation(), h.delete)

	router.Get("/:courseId/students", h.listStudents)
	router.Post("/:courseId/students", h.addStudent)
	router.Post("/:courseId/students/import", h.importStudents)
	router.Put("/:courseId/students/:studentId", h.updateStudent)
	router.Delete("/:courseId/students/:studentId", middleware.RequireConfirmation(), h.deleteStudent)
}

func (h *CourseHandler) list(c *fiber.Ctx) error {
	courses, err := h.service.List(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list courses")
	}
	return utils.SendSuccess(c, "courses retrieved", courses)
}

func (h *CourseHandler) get(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	course, err := h.service.Get(requestContext(c), courseID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load course")
	}
	return utils.SendSuccess(c, "course retrieved", course)
}

func (h *CourseHandler) create(c *fiber.Ctx) error {
	var req dto.CourseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	course, err := h.service.Create(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create course")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "course created", course)
}

func (h *CourseHandler) update(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.CourseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	course, err := h.service.Update(requestContext(c), courseID, req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update course")
	}
	return utils.SendSuccess(c, "course updated", course)
}

func (h *CourseHandler) delete(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(requestContext(c), courseID); err != nil {
		return respondError(c, h.logger, err, "failed to delete course")
	}
	return utils.SendSuccess(c, "course deleted", nil)
}

func (h *CourseHandler) listStudents(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	students, err := h.service.ListStudents(requestContext(c), courseID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list students")
	}
	return utils.SendSuccess(c, "students retrieved", students)
}

func (h *CourseHandler) addStudent(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.StudentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.AddStudent(requestContext(c), courseID, req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to add student")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student added", student)
}

func (h *CourseHandler) importStudents(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	result, err := h.service.ImportStudents(requestContext(c), courseID, file)
	if err != nil {
		return respondError(c, h.logger, err, "failed to import students")
	}
	return utils.SendSuccess(c, "students imported", result)
}

func (h *CourseHandler) updateStudent(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseIDParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.StudentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.UpdateStudent(requestContext(c), courseID, studentID, req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update student")
	}
	return utils.SendSuccess(c, "student updated", student)
}

func (h *CourseHandler) deleteStudent(c *fiber.Ctx) error {
	courseID, err := parseIDParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseIDParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteStudent(requestContext(c), courseID, studentID); err != nil {
		return respondError(c, h.logger, err, "failed to delete student")
	}
	return utils.SendSuccess(c, "student deleted", nil)
}
