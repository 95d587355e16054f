package dto

import (
	"io"
	"strings"

	"github.com/noah-isme/rendus-api/internal/models"
)

// CourseRequest is the payload to create or update a course.
type CourseRequest struct {
	Name       string `json:"name" validate:"required,max=255"`
	Code       string `json:"code" validate:"required,max=64"`
	Semester   string `json:"semester" validate:"omitempty,max=32"`
	Year       int    `json:"year_course" validate:"required,gte=1900,lte=3000"`
	Teacher    string `json:"teacher" validate:"omitempty,max=255"`
	CourseType string `json:"courseType" validate:"omitempty,max=64"`
}

// ToModel converts the request into the backend course shape.
func (r CourseRequest) ToModel(id uint) models.CoursePreview {
	return models.CoursePreview{
		ID:         id,
		Name:       strings.TrimSpace(r.Name),
		Code:       strings.TrimSpace(r.Code),
		Semester:   strings.TrimSpace(r.Semester),
		Year:       r.Year,
		Teacher:    strings.TrimSpace(r.Teacher),
		CourseType: strings.TrimSpace(r.CourseType),
	}
}

// CourseSummaryResponse is a course as listed.
type CourseSummaryResponse struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	Semester   string `json:"semester"`
	Year       int    `json:"year_course"`
	Teacher    string `json:"teacher"`
	CourseType string `json:"courseType"`
}

// NewCourseSummaryResponse maps a backend course preview.
func NewCourseSummaryResponse(course models.CoursePreview) CourseSummaryResponse {
	return CourseSummaryResponse{
		ID:         course.ID,
		Name:       course.Name,
		Code:       course.Code,
		Semester:   course.Semester,
		Year:       course.Year,
		Teacher:    course.Teacher,
		CourseType: course.CourseType,
	}
}

// NewCourseSummaryResponses maps a course listing.
func NewCourseSummaryResponses(courses []models.CoursePreview) []CourseSummaryResponse {
	items := make([]CourseSummaryResponse, 0, len(courses))
	for _, course := range courses {
		items = append(items, NewCourseSummaryResponse(course))
	}
	return items
}

// CourseDetailResponse is a course with its roster and TPs.
type CourseDetailResponse struct {
	CourseSummaryResponse
	Students []StudentResponse `json:"students"`
	TPs      []TPResponse      `json:"tps"`
}

// NewCourseDetailResponse maps a full course.
func NewCourseDetailResponse(course models.Course) CourseDetailResponse {
	return CourseDetailResponse{
		CourseSummaryResponse: CourseSummaryResponse{
			ID:         course.ID,
			Name:       course.Name,
			Code:       course.Code,
			Semester:   course.Semester,
			Year:       course.Year,
			Teacher:    course.Teacher,
			CourseType: course.CourseType,
		},
		Students: NewStudentResponses(course.StudentList),
		TPs:      NewTPResponses(course.TPsList),
	}
}

// StudentRequest is the payload to enroll or update a student.
type StudentRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	Email     string `json:"email" validate:"required,email"`
	StudyType string `json:"studyType" validate:"omitempty,oneof=TEMPS_PLEIN TEMPS_PARTIEL"`
}

// ToModel converts the request into the backend student shape.
func (r StudentRequest) ToModel(id uint) models.Student {
	studyType := models.StudyType(r.StudyType)
	if studyType == "" {
		studyType = models.StudyTypeFullTime
	}
	return models.Student{
		ID:        id,
		Name:      strings.TrimSpace(r.Name),
		Email:     strings.ToLower(strings.TrimSpace(r.Email)),
		StudyType: studyType,
	}
}

// StudentResponse is a student with its display labels.
type StudentResponse struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	StudyType      string `json:"studyType"`
	StudyTypeLabel string `json:"study_type_label"`
}

// NewStudentResponse maps a student.
func NewStudentResponse(student models.Student) StudentResponse {
	return StudentResponse{
		ID:             student.ID,
		Name:           student.Name,
		Email:          student.Email,
		StudyType:      string(student.StudyType),
		StudyTypeLabel: student.StudyType.Label(),
	}
}

// NewStudentResponses maps a roster.
func NewStudentResponses(students []models.Student) []StudentResponse {
	items := make([]StudentResponse, 0, len(students))
	for _, student := range students {
		items = append(items, NewStudentResponse(student))
	}
	return items
}

// StudentImportResponse summarises a roster import.
type StudentImportResponse struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Names    []string `json:"names"`
}

// TPResponse is a TP with its download state.
type TPResponse struct {
	ID           uint               `json:"id"`
	No           int                `json:"no"`
	FileName     string             `json:"file_name,omitempty"`
	Downloadable bool               `json:"downloadable"`
	StatusCount  int                `json:"status_count"`
	Statuses     []StatusResponse   `json:"statuses,omitempty"`
	Submission   *SubmissionPayload `json:"submission,omitempty"`
}

// SubmissionPayload exposes the stored archive paths of a TP.
type SubmissionPayload struct {
	FileName           string `json:"file_name"`
	PathStorage        string `json:"path_storage"`
	PathFileStructured string `json:"path_file_structured"`
}

// NewTPResponse maps a TP.
func NewTPResponse(tp models.TP) TPResponse {
	resp := TPResponse{
		ID:           tp.ID,
		No:           tp.No,
		Downloadable: tp.Downloadable(),
		StatusCount:  len(tp.StatusStudents),
	}
	if tp.Submission != nil {
		resp.FileName = tp.Submission.FileName
		resp.Submission = &SubmissionPayload{
			FileName:           tp.Submission.FileName,
			PathStorage:        tp.Submission.PathStorage,
			PathFileStructured: tp.Submission.PathFileStructured,
		}
	}
	return resp
}

// NewTPResponses maps the TPs of a course.
func NewTPResponses(tps []models.TP) []TPResponse {
	items := make([]TPResponse, 0, len(tps))
	for _, tp := range tps {
		items = append(items, NewTPResponse(tp))
	}
	return items
}

// ArchiveDownload streams a restructured archive to the caller.
type ArchiveDownload struct {
	FileName      string
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}
