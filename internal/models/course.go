package models

import "strings"

// StudyType tags how a student is enrolled.
type StudyType string

const (
	StudyTypeFullTime StudyType = "TEMPS_PLEIN"
	StudyTypePartTime StudyType = "TEMPS_PARTIEL"
)

// Label returns the display label of the study type.
func (t StudyType) Label() string {
	switch t {
	case StudyTypeFullTime:
		return "Temps plein"
	case StudyTypePartTime:
		return "Temps partiel"
	default:
		return string(t)
	}
}

// CoursePreview is the summary returned by the course listing.
type CoursePreview struct {
	ID         uint   `json:"id,omitempty"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	Semester   string `json:"semester"`
	Year       int    `json:"year_course"`
	Teacher    string `json:"teacher"`
	CourseType string `json:"courseType"`
}

// Course is the full course detail including its roster and TPs.
type Course struct {
	ID          uint      `json:"id,omitempty"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Semester    string    `json:"semester"`
	Year        int       `json:"year_course"`
	Teacher     string    `json:"teacher"`
	CourseType  string    `json:"courseType"`
	StudentList []Student `json:"studentList"`
	TPsList     []TP      `json:"tpsList"`
}

// HasFullTitle reports whether name, code and year are all known.
func (c Course) HasFullTitle() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Code) != "" && c.Year != 0
}

// Student is a learner enrolled in a course.
type Student struct {
	ID        uint      `json:"id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	StudyType StudyType `json:"studyType"`
}

// TP is a practical assignment of a course.
type TP struct {
	ID             uint              `json:"id,omitempty"`
	No             int               `json:"no"`
	Submission     *SubmissionSource `json:"submission,omitempty"`
	StatusStudents []TPStatus        `json:"statusStudents"`
}

// Downloadable reports whether a restructured archive exists for the TP.
func (t TP) Downloadable() bool {
	return t.Submission != nil && strings.TrimSpace(t.Submission.PathFileStructured) != ""
}

// SubmissionSource describes the uploaded archive of a TP.
type SubmissionSource struct {
	ID                 uint   `json:"id,omitempty"`
	FileName           string `json:"fileName"`
	PathStorage        string `json:"pathStorage"`
	PathFileStructured string `json:"pathFileStructured"`
}

// TPStatus links one student to one TP.
type TPStatus struct {
	ID                uint               `json:"id,omitempty"`
	StudentID         uint               `json:"studentId"`
	TPID              uint               `json:"tpId"`
	StudentSubmission RawSubmissionValue `json:"studentSubmission"`
}
