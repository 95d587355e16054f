package models

import "time"

// ExportFormat identifies the file type of a report export.
type ExportFormat string

const (
	ExportFormatPDF ExportFormat = "pdf"
	ExportFormatCSV ExportFormat = "csv"
)

// ReportExport records one generated report document.
type ReportExport struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	CourseID        uint         `gorm:"not null;index" json:"course_id"`
	Format          ExportFormat `gorm:"size:8;not null" json:"format"`
	FileName        string       `gorm:"size:255;not null" json:"file_name"`
	Threshold       float64      `json:"threshold"`
	Orientation     string       `gorm:"size:16" json:"orientation"`
	StudentCount    int          `json:"student_count"`
	AssignmentCount int          `json:"assignment_count"`
	SizeBytes       int64        `json:"size_bytes"`
	ArchiveURL      string       `gorm:"size:512" json:"archive_url,omitempty"`
	ActorID         uint         `json:"actor_id"`
	CreatedAt       time.Time    `json:"created_at"`
}
