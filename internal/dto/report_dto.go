package dto

import (
	"time"

	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/report"
)

// ReportGridResponse is the screen report of a course.
type ReportGridResponse struct {
	CourseID    uint        `json:"course_id"`
	Title       string      `json:"title"`
	Grid        report.Grid `json:"grid"`
	GeneratedAt time.Time   `json:"generated_at"`
	CacheHit    bool        `json:"cache_hit"`
}

// ExportRequest asks for a report document.
type ExportRequest struct {
	CourseID  uint    `validate:"required"`
	Threshold float64 `validate:"gte=0,lte=100"`
	ActorID   uint
}

// ExportFile is a generated report document.
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
	ArchiveURL  string
}

// ReportExportResponse is one export journal entry.
type ReportExportResponse struct {
	ID              uint                `json:"id"`
	Format          models.ExportFormat `json:"format"`
	FileName        string              `json:"file_name"`
	Threshold       float64             `json:"threshold"`
	Orientation     string              `json:"orientation,omitempty"`
	StudentCount    int                 `json:"student_count"`
	AssignmentCount int                 `json:"assignment_count"`
	SizeBytes       int64               `json:"size_bytes"`
	ArchiveURL      string              `json:"archive_url,omitempty"`
	ActorID         uint                `json:"actor_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// NewReportExportResponses maps export journal entries.
func NewReportExportResponses(exports []models.ReportExport) []ReportExportResponse {
	items := make([]ReportExportResponse, 0, len(exports))
	for _, export := range exports {
		items = append(items, ReportExportResponse{
			ID:              export.ID,
			Format:          export.Format,
			FileName:        export.FileName,
			Threshold:       export.Threshold,
			Orientation:     export.Orientation,
			StudentCount:    export.StudentCount,
			AssignmentCount: export.AssignmentCount,
			SizeBytes:       export.SizeBytes,
			ArchiveURL:      export.ArchiveURL,
			ActorID:         export.ActorID,
			CreatedAt:       export.CreatedAt,
		})
	}
	return items
}
