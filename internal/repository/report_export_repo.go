package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/rendus-api/internal/models"
)

// ReportExportRepository persists the export journal.
type ReportExportRepository interface {
	Create(ctx context.Context, export *models.ReportExport) error
	ListByCourse(ctx context.Context, courseID uint, limit int) ([]models.ReportExport, error)
}

type reportExportRepository struct {
	db *gorm.DB
}

// NewReportExportRepository constructs the export journal repository.
func NewReportExportRepository(db *gorm.DB) ReportExportRepository {
	return &reportExportRepository{db: db}
}

func (r *reportExportRepository) Create(ctx context.Context, export *models.ReportExport) error {
	return r.db.WithContext(ctx).Create(export).Error
}

func (r *reportExportRepository) ListByCourse(ctx context.Context, courseID uint, limit int) ([]models.ReportExport, error) {
	if limit <= 0 {
		limit = 50
	}

	var exports []models.ReportExport
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&exports).Error
	return exports, err
}
