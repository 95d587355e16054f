package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/rendus-api/internal/models"
)

// ProcessingRunFilter narrows processing journal queries.
type ProcessingRunFilter struct {
	CourseID uint
	TPNo     *int
	Kind     models.ProcessingKind
	Outcome  models.ProcessingOutcome
	Page     int
	PageSize int
}

// ProcessingRunRepository persists coordinator runs.
type ProcessingRunRepository interface {
	Create(ctx context.Context, run *models.ProcessingRun) error
	List(ctx context.Context, filter ProcessingRunFilter) ([]models.ProcessingRun, int64, error)
	LatestByTP(ctx context.Context, courseID uint) (map[int]models.ProcessingRun, error)
}

type processingRunRepository struct {
	db *gorm.DB
}

// NewProcessingRunRepository constructs the processing run repository.
func NewProcessingRunRepository(db *gorm.DB) ProcessingRunRepository {
	return &processingRunRepository{db: db}
}

func (r *processingRunRepository) Create(ctx context.Context, run *models.ProcessingRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *processingRunRepository) List(ctx context.Context, filter ProcessingRunFilter) ([]models.ProcessingRun, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ProcessingRun{}).Where("course_id = ?", filter.CourseID)

	if filter.TPNo != nil {
		query = query.Where("tp_no = ?", *filter.TPNo)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var runs []models.ProcessingRun
	if err := query.Order("started_at DESC").Order("id DESC").Find(&runs).Error; err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// LatestByTP returns the most recent run of each TP of the course.
func (r *processingRunRepository) LatestByTP(ctx context.Context, courseID uint) (map[int]models.ProcessingRun, error) {
	var runs []models.ProcessingRun
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("started_at DESC").
		Order("id DESC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[int]models.ProcessingRun)
	for _, run := range runs {
		if _, seen := latest[run.TPNo]; !seen {
			latest[run.TPNo] = run
		}
	}
	return latest, nil
}
