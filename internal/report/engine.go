package report

import (
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/models"
)

// Engine turns course snapshots into report tables, screen grids and export documents.
// It is safe for concurrent use.
type Engine struct {
	logger         zerolog.Logger
	landscapeAfter int
}

// Option customises an Engine.
type Option func(*Engine)

// WithLandscapeAfter sets the assignment count above which documents switch to landscape.
func WithLandscapeAfter(count int) Option {
	return func(e *Engine) {
		if count > 0 {
			e.landscapeAfter = count
		}
	}
}

// NewEngine builds a report engine.
func NewEngine(logger zerolog.Logger, opts ...Option) *Engine {
	engine := &Engine{
		logger:         logger.With().Str("component", "report_engine").Logger(),
		landscapeAfter: DefaultLandscapeAfter,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Classify validates a raw status value. Unrecognised non-empty values are logged and
// reported as unknown.
func (e *Engine) Classify(raw interface{}) (models.SubmissionState, bool) {
	state, ok := models.ClassifySubmissionState(raw)
	if !ok && !isEmptyValue(raw) {
		e.logger.Warn().Interface("value", raw).Msg("invalid submission type value")
	}
	return state, ok
}

// StateFor resolves and classifies the status of a student for a TP.
func (e *Engine) StateFor(tp models.TP, studentID uint) (models.SubmissionState, bool) {
	record := FindStatus(tp, studentID)
	if record == nil {
		return "", false
	}
	return e.Classify(record.StudentSubmission)
}

func isEmptyValue(raw interface{}) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case models.RawSubmissionValue:
		return v.IsNull()
	case *models.RawSubmissionValue:
		return v == nil || v.IsNull()
	default:
		return false
	}
}
