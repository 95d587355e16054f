package report

import "github.com/noah-isme/rendus-api/internal/models"

// CompletionPercentage returns the share of non-exempt TPs the student submitted,
// scaled to 0-100 and not rounded. No TPs yields 0; only exempt TPs yields 100.
func (e *Engine) CompletionPercentage(student models.Student, tps []models.TP) float64 {
	states := make([]models.SubmissionState, len(tps))
	for i, tp := range tps {
		states[i], _ = e.StateFor(tp, student.ID)
	}
	return CompletionFromStates(states)
}

// CompletionFromStates applies the completion rule to already classified states.
// The empty state stands for a missing or unrecognised status.
func CompletionFromStates(states []models.SubmissionState) float64 {
	if len(states) == 0 {
		return 0
	}

	nonExempt := 0
	submitted := 0
	for _, state := range states {
		if state.IsExempt() {
			continue
		}
		nonExempt++
		if state.CountsAsSubmitted() {
			submitted++
		}
	}

	if nonExempt == 0 {
		return 100
	}

	return 100 * float64(submitted) / float64(nonExempt)
}
