package report

import "github.com/noah-isme/rendus-api/internal/models"

// FindStatus returns the first status record of the TP that belongs to the student,
// or nil when the TP has no statuses or the student identifier is unset.
func FindStatus(tp models.TP, studentID uint) *models.TPStatus {
	if tp.StatusStudents == nil || studentID == 0 {
		return nil
	}
	for i := range tp.StatusStudents {
		if tp.StatusStudents[i].StudentID == studentID {
			return &tp.StatusStudents[i]
		}
	}
	return nil
}

// StatusIndex pre-indexes status records by TP position and student so a render
// cycle scans each TP once. Duplicates keep the first match, like FindStatus.
type StatusIndex struct {
	byTP []map[uint]*models.TPStatus
}

// NewStatusIndex indexes the statuses of every TP.
func NewStatusIndex(tps []models.TP) *StatusIndex {
	index := &StatusIndex{byTP: make([]map[uint]*models.TPStatus, len(tps))}
	for i := range tps {
		records := tps[i].StatusStudents
		byStudent := make(map[uint]*models.TPStatus, len(records))
		for j := range records {
			if _, exists := byStudent[records[j].StudentID]; !exists {
				byStudent[records[j].StudentID] = &records[j]
			}
		}
		index.byTP[i] = byStudent
	}
	return index
}

// Lookup returns the status of the student for the TP at position tpIndex.
func (idx *StatusIndex) Lookup(tpIndex int, studentID uint) *models.TPStatus {
	if idx == nil || studentID == 0 || tpIndex < 0 || tpIndex >= len(idx.byTP) {
		return nil
	}
	return idx.byTP[tpIndex][studentID]
}
