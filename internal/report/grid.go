package report

import (
	"strings"

	"github.com/noah-isme/rendus-api/internal/models"
)

// TPBadge is the readiness badge shown above a TP column.
type TPBadge string

const (
	BadgeProcessing  TPBadge = "processing"
	BadgeReady       TPBadge = "ready"
	BadgeNeedsUpdate TPBadge = "needs-update"
)

// Icon returns the material icon of the badge.
func (b TPBadge) Icon() string {
	switch b {
	case BadgeProcessing:
		return "sync"
	case BadgeReady:
		return "check"
	case BadgeNeedsUpdate:
		return "warning"
	default:
		return "help"
	}
}

// Label returns the display label of the badge.
func (b TPBadge) Label() string {
	switch b {
	case BadgeProcessing:
		return "En cours..."
	case BadgeReady:
		return "Prêt"
	case BadgeNeedsUpdate:
		return "En attente"
	default:
		return "Inconnu"
	}
}

// ProcessingView exposes the in-flight workflows of one course to the renderer.
type ProcessingView interface {
	IsProcessing(tpNo int) bool
	IsRefreshing(tpNo int) bool
}

// GridOptions narrows and decorates the screen grid.
type GridOptions struct {
	Search     string
	Processing ProcessingView
}

// Grid is the interactive table served to the course page.
type Grid struct {
	Headers       []string     `json:"headers"`
	Columns       []GridColumn `json:"columns"`
	Rows          []GridRow    `json:"rows"`
	Search        string       `json:"search,omitempty"`
	TotalStudents int          `json:"total_students"`
	ShownStudents int          `json:"shown_students"`
}

// GridColumn describes a TP column and its action affordances.
type GridColumn struct {
	TPID         uint    `json:"tp_id,omitempty"`
	No           int     `json:"no"`
	Header       string  `json:"header"`
	Badge        TPBadge `json:"badge"`
	BadgeIcon    string  `json:"badge_icon"`
	BadgeLabel   string  `json:"badge_label"`
	Downloadable bool    `json:"downloadable"`
	Processing   bool    `json:"processing"`
	Refreshing   bool    `json:"refreshing"`
	CanProcess   bool    `json:"can_process"`
	CanRefresh   bool    `json:"can_refresh"`
}

// GridRow is one student line of the grid.
type GridRow struct {
	StudentID       uint       `json:"student_id,omitempty"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	StudyType       string     `json:"study_type,omitempty"`
	StudyTypeLabel  string     `json:"study_type_label,omitempty"`
	Cells           []GridCell `json:"cells"`
	Percentage      float64    `json:"percentage"`
	PercentageLabel string     `json:"percentage_label"`
}

// GridCell is the status of one student for one TP.
type GridCell struct {
	TPNo     int                    `json:"tp_no"`
	StatusID uint                   `json:"status_id,omitempty"`
	State    models.SubmissionState `json:"state,omitempty"`
	Group    models.SubmissionGroup `json:"group"`
	Label    string                 `json:"label"`
	Icon     string                 `json:"icon"`
	Color    string                 `json:"color,omitempty"`
	Editable bool                   `json:"editable"`
}

// BadgeFor derives the readiness badge of a TP.
func BadgeFor(tp models.TP, view ProcessingView) TPBadge {
	if view != nil && view.IsProcessing(tp.No) {
		return BadgeProcessing
	}
	if tp.Downloadable() {
		return BadgeReady
	}
	return BadgeNeedsUpdate
}

// FilterStudents keeps students whose name contains the search term, ignoring case.
func FilterStudents(students []models.Student, search string) []models.Student {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return students
	}
	filtered := make([]models.Student, 0, len(students))
	for _, student := range students {
		if strings.Contains(strings.ToLower(student.Name), term) {
			filtered = append(filtered, student)
		}
	}
	return filtered
}

// BuildGrid renders the screen grid from the report table.
func (e *Engine) BuildGrid(students []models.Student, tps []models.TP, opts GridOptions) Grid {
	shown := FilterStudents(students, opts.Search)
	table := e.BuildTable(shown, tps)
	index := NewStatusIndex(tps)

	columns := make([]GridColumn, 0, len(tps))
	for _, tp := range tps {
		badge := BadgeFor(tp, opts.Processing)
		refreshing := opts.Processing != nil && opts.Processing.IsRefreshing(tp.No)
		columns = append(columns, GridColumn{
			TPID:         tp.ID,
			No:           tp.No,
			Header:       TPHeader(tp.No),
			Badge:        badge,
			BadgeIcon:    badge.Icon(),
			BadgeLabel:   badge.Label(),
			Downloadable: tp.Downloadable(),
			Processing:   badge == BadgeProcessing,
			Refreshing:   refreshing,
			CanProcess:   badge != BadgeProcessing,
			CanRefresh:   !refreshing,
		})
	}

	rows := make([]GridRow, 0, len(table.Students))
	for r, student := range table.Students {
		cells := make([]GridCell, 0, len(tps))
		for i, tp := range tps {
			state := table.States[r][i]
			cell := GridCell{
				TPNo:  tp.No,
				State: state,
				Group: state.Group(),
				Label: state.Label(),
				Icon:  state.Icon(),
				Color: state.Color(),
			}
			if record := index.Lookup(i, student.ID); record != nil {
				cell.StatusID = record.ID
				cell.Editable = record.ID != 0
			}
			cells = append(cells, cell)
		}

		rows = append(rows, GridRow{
			StudentID:       student.ID,
			Name:            DisplayName(student),
			Email:           student.Email,
			StudyType:       string(student.StudyType),
			StudyTypeLabel:  student.StudyType.Label(),
			Cells:           cells,
			Percentage:      table.Percentages[r],
			PercentageLabel: table.Rows[r][len(table.Rows[r])-1],
		})
	}

	return Grid{
		Headers:       table.Headers,
		Columns:       columns,
		Rows:          rows,
		Search:        strings.TrimSpace(opts.Search),
		TotalStudents: len(students),
		ShownStudents: len(shown),
	}
}
