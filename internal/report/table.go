package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/noah-isme/rendus-api/internal/models"
)

const (
	// StudentHeader labels the first column.
	StudentHeader = "Étudiant"
	// PercentageHeader labels the trailing completion column.
	PercentageHeader = "% Rendus"
	// MissingName flags students without a display name.
	MissingName = "N/A"
)

var collationLocale = language.French

// Table is the report shared by the screen grid and the exporters. Rows, States,
// Students and Percentages are parallel slices in display order.
type Table struct {
	Headers     []string
	Rows        [][]string
	States      [][]models.SubmissionState
	Students    []models.Student
	Percentages []float64
}

// TPHeader formats the column header of a TP.
func TPHeader(no int) string {
	return fmt.Sprintf("TP %d", no)
}

// FormatPercentage renders a completion value with no decimals and a trailing %.
func FormatPercentage(value float64) string {
	return fmt.Sprintf("%.0f%%", math.Round(value))
}

// DisplayName returns the student name or the missing-name placeholder.
func DisplayName(student models.Student) string {
	if student.Name == "" {
		return MissingName
	}
	return student.Name
}

// BuildTable assembles headers, rows and the state matrix. Students are ordered by a
// stable, case-insensitive, locale-aware comparison of their names; TPs keep input order.
func (e *Engine) BuildTable(students []models.Student, tps []models.TP) Table {
	headers := make([]string, 0, len(tps)+2)
	headers = append(headers, StudentHeader)
	for _, tp := range tps {
		headers = append(headers, TPHeader(tp.No))
	}
	headers = append(headers, PercentageHeader)

	ordered := SortStudents(students)
	index := NewStatusIndex(tps)

	table := Table{
		Headers:     headers,
		Rows:        make([][]string, 0, len(ordered)),
		States:      make([][]models.SubmissionState, 0, len(ordered)),
		Students:    ordered,
		Percentages: make([]float64, 0, len(ordered)),
	}

	for _, student := range ordered {
		states := make([]models.SubmissionState, len(tps))
		row := make([]string, 0, len(tps)+2)
		row = append(row, DisplayName(student))

		for i := range tps {
			if record := index.Lookup(i, student.ID); record != nil {
				states[i], _ = e.Classify(record.StudentSubmission)
			}
			row = append(row, states[i].Glyph())
		}

		percentage := CompletionFromStates(states)
		row = append(row, FormatPercentage(percentage))

		table.Rows = append(table.Rows, row)
		table.States = append(table.States, states)
		table.Percentages = append(table.Percentages, percentage)
	}

	return table
}

// SortStudents returns a copy of the roster sorted by name. Missing names sort as the
// empty string, ahead of everyone else; equal names keep their input order.
func SortStudents(students []models.Student) []models.Student {
	ordered := make([]models.Student, len(students))
	copy(ordered, students)

	collator := collate.New(collationLocale)
	keys := make([]string, len(ordered))
	for i, student := range ordered {
		keys[i] = strings.ToLower(student.Name)
	}

	positions := make([]int, len(ordered))
	for i := range positions {
		positions[i] = i
	}
	sort.SliceStable(positions, func(a, b int) bool {
		return collator.CompareString(keys[positions[a]], keys[positions[b]]) < 0
	})

	sorted := make([]models.Student, len(ordered))
	for i, pos := range positions {
		sorted[i] = ordered[pos]
	}
	return sorted
}
