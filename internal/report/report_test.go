package report

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rendus-api/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

func status(id, studentID uint, state models.SubmissionState) models.TPStatus {
	return models.TPStatus{ID: id, StudentID: studentID, StudentSubmission: models.RawState(state)}
}

func tpWith(no int, statuses ...models.TPStatus) models.TP {
	return models.TP{ID: uint(no), No: no, StatusStudents: statuses}
}

func TestFindStatus(t *testing.T) {
	tp := tpWith(1,
		status(10, 1, models.SubmissionDone),
		status(11, 2, models.SubmissionDoneLate),
		status(12, 1, models.SubmissionExempt),
	)

	found := FindStatus(tp, 1)
	require.NotNil(t, found)
	require.Equal(t, uint(10), found.ID)

	require.Nil(t, FindStatus(tp, 0))
	require.Nil(t, FindStatus(tp, 99))
	require.Nil(t, FindStatus(models.TP{No: 2}, 1))

	index := NewStatusIndex([]models.TP{tp})
	require.Equal(t, uint(10), index.Lookup(0, 1).ID)
	require.Nil(t, index.Lookup(1, 1))
	require.Nil(t, index.Lookup(0, 0))
}

func TestCompletionPercentage(t *testing.T) {
	engine := newTestEngine()
	student := models.Student{ID: 1, Name: "Alice"}

	require.Zero(t, engine.CompletionPercentage(student, nil))

	allExempt := []models.TP{
		tpWith(1, status(1, 1, models.SubmissionExempt)),
		tpWith(2, status(2, 1, models.SubmissionExempt)),
	}
	require.Equal(t, 100.0, engine.CompletionPercentage(student, allExempt))

	mixed := []models.TP{
		tpWith(1, status(1, 1, models.SubmissionDone)),
		tpWith(2, status(2, 1, models.SubmissionDoneButMediocre)),
		tpWith(3, status(3, 1, models.SubmissionDoneButNothing)),
		tpWith(4),
	}
	require.Equal(t, 50.0, engine.CompletionPercentage(student, mixed))

	thirds := []models.TP{
		tpWith(1, status(1, 1, models.SubmissionDone)),
		tpWith(2, status(2, 1, models.SubmissionNotDoneMissing)),
		tpWith(3, status(3, 1, models.SubmissionNotDoneMissing)),
	}
	assert.InDelta(t, 100.0/3, engine.CompletionPercentage(student, thirds), 1e-9)
}

func TestCompletionRoundedInTable(t *testing.T) {
	engine := newTestEngine()
	tps := []models.TP{
		tpWith(1, status(1, 1, models.SubmissionDone)),
		tpWith(2, status(2, 1, models.SubmissionExempt)),
		tpWith(3, status(3, 1, models.SubmissionNotDoneMissing)),
		tpWith(4, status(4, 1, models.SubmissionDoneButMediocre)),
	}

	pct := engine.CompletionPercentage(models.Student{ID: 1}, tps)
	assert.InDelta(t, 66.666, pct, 0.01)

	table := engine.BuildTable([]models.Student{{ID: 1, Name: "Zoé"}}, tps)
	require.Equal(t, "67%", table.Rows[0][len(table.Rows[0])-1])
}

func TestClassifyLegacyBooleans(t *testing.T) {
	engine := newTestEngine()
	tps := []models.TP{
		{No: 1, StatusStudents: []models.TPStatus{{ID: 1, StudentID: 1, StudentSubmission: models.RawBoolean(true)}}},
		{No: 2, StatusStudents: []models.TPStatus{{ID: 2, StudentID: 1, StudentSubmission: models.RawBoolean(false)}}},
	}

	state, ok := engine.StateFor(tps[0], 1)
	require.True(t, ok)
	require.Equal(t, models.SubmissionDone, state)
	require.Equal(t, 50.0, engine.CompletionPercentage(models.Student{ID: 1}, tps))
}

func TestBuildTableEndToEnd(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name        string
		students    []models.Student
		tps         []models.TP
		wantNames   []string
		wantPercent []string
		wantValues  []float64
	}{
		{
			name:     "exempt student counts as complete and rows sort by name",
			students: []models.Student{{ID: 1, Name: "Bob"}, {ID: 2, Name: "Alice"}},
			tps: []models.TP{
				tpWith(1, status(1, 1, models.SubmissionDone), status(2, 2, models.SubmissionExempt)),
			},
			wantNames:   []string{"Alice", "Bob"},
			wantPercent: []string{"100%", "100%"},
			wantValues:  []float64{100, 100},
		},
		{
			name:     "exempt assignment leaves the denominator",
			students: []models.Student{{ID: 1, Name: "Alice"}},
			tps: []models.TP{
				tpWith(1, status(1, 1, models.SubmissionDone)),
				tpWith(2, status(2, 1, models.SubmissionNotDoneMissing)),
				tpWith(3, status(3, 1, models.SubmissionExempt)),
			},
			wantNames:   []string{"Alice"},
			wantPercent: []string{"50%"},
			wantValues:  []float64{50},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			table := engine.BuildTable(tc.students, tc.tps)
			require.Len(t, table.Rows, len(tc.wantNames))
			for i, row := range table.Rows {
				require.Equal(t, tc.wantNames[i], row[0])
				require.Equal(t, tc.wantPercent[i], row[len(row)-1])
				require.Equal(t, tc.wantValues[i], table.Percentages[i])
			}
		})
	}
}

func TestClassifyRejectsGarbage(t *testing.T) {
	engine := newTestEngine()
	state, ok := engine.Classify(models.RawSubmissionValue{Kind: models.RawString, Text: "LATE"})
	require.False(t, ok)
	require.Empty(t, state)
}

func TestBuildTableHeadersAndCells(t *testing.T) {
	engine := newTestEngine()
	tps := []models.TP{
		tpWith(3, status(1, 1, models.SubmissionDoneGood), status(2, 2, models.SubmissionDoneButNothing)),
		tpWith(1, status(3, 1, models.SubmissionDone)),
	}
	students := []models.Student{
		{ID: 2, Name: "bob"},
		{ID: 1, Name: "Alice"},
	}

	table := engine.BuildTable(students, tps)

	require.Equal(t, []string{"Étudiant", "TP 3", "TP 1", "% Rendus"}, table.Headers)
	require.Equal(t, []string{"Alice", "+", "", "100%"}, table.Rows[0])
	require.Equal(t, []string{"bob", "E", "", "0%"}, table.Rows[1])
	require.Equal(t, []models.SubmissionState{models.SubmissionDoneGood, models.SubmissionDone}, table.States[0])
	require.Equal(t, models.SubmissionState(""), table.States[1][1])
	for _, row := range table.Rows {
		require.Len(t, row, len(tps)+2)
	}
}

func TestSortStudentsStableCaseInsensitive(t *testing.T) {
	students := []models.Student{
		{ID: 1, Name: "bob"},
		{ID: 2, Name: "Alice"},
		{ID: 3, Name: "alice"},
		{ID: 4, Name: ""},
		{ID: 5, Name: "Emma"},
		{ID: 6, Name: "Élodie"},
	}

	sorted := SortStudents(students)
	ids := make([]uint, 0, len(sorted))
	for _, student := range sorted {
		ids = append(ids, student.ID)
	}
	require.Equal(t, []uint{4, 2, 3, 1, 6, 5}, ids)
	require.Equal(t, uint(1), students[0].ID, "input must not be reordered")
}

func TestBuildTableMissingName(t *testing.T) {
	table := newTestEngine().BuildTable([]models.Student{{ID: 1}}, nil)
	require.Equal(t, []string{"N/A", "0%"}, table.Rows[0])
}

func TestBuildTableDeterministic(t *testing.T) {
	engine := newTestEngine()
	tps := []models.TP{
		tpWith(1, status(1, 1, models.SubmissionDone), status(2, 2, models.SubmissionDoneLate)),
		tpWith(2, status(3, 2, models.SubmissionExempt)),
	}
	students := []models.Student{{ID: 1, Name: "Sam"}, {ID: 2, Name: "sam"}}

	first := engine.BuildTable(students, tps)
	second := engine.BuildTable(students, tps)
	require.Equal(t, first, second)
}
