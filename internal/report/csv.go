package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// CSVRecord is one student/TP pair of the CSV export. Students without TPs still get a
// single line with empty TP columns so the roster stays complete.
type CSVRecord struct {
	Student    string `csv:"student"`
	Email      string `csv:"email"`
	StudyType  string `csv:"study_type"`
	TP         string `csv:"tp"`
	State      string `csv:"state"`
	Label      string `csv:"label"`
	Percentage string `csv:"completion"`
	Passed     bool   `csv:"passed"`
}

// CSVRecords flattens a table into export records, in table order.
func CSVRecords(table Table, threshold float64) []CSVRecord {
	records := make([]CSVRecord, 0, len(table.Students)*max(1, len(table.Headers)-2))
	for r, student := range table.Students {
		base := CSVRecord{
			Student:    DisplayName(student),
			Email:      student.Email,
			StudyType:  student.StudyType.Label(),
			Percentage: FormatPercentage(table.Percentages[r]),
			Passed:     Passes(table.Percentages[r], threshold),
		}
		tpHeaders := table.Headers[1 : len(table.Headers)-1]
		if len(tpHeaders) == 0 {
			records = append(records, base)
			continue
		}
		for i, header := range tpHeaders {
			record := base
			record.TP = header
			state := table.States[r][i]
			record.State = string(state)
			record.Label = state.Label()
			records = append(records, record)
		}
	}
	return records
}

// CSVFileName mirrors the PDF name with a .csv extension.
func CSVFileName(pdfName string) string {
	return strings.TrimSuffix(pdfName, ".pdf") + ".csv"
}

// WriteCSV writes the table as CSV with a header line.
func WriteCSV(w io.Writer, table Table, threshold float64) error {
	records := CSVRecords(table, threshold)
	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// RenderCSVBytes renders the table into memory.
func RenderCSVBytes(table Table, threshold float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table, threshold); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
