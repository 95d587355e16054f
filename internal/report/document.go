package report

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/rendus-api/internal/models"
)

const (
	// DefaultLandscapeAfter is the assignment count above which documents are landscape.
	DefaultLandscapeAfter = 8
	// DefaultThreshold is the pass mark used when the caller does not supply one.
	DefaultThreshold = 75.0

	FallbackTitle = "Tableau des Rendus"
	LegendTitle   = "Légende:"
	LegendPerRow  = 4

	PageMargin       = 14.0
	TableStartY      = 48.0
	NameColumnWidth  = 40.0
	PercentageWidth  = 25.0
	MinTPColumnWidth = 15.0

	RowBorderWidth     = 0.5
	SectionBorderWidth = 0.75
	GridLineWidth      = 0.3
)

// ErrInvalidThreshold is returned when a pass mark falls outside 0-100.
var ErrInvalidThreshold = errors.New("threshold must be between 0 and 100")

// Orientation is the page layout of an exported document.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// PageWidth returns the A4 width in millimetres for the orientation.
func (o Orientation) PageWidth() float64 {
	if o == Landscape {
		return 297
	}
	return 210
}

// PageHeight returns the A4 height in millimetres for the orientation.
func (o Orientation) PageHeight() float64 {
	if o == Landscape {
		return 210
	}
	return 297
}

// RGB is a fill or text colour.
type RGB struct {
	R, G, B int
}

var (
	ColorPass     = RGB{200, 230, 201}
	ColorLate     = RGB{255, 224, 178}
	ColorFail     = RGB{255, 205, 210}
	ColorExempt   = RGB{207, 216, 220}
	ColorHeader   = RGB{63, 81, 181}
	ColorWhite    = RGB{255, 255, 255}
	ColorBlack    = RGB{0, 0, 0}
	ColorGridLine = RGB{100, 100, 100}
)

// LegendItem is one swatch of the document legend.
type LegendItem struct {
	Glyph string
	Label string
	Color RGB
}

// Legend lists the swatches printed above the table.
var Legend = []LegendItem{
	{"", "Rendu", ColorPass},
	{"", "Retard", ColorLate},
	{"", "Non rendu", ColorFail},
	{"", "Exempté", ColorExempt},
	{"+", "Bon", ColorPass},
	{"E", "Vide", ColorFail},
	{"~", "Médiocre", ColorLate},
}

// Align is the horizontal alignment of a cell.
type Align string

const (
	AlignLeft   Align = "L"
	AlignCenter Align = "C"
	AlignRight  Align = "R"
)

// Edge names one side of a cell.
type Edge string

const (
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
	EdgeLeft   Edge = "left"
	EdgeRight  Edge = "right"
)

// Border is an emphasised line drawn over the regular grid.
type Border struct {
	Edge  Edge
	Width float64
}

// CellStyle carries the content and presentation of one document cell.
type CellStyle struct {
	Text      string
	Align     Align
	Bold      bool
	Fill      *RGB
	TextColor RGB
	Borders   []Border
}

// DocumentPlan is a fully resolved export, independent of the PDF backend.
type DocumentPlan struct {
	FileName      string
	Title         string
	ThresholdLine string
	Threshold     float64
	Orientation   Orientation
	LegendRows    [][]LegendItem
	ColumnWidths  []float64
	Header        []CellStyle
	Body          [][]CellStyle
	Table         Table
}

// ValidateThreshold rejects pass marks outside 0-100.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return ErrInvalidThreshold
	}
	return nil
}

// OrientationFor picks landscape when the assignment count exceeds the configured limit.
func (e *Engine) OrientationFor(tpCount int) Orientation {
	if tpCount > e.landscapeAfter {
		return Landscape
	}
	return Portrait
}

// DocumentTitle returns "name (code) - year" or the generic title when any part is missing.
func DocumentTitle(course *models.Course) string {
	if course == nil || !course.HasFullTitle() {
		return FallbackTitle
	}
	return fmt.Sprintf("%s (%s) - %d", course.Name, course.Code, course.Year)
}

// ThresholdLine formats the pass mark shown under the title.
func ThresholdLine(threshold float64) string {
	return fmt.Sprintf("Seuil de réussite: %s%%", strconv.FormatFloat(threshold, 'f', -1, 64))
}

// ExportFileName derives the download name from the course code or the UTC date.
func ExportFileName(course *models.Course, now time.Time) string {
	if course != nil && strings.TrimSpace(course.Code) != "" {
		return fmt.Sprintf("%s_TauxRendus.pdf", strings.TrimSpace(course.Code))
	}
	return fmt.Sprintf("TauxRendus_%s.pdf", now.UTC().Format("2006-01-02"))
}

// Passes reports whether a completion value meets the threshold. The value is compared
// as displayed, rounded to a whole percent, and the boundary counts as a pass.
func Passes(percentage, threshold float64) bool {
	return math.Round(percentage) >= threshold
}

// CellColor resolves the fill of an assignment cell: the glyph first, then the state
// for states that print no glyph.
func CellColor(state models.SubmissionState) *RGB {
	if color := colorForGlyph(state.Glyph()); color != nil {
		return color
	}
	return colorForState(state)
}

func colorForGlyph(glyph string) *RGB {
	switch glyph {
	case "+":
		return rgb(ColorPass)
	case "~":
		return rgb(ColorLate)
	case "E":
		return rgb(ColorFail)
	default:
		return nil
	}
}

func colorForState(state models.SubmissionState) *RGB {
	switch state {
	case models.SubmissionDone, models.SubmissionDoneGood:
		return rgb(ColorPass)
	case models.SubmissionDoneLate, models.SubmissionDoneButMediocre:
		return rgb(ColorLate)
	case models.SubmissionDoneButNothing, models.SubmissionNotDoneMissing:
		return rgb(ColorFail)
	case models.SubmissionExempt:
		return rgb(ColorExempt)
	default:
		return nil
	}
}

func rgb(c RGB) *RGB {
	return &c
}

// LegendRows splits the legend into rows of LegendPerRow items.
func LegendRows() [][]LegendItem {
	rows := make([][]LegendItem, 0, (len(Legend)+LegendPerRow-1)/LegendPerRow)
	for start := 0; start < len(Legend); start += LegendPerRow {
		end := start + LegendPerRow
		if end > len(Legend) {
			end = len(Legend)
		}
		rows = append(rows, Legend[start:end])
	}
	return rows
}

// ColumnWidths sizes the name and percentage columns fixed and shares the rest of
// the printable width between TP columns, never below MinTPColumnWidth.
func ColumnWidths(orientation Orientation, tpCount int) []float64 {
	widths := make([]float64, 0, tpCount+2)
	widths = append(widths, NameColumnWidth)
	if tpCount > 0 {
		available := orientation.PageWidth() - 2*PageMargin - NameColumnWidth - PercentageWidth
		width := math.Max(MinTPColumnWidth, available/float64(tpCount))
		for i := 0; i < tpCount; i++ {
			widths = append(widths, width)
		}
	}
	return append(widths, PercentageWidth)
}

// SectionBorders returns the emphasised borders of a cell at column col out of
// columns. Every cell gets top and bottom lines; the name column is closed on the
// left and the percentage column is separated from the last TP on both sides.
func SectionBorders(col, columns int) []Border {
	borders := []Border{
		{Edge: EdgeTop, Width: RowBorderWidth},
		{Edge: EdgeBottom, Width: RowBorderWidth},
	}
	lastTP := columns - 2
	percentage := columns - 1
	if col == 0 {
		borders = append(borders, Border{Edge: EdgeLeft, Width: SectionBorderWidth})
	}
	if col == lastTP && col > 0 {
		borders = append(borders, Border{Edge: EdgeRight, Width: SectionBorderWidth})
	}
	if col == percentage {
		borders = append(borders, Border{Edge: EdgeLeft, Width: SectionBorderWidth})
	}
	return borders
}

// PlanDocument resolves every element of the exported document. A nil course falls
// back to the generic title and a dated file name.
func (e *Engine) PlanDocument(course *models.Course, students []models.Student, tps []models.TP, threshold float64, now time.Time) (DocumentPlan, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return DocumentPlan{}, err
	}

	table := e.BuildTable(students, tps)
	orientation := e.OrientationFor(len(tps))
	columns := len(table.Headers)

	header := make([]CellStyle, columns)
	for col, text := range table.Headers {
		align := AlignCenter
		if col == 0 {
			align = AlignLeft
		}
		header[col] = CellStyle{
			Text:      text,
			Align:     align,
			Bold:      true,
			Fill:      rgb(ColorHeader),
			TextColor: ColorWhite,
			Borders:   SectionBorders(col, columns),
		}
	}

	body := make([][]CellStyle, len(table.Rows))
	for r, row := range table.Rows {
		cells := make([]CellStyle, columns)
		for col, text := range row {
			cell := CellStyle{Text: text, Align: AlignCenter, TextColor: ColorBlack, Borders: SectionBorders(col, columns)}
			switch {
			case col == 0:
				cell.Align = AlignLeft
			case col == columns-1:
				cell.Align = AlignRight
				cell.Bold = true
				if Passes(table.Percentages[r], threshold) {
					cell.Fill = rgb(ColorPass)
				} else {
					cell.Fill = rgb(ColorFail)
				}
			default:
				cell.Fill = CellColor(table.States[r][col-1])
			}
			cells[col] = cell
		}
		body[r] = cells
	}

	return DocumentPlan{
		FileName:      ExportFileName(course, now),
		Title:         DocumentTitle(course),
		ThresholdLine: ThresholdLine(threshold),
		Threshold:     threshold,
		Orientation:   orientation,
		LegendRows:    LegendRows(),
		ColumnWidths:  ColumnWidths(orientation, len(tps)),
		Header:        header,
		Body:          body,
		Table:         table,
	}, nil
}
