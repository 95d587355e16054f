package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	fontFamily     = "Helvetica"
	titleFontSize  = 18
	subFontSize    = 10
	legendFontSize = 9
	tableFontSize  = 11
	rowHeight      = 9.0
	legendX        = 50.0
	legendY        = 32.0
	legendSwatch   = 4.0
	legendRowGap   = 6.0
)

// RenderPDF writes the plan as an A4 PDF. Document dates are pinned to now so the
// same input produces the same bytes.
func RenderPDF(w io.Writer, plan DocumentPlan, now time.Time) error {
	orientation := "P"
	if plan.Orientation == Landscape {
		orientation = "L"
	}

	pdf := fpdf.New(orientation, "mm", "A4", "")
	pdf.SetCreationDate(now.UTC())
	pdf.SetModificationDate(now.UTC())
	pdf.SetTitle(plan.Title, true)
	pdf.SetCatalogSort(true)
	pdf.SetMargins(PageMargin, PageMargin, PageMargin)
	pdf.SetAutoPageBreak(false, PageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	drawHeading(pdf, plan, tr)
	drawLegend(pdf, plan, tr)

	_, pageHeight := pdf.GetPageSize()
	y := TableStartY
	drawRow(pdf, plan.Header, plan.ColumnWidths, y, tr)
	y += rowHeight

	for _, row := range plan.Body {
		if y+rowHeight > pageHeight-PageMargin {
			pdf.AddPage()
			y = PageMargin
			drawRow(pdf, plan.Header, plan.ColumnWidths, y, tr)
			y += rowHeight
		}
		drawRow(pdf, row, plan.ColumnWidths, y, tr)
		y += rowHeight
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// RenderPDFBytes renders the plan into memory.
func RenderPDFBytes(plan DocumentPlan, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPDF(&buf, plan, now); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawHeading(pdf *fpdf.Fpdf, plan DocumentPlan, tr func(string) string) {
	pdf.SetTextColor(ColorBlack.R, ColorBlack.G, ColorBlack.B)
	pdf.SetFont(fontFamily, "B", titleFontSize)
	pdf.Text(PageMargin, 20, tr(plan.Title))

	pdf.SetFont(fontFamily, "", subFontSize)
	pdf.Text(PageMargin, 28, tr(plan.ThresholdLine))
}

func drawLegend(pdf *fpdf.Fpdf, plan DocumentPlan, tr func(string) string) {
	pdf.SetFont(fontFamily, "", legendFontSize)
	pdf.Text(PageMargin, 34, tr(LegendTitle))

	y := legendY
	for _, row := range plan.LegendRows {
		x := legendX
		for _, item := range row {
			pdf.SetFillColor(item.Color.R, item.Color.G, item.Color.B)
			pdf.Rect(x, y, legendSwatch, legendSwatch, "F")
			if item.Glyph != "" {
				pdf.Text(x+0.5, y+3.5, item.Glyph)
			}
			pdf.Text(x+legendSwatch+2, y+3.5, tr(item.Label))
			x += float64(len([]rune(item.Label)))*2.5 + 12
		}
		y += legendRowGap
	}
}

func drawRow(pdf *fpdf.Fpdf, cells []CellStyle, widths []float64, y float64, tr func(string) string) {
	x := PageMargin
	for col, cell := range cells {
		width := widths[col]

		style := ""
		if cell.Bold {
			style = "B"
		}
		pdf.SetFont(fontFamily, style, tableFontSize)
		pdf.SetTextColor(cell.TextColor.R, cell.TextColor.G, cell.TextColor.B)
		pdf.SetDrawColor(ColorGridLine.R, ColorGridLine.G, ColorGridLine.B)
		pdf.SetLineWidth(GridLineWidth)

		fill := cell.Fill != nil
		if fill {
			pdf.SetFillColor(cell.Fill.R, cell.Fill.G, cell.Fill.B)
		}
		pdf.SetXY(x, y)
		pdf.CellFormat(width, rowHeight, tr(cell.Text), "1", 0, string(cell.Align)+"M", fill, 0, "")

		for _, border := range cell.Borders {
			pdf.SetLineWidth(border.Width)
			switch border.Edge {
			case EdgeTop:
				pdf.Line(x, y, x+width, y)
			case EdgeBottom:
				pdf.Line(x, y+rowHeight, x+width, y+rowHeight)
			case EdgeLeft:
				pdf.Line(x, y, x, y+rowHeight)
			case EdgeRight:
				pdf.Line(x+width, y, x+width, y+rowHeight)
			}
		}
		x += width
	}
}
