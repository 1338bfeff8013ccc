package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"blinkwatch/internal/analytics/domain/interval"
	events "blinkwatch/internal/events/domain"
)

// Report is the input for a session report: the raw event log and the
// aggregate windows recorded so far.
type Report struct {
	GeneratedAt time.Time
	Events      []events.BlinkEvent
	Aggregates  []interval.Record
}

// BuildReportXLSX renders the report as a two-sheet workbook.
func BuildReportXLSX(rep Report) ([]byte, error) {
	f := excelize.NewFile()
	eventsSheet := "events"
	aggregatesSheet := "aggregates"
	f.SetSheetName("Sheet1", eventsSheet)
	if _, err := f.NewSheet(aggregatesSheet); err != nil {
		return nil, fmt.Errorf("report xlsx: new sheet: %w", err)
	}

	_ = f.SetCellValue(eventsSheet, "A1", "id")
	_ = f.SetCellValue(eventsSheet, "B1", "event_time")
	_ = f.SetCellValue(eventsSheet, "C1", "created_at")
	for i, evt := range rep.Events {
		row := i + 2
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("A%d", row), evt.ID)
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("B%d", row), evt.OccurredAt.Format(events.TimeLayout))
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("C%d", row), evt.CreatedAt.Format(events.TimeLayout))
	}

	_ = f.SetCellValue(aggregatesSheet, "A1", "interval_type")
	_ = f.SetCellValue(aggregatesSheet, "B1", "interval_start")
	_ = f.SetCellValue(aggregatesSheet, "C1", "interval_end")
	_ = f.SetCellValue(aggregatesSheet, "D1", "blink_count")
	for i, rec := range rep.Aggregates {
		row := i + 2
		_ = f.SetCellValue(aggregatesSheet, fmt.Sprintf("A%d", row), string(rec.Kind))
		_ = f.SetCellValue(aggregatesSheet, fmt.Sprintf("B%d", row), rec.Start.Format(events.TimeLayout))
		_ = f.SetCellValue(aggregatesSheet, fmt.Sprintf("C%d", row), rec.End.Format(events.TimeLayout))
		_ = f.SetCellValue(aggregatesSheet, fmt.Sprintf("D%d", row), rec.BlinkCount)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("report xlsx: write: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildReportPDF renders a summary PDF: totals plus the aggregate table.
func BuildReportPDF(rep Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Blink Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", rep.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total events: %d", len(rep.Events)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Kind", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "End", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Blinks", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, rec := range rep.Aggregates {
		pdf.CellFormat(35, 6, string(rec.Kind), "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, rec.Start.Format(events.TimeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, rec.End.Format(events.TimeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", rec.BlinkCount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report pdf: output: %w", err)
	}
	return buf.Bytes(), nil
}
