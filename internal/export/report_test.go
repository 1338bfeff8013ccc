package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"blinkwatch/internal/analytics/domain/interval"
	events "blinkwatch/internal/events/domain"
)

func sampleReport() Report {
	at := time.Date(2024, time.January, 2, 12, 33, 5, 0, time.Local)
	return Report{
		GeneratedAt: at.Add(time.Hour),
		Events: []events.BlinkEvent{
			{ID: 1, OccurredAt: at, CreatedAt: at},
			{ID: 2, OccurredAt: at.Add(37 * time.Second), CreatedAt: at.Add(37 * time.Second)},
		},
		Aggregates: []interval.Record{
			{
				Kind:       interval.GranularityMinute,
				Start:      time.Date(2024, time.January, 2, 12, 33, 0, 0, time.Local),
				End:        time.Date(2024, time.January, 2, 12, 33, 59, 0, time.Local),
				BlinkCount: 2,
			},
		},
	}
}

func TestBuildReportXLSX(t *testing.T) {
	data, err := BuildReportXLSX(sampleReport())
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopen xlsx: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("aggregates", "D2")
	if err != nil {
		t.Fatalf("get cell: %v", err)
	}
	if got != "2" {
		t.Fatalf("aggregates!D2 = %q, want \"2\"", got)
	}
}

func TestBuildReportPDF(t *testing.T) {
	data, err := BuildReportPDF(sampleReport())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output does not look like a PDF")
	}
}
