// Package export writes aggregate windows to external sinks: append-only
// CSV files and XLSX/PDF session reports.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"blinkwatch/internal/analytics/application/events"
	"blinkwatch/internal/analytics/domain/interval"
)

// CSV file names, one per granularity, matching the original layout.
const (
	MinuteCSV    = "blinks_per_minute.csv"
	TenMinuteCSV = "blinks_per_10_minutes.csv"
	HourCSV      = "blinks_per_hour.csv"
	DayCSV       = "blinks_per_day.csv"
)

// CSVWriter appends one row per closed window to per-granularity files.
// The header row is written only when a file is newly created or empty, so
// restarted sessions keep appending to the same files.
type CSVWriter struct {
	dir string
}

// NewCSVWriter constructs a writer rooted at dir.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if dir == "" {
		return nil, errors.New("csv export: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv export: create dir: %w", err)
	}
	return &CSVWriter{dir: dir}, nil
}

// HandleWindowClosed appends a row for a newly closed minute, ten-minute, or
// hour window. Day closures are not written here; the day file tracks the
// running total instead.
func (w *CSVWriter) HandleWindowClosed(ctx context.Context, evt events.WindowClosed) error {
	_ = ctx
	rec := evt.Record

	var name string
	switch rec.Kind {
	case interval.GranularityMinute:
		name = MinuteCSV
	case interval.GranularityTenMinute:
		name = TenMinuteCSV
	case interval.GranularityHour:
		name = HourCSV
	default:
		return nil
	}

	return w.appendRow(name,
		[]string{"date", "interval_start", "blinks"},
		[]string{
			rec.Start.Format("2006-01-02"),
			rec.Start.Format("15:04:05"),
			fmt.Sprintf("%d", rec.BlinkCount),
		},
	)
}

// HandleDayTotalRefreshed appends the refreshed current-day running total.
func (w *CSVWriter) HandleDayTotalRefreshed(ctx context.Context, evt events.DayTotalRefreshed) error {
	_ = ctx
	return w.appendRow(DayCSV,
		[]string{"date", "blinks"},
		[]string{evt.Date.Format("2006-01-02"), fmt.Sprintf("%d", evt.Count)},
	)
}

func (w *CSVWriter) appendRow(name string, header, row []string) error {
	path := filepath.Join(w.dir, name)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csv export: open %s: %w", name, err)
	}
	defer file.Close()

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("csv export: seek %s: %w", name, err)
	}

	writer := csv.NewWriter(file)
	if offset == 0 {
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("csv export: header %s: %w", name, err)
		}
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("csv export: row %s: %w", name, err)
	}
	writer.Flush()
	return writer.Error()
}
