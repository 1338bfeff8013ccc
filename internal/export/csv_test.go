package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blinkwatch/internal/analytics/application/events"
	"blinkwatch/internal/analytics/domain/interval"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestWindowClosedRows(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("new csv writer: %v", err)
	}

	start := time.Date(2024, time.January, 2, 12, 33, 0, 0, time.Local)
	evt := events.WindowClosed{Record: interval.Record{
		Kind:       interval.GranularityMinute,
		Start:      start,
		End:        start.Add(59 * time.Second),
		BlinkCount: 2,
	}}

	if err := writer.HandleWindowClosed(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, MinuteCSV))
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[0][0] != "date" || rows[0][1] != "interval_start" || rows[0][2] != "blinks" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "2024-01-02" || rows[1][1] != "12:33:00" || rows[1][2] != "2" {
		t.Fatalf("row = %v", rows[1])
	}
}

func TestHeaderWrittenOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("new csv writer: %v", err)
	}

	date := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.Local)
	for i := 0; i < 3; i++ {
		evt := events.DayTotalRefreshed{Date: date, Count: i, At: date.Add(time.Duration(i) * time.Minute)}
		if err := writer.HandleDayTotalRefreshed(context.Background(), evt); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	// A second writer over the same dir simulates a restart; the header
	// must not repeat.
	writer2, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("new csv writer: %v", err)
	}
	evt := events.DayTotalRefreshed{Date: date, Count: 9, At: date.Add(time.Hour)}
	if err := writer2.HandleDayTotalRefreshed(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, DayCSV))
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want header + 4", len(rows))
	}
	if rows[0][0] != "date" || rows[0][1] != "blinks" {
		t.Fatalf("header = %v", rows[0])
	}
	for _, row := range rows[1:] {
		if row[0] == "date" {
			t.Fatalf("header repeated mid-file")
		}
	}
}

func TestDayWindowNotWrittenAsInterval(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("new csv writer: %v", err)
	}

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local)
	evt := events.WindowClosed{Record: interval.Record{
		Kind:  interval.GranularityDay,
		Start: start,
		End:   start.AddDate(0, 0, 1).Add(-time.Second),
	}}
	if err := writer.HandleWindowClosed(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, DayCSV)); !os.IsNotExist(err) {
		t.Fatalf("day closure wrote an interval row; the day file is for running totals")
	}
}
