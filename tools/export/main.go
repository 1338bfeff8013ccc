// Command export dumps a blinkwatch database to CSV, JSON, XLSX or PDF.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"blinkwatch/internal/analytics/domain/interval"
	aggpostgres "blinkwatch/internal/analytics/infrastructure/postgres"
	aggsqlite "blinkwatch/internal/analytics/infrastructure/sqlite"
	eventlog "blinkwatch/internal/events/domain"
	evpostgres "blinkwatch/internal/events/infrastructure/postgres"
	evsqlite "blinkwatch/internal/events/infrastructure/sqlite"
	"blinkwatch/internal/export"
	"blinkwatch/internal/storage"
)

type config struct {
	dbPath string
	dsn    string
	outDir string
	format string
}

func main() {
	cfg := parseConfig()

	db, eventStore, aggregateStore, err := openStores(cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	evts, err := eventStore.List(ctx)
	if err != nil {
		log.Fatalf("list events: %v", err)
	}
	aggs, err := aggregateStore.List(ctx)
	if err != nil {
		log.Fatalf("list aggregates: %v", err)
	}
	log.Printf("loaded %d events, %d aggregate windows", len(evts), len(aggs))

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		log.Fatalf("create out dir: %v", err)
	}

	switch cfg.format {
	case "csv":
		err = writeCSVs(cfg.outDir, aggs)
	case "json":
		err = writeJSON(cfg.outDir, evts, aggs)
	case "xlsx":
		err = writeReport(cfg.outDir, "blinks.xlsx", evts, aggs, export.BuildReportXLSX)
	case "pdf":
		err = writeReport(cfg.outDir, "blinks.pdf", evts, aggs, export.BuildReportPDF)
	default:
		log.Fatalf("format must be csv, json, xlsx or pdf, got %q", cfg.format)
	}
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	log.Printf("wrote %s export to %s", cfg.format, cfg.outDir)
}

// writeCSVs renders one file per granularity, mirroring the live export
// layout. Files are rewritten from scratch.
func writeCSVs(dir string, aggs []interval.Record) error {
	names := map[interval.Granularity]string{
		interval.GranularityMinute:    export.MinuteCSV,
		interval.GranularityTenMinute: export.TenMinuteCSV,
		interval.GranularityHour:      export.HourCSV,
		interval.GranularityDay:       export.DayCSV,
	}

	for kind, name := range names {
		file, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		writer := csv.NewWriter(file)

		header := []string{"date", "interval_start", "blinks"}
		if kind == interval.GranularityDay {
			header = []string{"date", "blinks"}
		}
		if err := writer.Write(header); err != nil {
			file.Close()
			return err
		}
		for _, rec := range aggs {
			if rec.Kind != kind {
				continue
			}
			row := []string{
				rec.Start.Format("2006-01-02"),
				rec.Start.Format("15:04:05"),
				strconv.Itoa(rec.BlinkCount),
			}
			if kind == interval.GranularityDay {
				row = []string{rec.Start.Format("2006-01-02"), strconv.Itoa(rec.BlinkCount)}
			}
			if err := writer.Write(row); err != nil {
				file.Close()
				return err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(dir string, evts []eventlog.BlinkEvent, aggs []interval.Record) error {
	type eventRow struct {
		ID         int64  `json:"id"`
		OccurredAt string `json:"occurred_at"`
	}
	type aggregateRow struct {
		Granularity string `json:"granularity"`
		Start       string `json:"interval_start"`
		End         string `json:"interval_end"`
		BlinkCount  int    `json:"blink_count"`
	}

	body := struct {
		GeneratedAt string         `json:"generated_at"`
		Events      []eventRow     `json:"events"`
		Aggregates  []aggregateRow `json:"aggregates"`
	}{GeneratedAt: time.Now().Format(time.RFC3339)}
	for _, evt := range evts {
		body.Events = append(body.Events, eventRow{
			ID:         evt.ID,
			OccurredAt: evt.OccurredAt.Format(eventlog.TimeLayout),
		})
	}
	for _, rec := range aggs {
		body.Aggregates = append(body.Aggregates, aggregateRow{
			Granularity: string(rec.Kind),
			Start:       rec.Start.Format(eventlog.TimeLayout),
			End:         rec.End.Format(eventlog.TimeLayout),
			BlinkCount:  rec.BlinkCount,
		})
	}

	payload, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "blinks.json"), payload, 0o644)
}

func writeReport(
	dir, name string,
	evts []eventlog.BlinkEvent,
	aggs []interval.Record,
	build func(export.Report) ([]byte, error),
) error {
	payload, err := build(export.Report{
		GeneratedAt: time.Now(),
		Events:      evts,
		Aggregates:  aggs,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), payload, 0o644)
}

func openStores(cfg config) (*sql.DB, eventlog.Store, interval.Store, error) {
	if cfg.dsn != "" {
		db, err := storage.OpenPostgres(cfg.dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, evpostgres.NewEventRepository(db), aggpostgres.NewAggregateRepository(db), nil
	}

	if _, err := os.Stat(cfg.dbPath); err != nil {
		return nil, nil, nil, fmt.Errorf("database %s: %w", cfg.dbPath, err)
	}
	db, err := storage.OpenSQLite(cfg.dbPath)
	if err != nil {
		return nil, nil, nil, err
	}
	return db, evsqlite.NewEventRepository(db), aggsqlite.NewAggregateRepository(db), nil
}

func parseConfig() config {
	var cfg config
	flag.StringVar(&cfg.dbPath, "db", envOrDefault("BLINKS_DB", "output/blinks.db"), "sqlite database path")
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN (overrides -db)")
	flag.StringVar(&cfg.outDir, "out", envOrDefault("EXPORT_DIR", "output"), "output directory")
	flag.StringVar(&cfg.format, "format", envOrDefault("EXPORT_FORMAT", "csv"), "export format: csv, json, xlsx, pdf")
	flag.Parse()
	return cfg
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
