// Command seed fills a blinkwatch database with synthetic blink history,
// including closed aggregate windows, for demos and query testing.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"blinkwatch/internal/analytics/domain/interval"
	aggpostgres "blinkwatch/internal/analytics/infrastructure/postgres"
	aggsqlite "blinkwatch/internal/analytics/infrastructure/sqlite"
	eventlog "blinkwatch/internal/events/domain"
	evpostgres "blinkwatch/internal/events/infrastructure/postgres"
	evsqlite "blinkwatch/internal/events/infrastructure/sqlite"
	"blinkwatch/internal/storage"
)

type config struct {
	dbPath       string
	dsn          string
	startDate    string
	days         int
	maxPerMinute int
	seed         int64
}

type migrator interface {
	Migrate(ctx context.Context) error
}

func main() {
	cfg := parseConfig()
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}
	if cfg.maxPerMinute < 0 {
		log.Fatal("max-per-minute must be >= 0")
	}

	start, err := parseStartDate(cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	db, eventStore, aggregateStore, err := openStores(cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(cfg.seed))
	end := start.AddDate(0, 0, cfg.days)

	log.Printf("seeding blink events: start=%s days=%d", start.Format("2006-01-02"), cfg.days)
	total := 0
	for minute := start; minute.Before(end); minute = minute.Add(time.Minute) {
		count := rng.Intn(cfg.maxPerMinute + 1)
		for i := 0; i < count; i++ {
			at := minute.Add(time.Duration(rng.Intn(60)) * time.Second)
			if err := eventStore.Append(ctx, at); err != nil {
				log.Fatalf("append event: %v", err)
			}
			total++
		}
	}
	log.Printf("seeded %d events", total)

	for _, kind := range []interval.Granularity{
		interval.GranularityMinute,
		interval.GranularityTenMinute,
		interval.GranularityHour,
		interval.GranularityDay,
	} {
		closed, err := closeWindows(ctx, eventStore, aggregateStore, kind, start, end)
		if err != nil {
			log.Fatalf("close %s windows: %v", kind, err)
		}
		log.Printf("closed %d %s windows", closed, kind)
	}
}

// closeWindows replays window closing over the seeded range: one record per
// fully elapsed window, counted from the event log.
func closeWindows(
	ctx context.Context,
	eventStore eventlog.Store,
	aggregateStore interval.Store,
	kind interval.Granularity,
	start, end time.Time,
) (int, error) {
	closed := 0
	for windowStart := kind.Floor(start); !nextStart(kind, windowStart).After(end); windowStart = nextStart(kind, windowStart) {
		windowEnd := kind.WindowEnd(windowStart)
		count, err := eventStore.CountInRange(ctx, windowStart, windowEnd)
		if err != nil {
			return 0, err
		}
		rec := interval.Record{Kind: kind, Start: windowStart, End: windowEnd, BlinkCount: count}
		if err := aggregateStore.Upsert(ctx, rec); err != nil {
			return 0, err
		}
		closed++
	}
	return closed, nil
}

func nextStart(kind interval.Granularity, start time.Time) time.Time {
	if kind == interval.GranularityDay {
		return start.AddDate(0, 0, 1)
	}
	return start.Add(kind.Length())
}

func openStores(cfg config) (*sql.DB, eventlog.Store, interval.Store, error) {
	if cfg.dsn != "" {
		db, err := storage.OpenPostgres(cfg.dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		eventRepo := evpostgres.NewEventRepository(db)
		aggregateRepo := aggpostgres.NewAggregateRepository(db)
		if err := migrate(eventRepo, aggregateRepo); err != nil {
			return nil, nil, nil, err
		}
		return db, eventRepo, aggregateRepo, nil
	}

	db, err := storage.OpenSQLite(cfg.dbPath)
	if err != nil {
		return nil, nil, nil, err
	}
	eventRepo := evsqlite.NewEventRepository(db)
	aggregateRepo := aggsqlite.NewAggregateRepository(db)
	if err := migrate(eventRepo, aggregateRepo); err != nil {
		return nil, nil, nil, err
	}
	return db, eventRepo, aggregateRepo, nil
}

func migrate(steps ...migrator) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, step := range steps {
		if err := step.Migrate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func parseConfig() config {
	var cfg config
	flag.StringVar(&cfg.dbPath, "db", envOrDefault("BLINKS_DB", "output/blinks.db"), "sqlite database path")
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN (overrides -db)")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", ""), "start date (YYYY-MM-DD), defaults to days ago")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 3), "number of days to seed")
	flag.IntVar(&cfg.maxPerMinute, "max-per-minute", envOrInt("MAX_PER_MINUTE", 25), "max blinks per minute")
	flag.Int64Var(&cfg.seed, "seed", 1, "rng seed")
	flag.Parse()
	return cfg
}

func parseStartDate(value string) (time.Time, error) {
	if value == "" {
		now := time.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
		days := envOrInt("DAYS", 3)
		return today.AddDate(0, 0, -days), nil
	}
	return time.ParseInLocation("2006-01-02", value, time.Local)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
