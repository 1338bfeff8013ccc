package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blinkwatch/internal/alerts"
	"blinkwatch/internal/alerts/notify"
	"blinkwatch/internal/analytics/application"
	appevents "blinkwatch/internal/analytics/application/events"
	"blinkwatch/internal/analytics/domain/interval"
	aggmemory "blinkwatch/internal/analytics/infrastructure/memory"
	aggpostgres "blinkwatch/internal/analytics/infrastructure/postgres"
	aggsqlite "blinkwatch/internal/analytics/infrastructure/sqlite"
	apihttp "blinkwatch/internal/api/http"
	"blinkwatch/internal/auth"
	"blinkwatch/internal/config"
	"blinkwatch/internal/detection"
	"blinkwatch/internal/driver"
	"blinkwatch/internal/eventing"
	eventlog "blinkwatch/internal/events/domain"
	evmemory "blinkwatch/internal/events/infrastructure/memory"
	evpostgres "blinkwatch/internal/events/infrastructure/postgres"
	evsqlite "blinkwatch/internal/events/infrastructure/sqlite"
	"blinkwatch/internal/export"
	"blinkwatch/internal/observability/logs"
	"blinkwatch/internal/observability/metrics"
	"blinkwatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	metrics.Init()

	eventStore, aggregateStore, closeDB, err := openStores(cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("storage error: %v", err)
	}
	defer closeDB()

	detector, err := detection.NewDetector(detection.Config{
		Threshold:    cfg.Detection.Threshold,
		MinRunLength: cfg.Detection.MinRunLength,
	})
	if err != nil {
		logger.Fatalf("detector error: %v", err)
	}

	bus := eventing.NewInMemoryBus()

	var loop *driver.Loop
	engineOpts := []application.Option{
		application.WithBus(bus),
		application.WithLogger(logger),
	}
	if cfg.Alerts.Enabled {
		sink := buildAlertSink(cfg.Alerts, logger)
		alertCfg := alerts.Config{
			Enabled:       true,
			IdleThreshold: cfg.Alerts.After,
			Cooldown:      cfg.Alerts.Repeat,
		}
		engineOpts = append(engineOpts, application.WithAlerts(alertCfg, sink, func() (time.Time, bool) {
			if loop == nil {
				return time.Time{}, false
			}
			return loop.LastBlinkTimestamp()
		}))
	}

	engine, err := application.NewEngine(eventStore, aggregateStore, engineOpts...)
	if err != nil {
		logger.Fatalf("engine error: %v", err)
	}

	broker := apihttp.NewSSEBroker()
	eventing.SubscribeTyped(bus, broker.HandleBlinkDetected)
	eventing.SubscribeTyped(bus, broker.HandleWindowClosed)
	eventing.SubscribeTyped(bus, broker.HandleAlertFired)

	blinkLog, closeBlinkLog, err := logs.Open(cfg.Storage.OutputDir, logs.BlinkLog)
	if err != nil {
		logger.Fatalf("blink log error: %v", err)
	}
	defer closeBlinkLog()
	aggregateLog, closeAggregateLog, err := logs.Open(cfg.Storage.OutputDir, logs.AggregateLog)
	if err != nil {
		logger.Fatalf("aggregate log error: %v", err)
	}
	defer closeAggregateLog()

	eventing.SubscribeTyped(bus, func(_ context.Context, event appevents.BlinkDetected) error {
		blinkLog.Printf("blink #%d at %s", event.Ordinal, event.At.Format(time.RFC3339))
		return nil
	})
	eventing.SubscribeTyped(bus, func(_ context.Context, event appevents.WindowClosed) error {
		metrics.IncWindowClosed(string(event.Record.Kind))
		aggregateLog.Printf("window closed: %s start=%s blinks=%d",
			event.Record.Kind,
			event.Record.Start.Format(time.RFC3339),
			event.Record.BlinkCount)
		return nil
	})
	eventing.SubscribeTyped(bus, func(_ context.Context, event appevents.DayTotalRefreshed) error {
		aggregateLog.Printf("day total: %s blinks=%d",
			event.Date.Format("2006-01-02"), event.Count)
		return nil
	})
	eventing.SubscribeTyped(bus, func(_ context.Context, event appevents.AlertFired) error {
		metrics.IncAlertFired()
		logger.Printf("no blink for %s", event.IdleFor)
		return nil
	})

	if cfg.CSV.Enabled {
		csvWriter, err := export.NewCSVWriter(cfg.CSV.Dir)
		if err != nil {
			logger.Fatalf("csv export error: %v", err)
		}
		eventing.SubscribeTyped(bus, csvWriter.HandleWindowClosed)
		eventing.SubscribeTyped(bus, csvWriter.HandleDayTotalRefreshed)
	}

	provider, closeProvider, err := openProvider(cfg.Replay)
	if err != nil {
		logger.Fatalf("provider error: %v", err)
	}
	defer closeProvider()

	loop, err = driver.NewLoop(provider, detector, eventStore, engine,
		driver.WithBus(bus),
		driver.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("loop error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/blinks/count", apihttp.NewBlinkCountHandler(eventStore))
	mux.Handle("/api/v1/aggregates", apihttp.NewAggregatesHandler(aggregateStore))
	mux.Handle("/api/v1/aggregates/latest", apihttp.NewLatestAggregateHandler(aggregateStore))
	mux.Handle("/api/v1/session", apihttp.NewSessionHandler(loop, engine))
	mux.Handle("/api/v1/reports/blinks.xlsx", apihttp.NewReportHandler(eventStore, aggregateStore))
	mux.Handle("/api/v1/reports/blinks.pdf", apihttp.NewReportHandler(eventStore, aggregateStore))
	mux.Handle("/api/v1/events/stream", apihttp.NewStreamHandler(broker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.HTTP.JWTSecret), policy)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: authMiddleware.Wrap(loggingMiddleware(mux, logger)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("http listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("http server error: %v", err)
		}
	}()

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		logger.Printf("capture loop error: %v", err)
	}
	logger.Printf("session blinks: %d", loop.SessionBlinkCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// openStores builds the event and aggregate stores for the configured
// backend and runs migrations.
func openStores(cfg config.StorageConfig, logger *log.Logger) (eventlog.Store, interval.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case storage.BackendMemory:
		return evmemory.NewEventRepository(), aggmemory.NewAggregateRepository(), noop, nil

	case storage.BackendPostgres:
		db, err := storage.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, noop, err
		}
		eventRepo := evpostgres.NewEventRepository(db)
		aggregateRepo := aggpostgres.NewAggregateRepository(db)
		if err := migrate(db, eventRepo.Migrate, aggregateRepo.Migrate); err != nil {
			return nil, nil, noop, err
		}
		return timedEventStore{eventRepo}, timedAggregateStore{aggregateRepo}, func() { _ = db.Close() }, nil

	default:
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, nil, noop, err
		}
		path := cfg.DatabasePath()
		logger.Printf("sqlite database at %s", path)
		db, err := storage.OpenSQLite(path)
		if err != nil {
			return nil, nil, noop, err
		}
		eventRepo := evsqlite.NewEventRepository(db)
		aggregateRepo := aggsqlite.NewAggregateRepository(db)
		if err := migrate(db, eventRepo.Migrate, aggregateRepo.Migrate); err != nil {
			return nil, nil, noop, err
		}
		return timedEventStore{eventRepo}, timedAggregateStore{aggregateRepo}, func() { _ = db.Close() }, nil
	}
}

func migrate(db *sql.DB, steps ...func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func buildAlertSink(cfg config.AlertConfig, logger *log.Logger) notify.Sink {
	var opts []notify.SoundOption
	if cfg.SoundFile != "" {
		opts = append(opts, notify.WithSoundFile(cfg.SoundFile))
	}
	sinks := []notify.Sink{notify.NewSoundSink(opts...)}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookSink(cfg.WebhookURL,
			notify.WithErrorFunc(func(err error) { logger.Printf("alert webhook error: %v", err) }))
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		sinks = append(sinks, webhook)
	}
	return notify.NewMultiSink(sinks...)
}

// openProvider resolves the landmark sample source. Only replay files are
// supported here; live camera capture feeds samples in through the same
// interface from a separate process.
func openProvider(cfg config.ReplayConfig) (driver.LandmarkProvider, func(), error) {
	if cfg.Path == "" {
		return nil, func() {}, errors.New("REPLAY_PATH is required")
	}
	file, err := os.Open(cfg.Path)
	if err != nil {
		return nil, func() {}, err
	}
	provider, err := driver.NewReplayProvider(file, time.Now())
	if err != nil {
		_ = file.Close()
		return nil, func() {}, err
	}
	return provider, func() { _ = file.Close() }, nil
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		subject := auth.SubjectFromContext(r.Context())
		if subject == "" {
			subject = "-"
		}
		logger.Printf("http %s %s %d %s %s", r.Method, r.URL.Path, resp.status, subject, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// ---- Instrumented stores ----

type timedEventStore struct {
	eventlog.Store
}

func (s timedEventStore) Append(ctx context.Context, occurredAt time.Time) error {
	start := time.Now()
	err := s.Store.Append(ctx, occurredAt)
	metrics.ObserveStore("event_append", err, time.Since(start))
	return err
}

func (s timedEventStore) CountInRange(ctx context.Context, from, to time.Time) (int, error) {
	start := time.Now()
	count, err := s.Store.CountInRange(ctx, from, to)
	metrics.ObserveStore("event_count", err, time.Since(start))
	return count, err
}

type timedAggregateStore struct {
	interval.Store
}

func (s timedAggregateStore) Upsert(ctx context.Context, rec interval.Record) error {
	start := time.Now()
	err := s.Store.Upsert(ctx, rec)
	metrics.ObserveStore("aggregate_upsert", err, time.Since(start))
	return err
}
