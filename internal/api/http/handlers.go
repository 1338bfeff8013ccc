package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"blinkwatch/internal/analytics/domain/interval"
	eventlog "blinkwatch/internal/events/domain"
	"blinkwatch/internal/export"
)

const timeLayout = time.RFC3339

// BlinkCountHandler serves blink counts over an inclusive time range.
type BlinkCountHandler struct {
	store eventlog.Store
}

// NewBlinkCountHandler constructs a BlinkCountHandler.
func NewBlinkCountHandler(store eventlog.Store) *BlinkCountHandler {
	return &BlinkCountHandler{store: store}
}

// ServeHTTP handles GET /api/v1/blinks/count.
func (h *BlinkCountHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.store == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}

	count, err := h.store.CountInRange(r.Context(), from, to)
	if err != nil {
		http.Error(w, "count query error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"from":  from.Format(timeLayout),
		"to":    to.Format(timeLayout),
		"count": count,
	})
}

type aggregateRow struct {
	Granularity string `json:"granularity"`
	Start       string `json:"interval_start"`
	End         string `json:"interval_end"`
	BlinkCount  int    `json:"blink_count"`
}

func toAggregateRow(rec interval.Record) aggregateRow {
	return aggregateRow{
		Granularity: string(rec.Kind),
		Start:       rec.Start.Format(timeLayout),
		End:         rec.End.Format(timeLayout),
		BlinkCount:  rec.BlinkCount,
	}
}

// AggregatesHandler lists closed aggregate windows.
type AggregatesHandler struct {
	store interval.Store
}

// NewAggregatesHandler constructs an AggregatesHandler.
func NewAggregatesHandler(store interval.Store) *AggregatesHandler {
	return &AggregatesHandler{store: store}
}

// ServeHTTP handles GET /api/v1/aggregates.
func (h *AggregatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.store == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	records, err := h.store.List(r.Context())
	if err != nil {
		http.Error(w, "aggregate query error", http.StatusInternalServerError)
		return
	}

	rows := make([]aggregateRow, 0, len(records))
	for _, rec := range records {
		if kind := r.URL.Query().Get("granularity"); kind != "" && kind != string(rec.Kind) {
			continue
		}
		rows = append(rows, toAggregateRow(rec))
	}
	writeJSON(w, rows)
}

// LatestAggregateHandler serves the most recent closed window per granularity.
type LatestAggregateHandler struct {
	store interval.Store
}

// NewLatestAggregateHandler constructs a LatestAggregateHandler.
func NewLatestAggregateHandler(store interval.Store) *LatestAggregateHandler {
	return &LatestAggregateHandler{store: store}
}

// ServeHTTP handles GET /api/v1/aggregates/latest.
func (h *LatestAggregateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.store == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	kind := interval.Granularity(r.URL.Query().Get("granularity"))
	if !kind.IsValid() {
		http.Error(w, "granularity must be minute, ten_minute, hour or day", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Latest(r.Context(), kind)
	if err != nil {
		http.Error(w, "aggregate query error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "no closed window yet", http.StatusNotFound)
		return
	}
	writeJSON(w, toAggregateRow(*rec))
}

// SessionSource exposes the live detector state of this process.
type SessionSource interface {
	SessionBlinkCount() int
	LastBlinkTimestamp() (time.Time, bool)
}

// DayTotalSource exposes the running total for the current day.
type DayTotalSource interface {
	CurrentDayRunningTotal() int
}

// SessionHandler serves live session counters.
type SessionHandler struct {
	session  SessionSource
	dayTotal DayTotalSource
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(session SessionSource, dayTotal DayTotalSource) *SessionHandler {
	return &SessionHandler{session: session, dayTotal: dayTotal}
}

// ServeHTTP handles GET /api/v1/session.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	body := map[string]any{
		"session_blinks": h.session.SessionBlinkCount(),
	}
	if at, ok := h.session.LastBlinkTimestamp(); ok {
		body["last_blink_at"] = at.Format(timeLayout)
	} else {
		body["last_blink_at"] = nil
	}
	if h.dayTotal != nil {
		body["day_total"] = h.dayTotal.CurrentDayRunningTotal()
	}
	writeJSON(w, body)
}

// ReportHandler serves XLSX and PDF report downloads.
type ReportHandler struct {
	events     eventlog.Store
	aggregates interval.Store
	now        func() time.Time
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(events eventlog.Store, aggregates interval.Store) *ReportHandler {
	return &ReportHandler{events: events, aggregates: aggregates, now: time.Now}
}

// ServeHTTP handles GET /api/v1/reports/blinks.{xlsx,pdf}.
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.events == nil || h.aggregates == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	rep, err := h.buildReport(r)
	if err != nil {
		http.Error(w, "report query error", http.StatusInternalServerError)
		return
	}

	switch r.URL.Path {
	case "/api/v1/reports/blinks.xlsx":
		payload, err := export.BuildReportXLSX(rep)
		if err != nil {
			http.Error(w, "report build error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="blinks.xlsx"`)
		_, _ = w.Write(payload)
	case "/api/v1/reports/blinks.pdf":
		payload, err := export.BuildReportPDF(rep)
		if err != nil {
			http.Error(w, "report build error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="blinks.pdf"`)
		_, _ = w.Write(payload)
	default:
		http.NotFound(w, r)
	}
}

func (h *ReportHandler) buildReport(r *http.Request) (export.Report, error) {
	evts, err := h.events.List(r.Context())
	if err != nil {
		return export.Report{}, err
	}
	aggs, err := h.aggregates.List(r.Context())
	if err != nil {
		return export.Report{}, err
	}
	return export.Report{
		GeneratedAt: h.now(),
		Events:      evts,
		Aggregates:  aggs,
	}, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
