// Package metrics registers and updates the process's prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "blinkwatch_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	blinksTotal prometheus.Counter

	windowsClosedTotal *prometheus.CounterVec
	tickLatency        *prometheus.HistogramVec
	tickErrorsTotal    prometheus.Counter

	storeLatency *prometheus.HistogramVec

	alertsFiredTotal prometheus.Counter
)

// Init registers the metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		blinksTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "blinks_total",
				Help: "Total confirmed blinks this process",
			},
		)
		windowsClosedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "windows_closed_total",
				Help: "Total aggregate windows closed by granularity",
			},
			[]string{"kind"},
		)
		tickLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tick_latency_seconds",
				Help:    "Aggregation tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		tickErrorsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "tick_errors_total",
				Help: "Total aggregation ticks that hit a storage failure",
			},
		)
		storeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "store_latency_seconds",
				Help:    "Storage operation latency in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)
		alertsFiredTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_fired_total",
				Help: "Total no-blink alerts fired",
			},
		)

		prometheus.MustRegister(
			blinksTotal,
			windowsClosedTotal,
			tickLatency,
			tickErrorsTotal,
			storeLatency,
			alertsFiredTotal,
		)
	})
}

// IncBlink counts one confirmed blink.
func IncBlink() {
	if blinksTotal == nil {
		return
	}
	blinksTotal.Inc()
}

// IncWindowClosed counts one closed window of the given kind.
func IncWindowClosed(kind string) {
	if windowsClosedTotal == nil {
		return
	}
	windowsClosedTotal.WithLabelValues(kind).Inc()
}

// ObserveTick records an aggregation tick.
func ObserveTick(err error, duration time.Duration) {
	if tickLatency == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
		tickErrorsTotal.Inc()
	}
	tickLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveStore records one storage operation.
func ObserveStore(op string, err error, duration time.Duration) {
	if storeLatency == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	storeLatency.WithLabelValues(op, result).Observe(duration.Seconds())
}

// IncAlertFired counts one fired alert.
func IncAlertFired() {
	if alertsFiredTotal == nil {
		return
	}
	alertsFiredTotal.Inc()
}
