// internal/metrics/prometheus.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"camwatch/internal/database"
)

// Prometheus metrics
var (
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "camwatch_check_duration_seconds",
			Help:    "Time spent on a host check, confirmation delay included",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 400, 600, 900},
		},
		[]string{"host", "status"},
	)

	CheckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_checks_total",
			Help: "Total number of host checks recorded",
		},
		[]string{"host", "status"},
	)

	FailingCameras = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camwatch_failing_cameras",
			Help: "Cameras reported without frames by the latest check of each host",
		},
		[]string{"host"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_notifications_total",
			Help: "Notification deliveries by sink, payload kind and result",
		},
		[]string{"sink", "kind", "result"},
	)

	LogFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_log_fetch_total",
			Help: "Service log fetches by result",
		},
		[]string{"service", "result"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "camwatch_cycle_duration_seconds",
			Help:    "Duration of a full check cycle over all hosts",
			Buckets: []float64{5, 30, 60, 120, 300, 400, 600, 900, 1800},
		},
	)

	ActiveHosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camwatch_active_hosts",
			Help: "Number of enabled hosts being monitored",
		},
	)

	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_store_operations_total",
			Help: "Total store operations performed",
		},
		[]string{"operation", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camwatch_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

// Collector records metrics. A nil Collector is valid and still updates the
// package-level series; only UpdateSystemMetrics needs the store.
type Collector struct {
	store database.Store
}

func NewCollector(store database.Store) *Collector {
	return &Collector{store: store}
}

func (c *Collector) RecordCheck(host, status string, failing int, duration time.Duration) {
	CheckDuration.WithLabelValues(host, status).Observe(duration.Seconds())
	CheckTotal.WithLabelValues(host, status).Inc()
	if status != database.StatusSkipped {
		FailingCameras.WithLabelValues(host).Set(float64(failing))
	}
}

func (c *Collector) RecordNotification(sink, kind string, err error) {
	NotificationsTotal.WithLabelValues(sink, kind, resultLabel(err)).Inc()
}

func (c *Collector) RecordLogFetch(service string, err error) {
	LogFetchTotal.WithLabelValues(service, resultLabel(err)).Inc()
}

func (c *Collector) RecordCycle(duration time.Duration) {
	CycleDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordStoreOperation(operation string, err error) {
	DatabaseOperations.WithLabelValues(operation, resultLabel(err)).Inc()
}

func (c *Collector) RecordWebSocketConnection(delta int) {
	WebSocketConnections.Add(float64(delta))
}

func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	enabled := true
	hosts, err := c.store.GetHosts(ctx, database.HostFilters{Enabled: &enabled})
	c.RecordStoreOperation("get_hosts", err)
	if err != nil {
		return err
	}
	ActiveHosts.Set(float64(len(hosts)))
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
