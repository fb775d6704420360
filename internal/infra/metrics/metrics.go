// Package metrics exports queue state as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/tunedl/internal/app/notification"
	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
)

const namespace = "tunedl"

// Metrics holds the queue collectors. It is fed by coordinator snapshots.
type Metrics struct {
	items            *prometheus.GaugeVec
	active           prometheus.Gauge
	paused           prometheus.Gauge
	concurrencyLimit prometheus.Gauge
	downloads        *prometheus.CounterVec
	duration         *prometheus.HistogramVec

	mu      sync.Mutex
	version uint64
	tracker *queue.Tracker
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_items",
			Help:      "Items held by the download queue, by status.",
		}, []string{"status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_active",
			Help:      "Items currently downloading.",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_paused",
			Help:      "1 if the queue is paused.",
		}),
		concurrencyLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_concurrency_limit",
			Help:      "Maximum number of concurrent downloads.",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished downloads by kind and result.",
		}, []string{"kind", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time from start to completion of successful downloads.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"kind"}),
		tracker: queue.NewTracker(),
	}

	for _, c := range []prometheus.Collector{m.items, m.active, m.paused, m.concurrencyLimit, m.downloads, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	for _, s := range item.Statuses {
		m.items.WithLabelValues(string(s))
	}
	return m, nil
}

// Observe updates the collectors from a snapshot. Superseded snapshots are ignored.
func (m *Metrics) Observe(s queue.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Version != 0 && s.Version <= m.version {
		return
	}
	m.version = s.Version
	transitions, _ := m.tracker.Observe(s)

	for _, st := range item.Statuses {
		m.items.WithLabelValues(string(st)).Set(float64(s.Stats.Count(st)))
	}
	m.active.Set(float64(s.ActiveCount))
	m.concurrencyLimit.Set(float64(s.ConcurrencyLimit))
	if s.Paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}

	for _, t := range transitions {
		switch t.To {
		case item.StatusCompleted:
			m.downloads.WithLabelValues(string(t.Item.Kind), "completed").Inc()
			if d, ok := t.Item.Duration(); ok {
				m.duration.WithLabelValues(string(t.Item.Kind)).Observe(d.Seconds())
			}
		case item.StatusFailed:
			m.downloads.WithLabelValues(string(t.Item.Kind), "failed").Inc()
		}
	}
}

// Attach subscribes the metrics to a coordinator and seeds them with its current state.
func (m *Metrics) Attach(c *queue.Coordinator) *notification.Subscription {
	sub := c.Subscribe(m.Observe)
	m.Observe(c.Snapshot())
	return sub
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
