// Package metrics holds the prometheus collectors exported by the scan
// service. A nil *Collectors is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "descry"

// Collectors groups the service collectors.
type Collectors struct {
	ScansStarted  prometheus.Counter
	ScansFinished *prometheus.CounterVec
	Pages         prometheus.Counter
	ScanDuration  prometheus.Histogram
	Devices       *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		ScansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_started_total",
			Help:      "Scans accepted by the orchestrator.",
		}),
		ScansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_finished_total",
			Help:      "Scans that reached a terminal job status.",
		}, []string{"status"}),
		Pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_acquired_total",
			Help:      "Pages appended to jobs.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time from scan start to terminal job status.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Registered devices by status.",
		}, []string{"status"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{c.ScansStarted, c.ScansFinished, c.Pages, c.ScanDuration, c.Devices} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collectors) ScanStarted() {
	if c == nil {
		return
	}
	c.ScansStarted.Inc()
}

func (c *Collectors) ScanFinished(status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ScansFinished.WithLabelValues(status).Inc()
	c.ScanDuration.Observe(elapsed.Seconds())
}

func (c *Collectors) PageAcquired() {
	if c == nil {
		return
	}
	c.Pages.Inc()
}

// SetDevices replaces the device gauge with counts. Statuses missing from
// counts are reset to zero.
func (c *Collectors) SetDevices(statuses []string, counts map[string]int) {
	if c == nil {
		return
	}
	for _, status := range statuses {
		c.Devices.WithLabelValues(status).Set(float64(counts[status]))
	}
}
