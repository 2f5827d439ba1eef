// Package metrics exports the session metrics of a tether.Manager to Prometheus.
package metrics

import (
	"github.com/arloliu/go-tether/tether"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tether"

// SessionSource enumerates sessions; *tether.Manager implements it.
type SessionSource interface {
	Range(fn func(s *tether.Session) bool)
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(m *tether.SessionMetrics) float64
}

// Collector is a prometheus.Collector reading the metrics of every session on each scrape.
type Collector struct {
	source    SessionSource
	counters  []counterDesc
	retries   *prometheus.Desc
	connected *prometheus.Desc
	running   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func newCounter(name, help string, value func(m *tether.SessionMetrics) float64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"address"}, nil),
		value: value,
	}
}

// NewCollector creates a collector over the sessions of source.
func NewCollector(source SessionSource) *Collector {
	labels := []string{"address"}

	return &Collector{
		source: source,
		counters: []counterDesc{
			newCounter("connects_total", "Number of successful connects.",
				func(m *tether.SessionMetrics) float64 { return float64(m.ConnectCount.Load()) }),
			newCounter("connect_failures_total", "Number of failed connect attempts.",
				func(m *tether.SessionMetrics) float64 { return float64(m.ConnectFailCount.Load()) }),
			newCounter("disconnects_total", "Number of Disconnected events emitted.",
				func(m *tether.SessionMetrics) float64 { return float64(m.DisconnectCount.Load()) }),
			newCounter("activity_timeouts_total", "Number of disconnects forced by the activity timeout.",
				func(m *tether.SessionMetrics) float64 { return float64(m.TimeoutCount.Load()) }),
			newCounter("frames_received_total", "Number of complete frames received.",
				func(m *tether.SessionMetrics) float64 { return float64(m.FrameRecvCount.Load()) }),
			newCounter("frames_dropped_total", "Number of malformed or oversized frames dropped.",
				func(m *tether.SessionMetrics) float64 { return float64(m.FrameDropCount.Load()) }),
			newCounter("commands_sent_total", "Number of commands written to the transport.",
				func(m *tether.SessionMetrics) float64 { return float64(m.CommandSendCount.Load()) }),
			newCounter("commands_overwritten_total", "Number of unsent commands replaced by a newer one.",
				func(m *tether.SessionMetrics) float64 { return float64(m.CommandOverwriteCount.Load()) }),
			newCounter("command_errors_total", "Number of failed command writes.",
				func(m *tether.SessionMetrics) float64 { return float64(m.CommandErrCount.Load()) }),
			newCounter("events_dropped_total", "Number of events dropped on a full event queue.",
				func(m *tether.SessionMetrics) float64 { return float64(m.EventDropCount.Load()) }),
		},
		retries: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "connect_retries"),
			"Number of consecutive failed connect attempts.", labels, nil),
		connected: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "connected"),
			"Whether the session link is established (1) or not (0).", labels, nil),
		running: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "running"),
			"Whether the session was started (1) or not (0).", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, counter := range c.counters {
		ch <- counter.desc
	}
	ch <- c.retries
	ch <- c.connected
	ch <- c.running
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.source.Range(func(s *tether.Session) bool {
		addr := s.Address()
		m := s.Metrics()

		for _, counter := range c.counters {
			ch <- prometheus.MustNewConstMetric(counter.desc, prometheus.CounterValue, counter.value(m), addr)
		}
		ch <- prometheus.MustNewConstMetric(c.retries, prometheus.GaugeValue, float64(m.ConnRetryGauge.Load()), addr)
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolValue(s.IsConnected()), addr)
		ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, boolValue(s.IsRunning()), addr)

		return true
	})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

// NewRegistry returns a registry holding a collector over source plus the Go runtime and
// process collectors.
func NewRegistry(source SessionSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}
