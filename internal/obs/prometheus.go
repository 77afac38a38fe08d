package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tickcore"

// Collector exports a Metrics snapshot to Prometheus on every scrape.
type Collector struct {
	metrics *Metrics

	events      *prometheus.Desc
	frames      *prometheus.Desc
	ticks       *prometheus.Desc
	decodeSkips *prometheus.Desc
	reconnects  *prometheus.Desc
	failovers   *prometheus.Desc
	halts       *prometheus.Desc
	rejected    *prometheus.Desc
	queueDrops  *prometheus.Desc
	latencyAvg  *prometheus.Desc
	latencyMax  *prometheus.Desc
}

// NewCollector wraps m.
func NewCollector(m *Metrics) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		metrics:     m,
		events:      desc("events_total", "Events emitted to the host.", "type"),
		frames:      desc("frames_total", "Transport frames handled."),
		ticks:       desc("ticks_total", "Ticks decoded."),
		decodeSkips: desc("decode_skips_total", "Malformed packets skipped."),
		reconnects:  desc("reconnects_total", "Reconnect attempts scheduled."),
		failovers:   desc("failover_suggestions_total", "Failover suggestions emitted."),
		halts:       desc("halts_total", "Risk halts triggered.", "reason"),
		rejected:    desc("commands_rejected_total", "Host commands rejected."),
		queueDrops:  desc("queue_drops_total", "Items dropped by full queues."),
		latencyAvg:  desc("latency_avg_seconds", "Average handling latency.", "stage"),
		latencyMax:  desc("latency_max_seconds", "Max handling latency.", "stage"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.events, c.frames, c.ticks, c.decodeSkips, c.reconnects, c.failovers,
		c.halts, c.rejected, c.queueDrops, c.latencyAvg, c.latencyMax,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	for t, n := range s.EventCounts {
		counter(c.events, n, string(t))
	}
	counter(c.frames, s.Frames)
	counter(c.ticks, s.Ticks)
	counter(c.decodeSkips, s.DecodeSkips)
	counter(c.reconnects, s.Reconnects)
	counter(c.failovers, s.Failovers)
	for reason, n := range s.HaltCounts {
		counter(c.halts, n, reason)
	}
	counter(c.rejected, s.CommandsRejected)
	counter(c.queueDrops, s.QueueDrops)

	gauge(c.latencyAvg, s.FrameLatency.Avg.Seconds(), "frame")
	gauge(c.latencyMax, s.FrameLatency.Max.Seconds(), "frame")
	gauge(c.latencyAvg, s.CommandLatency.Avg.Seconds(), "command")
	gauge(c.latencyMax, s.CommandLatency.Max.Seconds(), "command")
}
