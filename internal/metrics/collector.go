package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionStats provides the collector access to recorder and event state.
type SessionStats interface {
	IsRecording() bool
	QueueDepth() int
}

// SubscriberCounter reports live event-stream subscribers.
type SubscriberCounter interface {
	SubscriberCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	session SessionStats
	events  SubscriberCounter

	recording   *prometheus.Desc
	queueDepth  *prometheus.Desc
	subscribers *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// events may be nil.
func NewCollector(session SessionStats, events SubscriberCounter) *Collector {
	return &Collector{
		session: session,
		events:  events,
		recording: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "recording"),
			"1 while a recording session is active.",
			nil, nil,
		),
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "chunk_queue_depth"),
			"Chunks captured but not yet written.",
			nil, nil,
		),
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "event_subscribers_active"),
			"Current number of event stream subscribers.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.recording
	ch <- c.queueDepth
	ch <- c.subscribers
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	recording := 0.0
	depth := 0.0
	if c.session != nil {
		if c.session.IsRecording() {
			recording = 1
		}
		depth = float64(c.session.QueueDepth())
	}
	ch <- prometheus.MustNewConstMetric(c.recording, prometheus.GaugeValue, recording)
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, depth)

	subs := 0.0
	if c.events != nil {
		subs = float64(c.events.SubscriberCount())
	}
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, subs)
}
