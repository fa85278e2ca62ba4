package callbus

import "github.com/prometheus/client_golang/prometheus"

// collector exposes Bus.Stats to Prometheus at scrape time.
type collector struct {
	bus *Bus

	subscriptions *prometheus.Desc
	queueDepth    *prometheus.Desc
	emitted       *prometheus.Desc
	executions    *prometheus.Desc
	failures      *prometheus.Desc
}

// NewCollector returns a Prometheus collector reporting the state of b.
//
// Example:
//
//	prometheus.MustRegister(callbus.NewCollector(bus))
func NewCollector(b *Bus) prometheus.Collector {
	return &collector{
		bus: b,
		subscriptions: prometheus.NewDesc(
			"callbus_subscriptions",
			"Live subscriptions by scope.",
			[]string{"scope"}, nil,
		),
		queueDepth: prometheus.NewDesc(
			"callbus_queue_depth",
			"Async callbacks waiting for a worker.",
			nil, nil,
		),
		emitted: prometheus.NewDesc(
			"callbus_events_emitted_total",
			"Events emitted.",
			nil, nil,
		),
		executions: prometheus.NewDesc(
			"callbus_executions_total",
			"Callback invocations.",
			nil, nil,
		),
		failures: prometheus.NewDesc(
			"callbus_execution_failures_total",
			"Callback invocations that failed.",
			nil, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.subscriptions
	ch <- c.queueDepth
	ch <- c.emitted
	ch <- c.executions
	ch <- c.failures
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.bus.Stats()

	ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(s.EventSubscriptions), "event")
	ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(s.NamespaceSubscriptions), "namespace")
	ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(s.GlobalSubscriptions), "global")
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.emitted, prometheus.CounterValue, float64(s.EventsEmitted))
	ch <- prometheus.MustNewConstMetric(c.executions, prometheus.CounterValue, float64(s.Executions))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.FailedExecutions))
}
