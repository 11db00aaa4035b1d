package countermetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "counterd"
	subsystem = "command"
)

// Label names for command metrics.
const (
	labelCommand   = "command"
	labelReason    = "reason"
	labelResponse  = "response"
	labelTypeID    = "type_id"
	labelTransport = "transport"
)

// -------------------------------------------------------------------------
// Collector: Prometheus Command Metrics
// -------------------------------------------------------------------------

// Collector holds all command protocol Prometheus metrics.
//
//   - Counter gauges track registered counters per type id.
//   - Command counters track accepted and rejected commands.
//   - Response counters track what the conductor sent back.
type Collector struct {
	// Counters tracks the number of registered counters per type id.
	Counters *prometheus.GaugeVec

	// CommandsReceived counts commands dispatched, by message type name.
	CommandsReceived *prometheus.CounterVec

	// CommandsRejected counts commands answered with OnError, by message
	// type name and error code.
	CommandsRejected *prometheus.CounterVec

	// ResponsesSent counts response records, by message type name.
	ResponsesSent *prometheus.CounterVec

	// BatchRecords observes the number of records per command batch.
	BatchRecords prometheus.Histogram

	// TransportErrors counts batches that could not be read, framed or
	// answered, per transport.
	TransportErrors *prometheus.CounterVec
}

// NewCollector creates a Collector with all command metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Counters,
		c.CommandsReceived,
		c.CommandsRejected,
		c.ResponsesSent,
		c.BatchRecords,
		c.TransportErrors,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Counters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "counters",
			Help:      "Number of currently registered counters.",
		}, []string{labelTypeID}),

		CommandsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "received_total",
			Help:      "Total commands dispatched.",
		}, []string{labelCommand}),

		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_total",
			Help:      "Total commands answered with an error response.",
		}, []string{labelCommand, labelReason}),

		ResponsesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "responses_total",
			Help:      "Total response records produced.",
		}, []string{labelResponse}),

		BatchRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_records",
			Help:      "Number of command records per batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transport_errors_total",
			Help:      "Total batches dropped because of read, framing or write failures.",
		}, []string{labelTransport}),
	}
}

// -------------------------------------------------------------------------
// Counter Lifecycle
// -------------------------------------------------------------------------

// CounterAdded increments the registered counters gauge for typeID.
func (c *Collector) CounterAdded(typeID int32) {
	c.Counters.WithLabelValues(strconv.Itoa(int(typeID))).Inc()
}

// CounterRemoved decrements the registered counters gauge for typeID.
func (c *Collector) CounterRemoved(typeID int32) {
	c.Counters.WithLabelValues(strconv.Itoa(int(typeID))).Dec()
}

// -------------------------------------------------------------------------
// Commands
// -------------------------------------------------------------------------

// IncCommandsReceived increments the dispatched command counter.
func (c *Collector) IncCommandsReceived(command string) {
	c.CommandsReceived.WithLabelValues(command).Inc()
}

// IncCommandsRejected increments the rejected command counter. reason is
// the error code name carried in the OnError response.
func (c *Collector) IncCommandsRejected(command, reason string) {
	c.CommandsRejected.WithLabelValues(command, reason).Inc()
}

// IncResponsesSent increments the response counter.
func (c *Collector) IncResponsesSent(response string) {
	c.ResponsesSent.WithLabelValues(response).Inc()
}

// ObserveBatch records the number of records in one command batch.
func (c *Collector) ObserveBatch(records int) {
	c.BatchRecords.Observe(float64(records))
}

// IncTransportErrors increments the transport error counter.
func (c *Collector) IncTransportErrors(transport string) {
	c.TransportErrors.WithLabelValues(transport).Inc()
}
