package countermetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	countermetrics "github.com/dantte-lp/counterd/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := countermetrics.NewCollector(reg)

	if c.Counters == nil || c.CommandsReceived == nil || c.CommandsRejected == nil ||
		c.ResponsesSent == nil || c.BatchRecords == nil || c.TransportErrors == nil {
		t.Fatal("collector has nil metric")
	}

	c.IncCommandsReceived("add_counter")
	c.ObserveBatch(1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"counterd_command_received_total",
		"counterd_command_batch_records",
	} {
		if !names[want] {
			t.Errorf("metric family %q not gathered", want)
		}
	}
}

func TestNewCollectorDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	countermetrics.NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("second NewCollector on the same registry did not panic")
		}
	}()
	countermetrics.NewCollector(reg)
}

func TestCounterLifecycle(t *testing.T) {
	t.Parallel()

	c := countermetrics.NewCollector(prometheus.NewRegistry())

	c.CounterAdded(42)
	c.CounterAdded(42)
	c.CounterAdded(7)
	c.CounterRemoved(42)

	if val := gaugeValue(t, c.Counters, "42"); val != 1 {
		t.Errorf("type 42 gauge = %v, want 1", val)
	}
	if val := gaugeValue(t, c.Counters, "7"); val != 1 {
		t.Errorf("type 7 gauge = %v, want 1", val)
	}
}

func TestCommandCounters(t *testing.T) {
	t.Parallel()

	c := countermetrics.NewCollector(prometheus.NewRegistry())

	c.IncCommandsReceived("add_counter")
	c.IncCommandsReceived("add_counter")
	c.IncCommandsReceived("remove_counter")
	c.IncCommandsRejected("add_counter", "MALFORMED_COMMAND")
	c.IncResponsesSent("on_counter_ready")
	c.IncTransportErrors("udp")

	tests := []struct {
		name   string
		vec    *prometheus.CounterVec
		labels []string
		want   float64
	}{
		{"received add", c.CommandsReceived, []string{"add_counter"}, 2},
		{"received remove", c.CommandsReceived, []string{"remove_counter"}, 1},
		{"rejected malformed", c.CommandsRejected, []string{"add_counter", "MALFORMED_COMMAND"}, 1},
		{"rejected unknown", c.CommandsRejected, []string{"add_counter", "UNKNOWN_COUNTER"}, 0},
		{"responses", c.ResponsesSent, []string{"on_counter_ready"}, 1},
		{"transport", c.TransportErrors, []string{"udp"}, 1},
	}

	for _, tt := range tests {
		if got := counterValue(t, tt.vec, tt.labels...); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestObserveBatch(t *testing.T) {
	t.Parallel()

	c := countermetrics.NewCollector(prometheus.NewRegistry())
	c.ObserveBatch(1)
	c.ObserveBatch(3)

	m := &dto.Metric{}
	if err := c.BatchRecords.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	h := m.GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() != 4 {
		t.Errorf("sample sum = %v, want 4", h.GetSampleSum())
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a GaugeVec with the given labels.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
