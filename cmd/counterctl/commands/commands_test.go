package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dantte-lp/counterd/internal/command"
	"github.com/dantte-lp/counterd/internal/conductor"
	"github.com/dantte-lp/counterd/internal/counters"
)

// conductorSubmitter runs batches in-process.
type conductorSubmitter struct {
	c *conductor.Conductor
}

func (s conductorSubmitter) Submit(ctx context.Context, batch []byte) ([]byte, error) {
	return s.c.Process(ctx, batch, make([]byte, command.MaxBatchLength))
}

func newInProcess() conductorSubmitter {
	logger := slog.New(slog.DiscardHandler)
	return conductorSubmitter{c: conductor.New(counters.New(logger), logger)}
}

func int32p(v int32) *int32 { return &v }

func TestAddRemoveRoundTrip(t *testing.T) {
	t.Parallel()

	s := newInProcess()
	ctx := context.Background()

	add, err := buildAddBatch(command.CounterCommand{CorrelationID: 7, TypeID: 42, Label: "orders-queue"})
	if err != nil {
		t.Fatalf("buildAddBatch: %v", err)
	}
	got, err := submitOne(ctx, s, add)
	if err != nil {
		t.Fatalf("submit add: %v", err)
	}
	want := commandResult{Response: "on_counter_ready", CorrelationID: 7, CounterID: int32p(0)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("add result mismatch (-want +got):\n%s", diff)
	}

	remove, err := buildRemoveBatch(8, 7)
	if err != nil {
		t.Fatalf("buildRemoveBatch: %v", err)
	}
	got, err = submitOne(ctx, s, remove)
	if err != nil {
		t.Fatalf("submit remove: %v", err)
	}
	if diff := cmp.Diff(commandResult{Response: "on_operation_success", CorrelationID: 8}, got); diff != "" {
		t.Errorf("remove result mismatch (-want +got):\n%s", diff)
	}

	got, err = submitOne(ctx, s, remove)
	if !errors.Is(err, errCommandRejected) {
		t.Fatalf("second remove: err = %v, want errCommandRejected", err)
	}
	if got.ErrorCode != "UNKNOWN_COUNTER" || got.CorrelationID != 8 {
		t.Errorf("second remove result = %+v", got)
	}
}

func TestSubmitOneMultipleRecords(t *testing.T) {
	t.Parallel()

	var w command.BatchWriter
	w.Reset(make([]byte, 256))
	for _, corr := range []int64{1, 2} {
		offset, err := w.Reserve(command.RemoveCounter, command.RemoveMessageLength)
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		var msg command.RemoveMessage
		msg.Wrap(w.Bytes(), offset)
		msg.SetCorrelationID(corr)
		msg.SetRegistrationID(99)
	}

	_, err := submitOne(context.Background(), newInProcess(), w.Bytes())
	if !errors.Is(err, errUnexpectedResponse) {
		t.Errorf("err = %v, want errUnexpectedResponse", err)
	}
}

func TestFormatResult(t *testing.T) {
	t.Parallel()

	r := commandResult{Response: "on_counter_ready", CorrelationID: 7, CounterID: int32p(3)}

	tests := []struct {
		format string
		want   []string
	}{
		{format: formatTable, want: []string{"Response:", "on_counter_ready", "Counter ID:", "3"}},
		{format: formatJSON, want: []string{`"correlation_id": 7`, `"counter_id": 3`}},
		{format: formatYAML, want: []string{"correlation_id: 7", "counter_id: 3"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			out, err := formatResult(r, tt.format)
			if err != nil {
				t.Fatalf("formatResult: %v", err)
			}
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output %q does not contain %q", out, s)
				}
			}
			if strings.Contains(out, "error_code") {
				t.Errorf("output %q contains empty error fields", out)
			}
		})
	}

	if _, err := formatResult(r, "xml"); !errors.Is(err, errUnsupportedFormat) {
		t.Errorf("xml: err = %v, want errUnsupportedFormat", err)
	}
}

func TestCountersFromStruct(t *testing.T) {
	t.Parallel()

	st, err := structpb.NewStruct(map[string]any{
		"count":    int64(1),
		"counters": []any{
			map[string]any{
				"counter_id":      int64(4),
				"registration_id": "1099511627776",
				"type_id":         int64(42),
				"key":             "dead",
				"label":           "orders-queue",
				"registered":      "2026-01-02T03:04:05Z",
			},
		},
	})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}

	got, err := countersFromStruct(st)
	if err != nil {
		t.Fatalf("countersFromStruct: %v", err)
	}

	want := []counterRow{{
		CounterID:      4,
		RegistrationID: "1099511627776",
		TypeID:         42,
		Key:            "dead",
		Label:          "orders-queue",
		Registered:     "2026-01-02T03:04:05Z",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if _, err := countersFromStruct(&structpb.Struct{}); !errors.Is(err, errMalformedListing) {
		t.Errorf("empty struct: err = %v, want errMalformedListing", err)
	}
}

func TestFormatCountersTable(t *testing.T) {
	t.Parallel()

	out, err := formatCounters([]counterRow{{CounterID: 0, RegistrationID: "7", TypeID: 42, Label: "orders-queue", Registered: "2026-01-02T03:04:05Z"}}, formatTable)
	if err != nil {
		t.Fatalf("formatCounters: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if fields := strings.Fields(lines[1]); len(fields) != 6 || fields[3] != valueNone {
		t.Errorf("row = %q, want six columns with %q key", lines[1], valueNone)
	}
}

func TestCheckFormat(t *testing.T) {
	t.Parallel()

	for _, f := range []string{formatTable, formatJSON, formatYAML} {
		if err := checkFormat(f); err != nil {
			t.Errorf("checkFormat(%q) = %v", f, err)
		}
	}
	if err := checkFormat("csv"); !errors.Is(err, errUnsupportedFormat) {
		t.Errorf("checkFormat(csv) = %v, want errUnsupportedFormat", err)
	}
}

// TestNewSubmitterUnknown mutates package flags and must not run in parallel.
func TestNewSubmitterUnknown(t *testing.T) {
	saved := transportName
	t.Cleanup(func() { transportName = saved })

	transportName = "carrier-pigeon"
	if _, err := newSubmitter(); !errors.Is(err, errUnknownTransport) {
		t.Errorf("err = %v, want errUnknownTransport", err)
	}

	transportName = transportUDP
	s, err := newSubmitter()
	if err != nil {
		t.Fatalf("newSubmitter(udp): %v", err)
	}
	if _, ok := s.(udpSubmitter); !ok {
		t.Errorf("submitter = %T, want udpSubmitter", s)
	}
}
