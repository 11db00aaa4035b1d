package server_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"connectrpc.com/connect"

	"github.com/dantte-lp/counterd/internal/command"
	"github.com/dantte-lp/counterd/internal/counters"
	"github.com/dantte-lp/counterd/internal/server"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// setupPanicServer creates a test server whose processor panics, using the
// given handler options (interceptors).
func setupPanicServer(t *testing.T, opts ...connect.HandlerOption) *server.Client {
	t.Helper()

	proc := processorFunc(func(context.Context, []byte, []byte) ([]byte, error) {
		panic("intentional test panic")
	})
	return serve(t, proc, counters.New(slog.New(slog.DiscardHandler)), 0, opts...)
}

// -------------------------------------------------------------------------
// TestLoggingInterceptor
// -------------------------------------------------------------------------

func TestLoggingInterceptorSuccess(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, _ := setupTestServer(t, server.LoggingInterceptorOption(logger))

	if _, err := client.ListCounters(context.Background()); err != nil {
		t.Fatalf("ListCounters: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "rpc completed") {
		t.Errorf("log output %q does not contain %q", out, "rpc completed")
	}
	if !strings.Contains(out, server.ListCountersProcedure) {
		t.Errorf("log output %q does not name the procedure", out)
	}
}

func TestLoggingInterceptorError(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	client, _ := setupTestServer(t, server.LoggingInterceptorOption(logger))

	_, err := client.SubmitCommands(context.Background(), nil)
	wantCode(t, err, connect.CodeInvalidArgument)

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "code=invalid_argument") {
		t.Errorf("log output %q missing info entry with code", out)
	}
	if strings.Contains(out, "level=WARN") {
		t.Errorf("client fault logged at warn: %q", out)
	}
}

func TestLoggingInterceptorBatchSizes(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, _ := setupTestServer(t, server.LoggingInterceptorOption(logger))

	batch := addBatch(t, command.CounterCommand{CorrelationID: 7, TypeID: 42, Label: "orders-queue"})
	resp, err := client.SubmitCommands(context.Background(), batch)
	if err != nil {
		t.Fatalf("SubmitCommands: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		fmt.Sprintf("request_bytes=%d", len(batch)),
		fmt.Sprintf("response_bytes=%d", len(resp)),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q does not contain %q", out, want)
		}
	}
}

// countingReporter records IncTransportErrors calls.
type countingReporter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingReporter) IncTransportErrors(transport string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[transport]++
}

func (r *countingReporter) get(transport string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[transport]
}

func TestLoggingInterceptorReportsServerFaults(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	reporter := &countingReporter{}
	opts := []connect.HandlerOption{
		server.LoggingInterceptorOption(logger, server.WithErrorReporter(reporter)),
		server.RecoveryInterceptorOption(logger),
	}

	client := setupPanicServer(t, opts...)
	_, err := client.SubmitCommands(context.Background(), make([]byte, 16))
	wantCode(t, err, connect.CodeInternal)

	// Client faults are not counted.
	_, err = client.SubmitCommands(context.Background(), nil)
	wantCode(t, err, connect.CodeInvalidArgument)

	if got := reporter.get("rpc"); got != 1 {
		t.Errorf("rpc errors reported = %d, want 1", got)
	}
}

// -------------------------------------------------------------------------
// TestRecoveryInterceptor
// -------------------------------------------------------------------------

func TestRecoveryInterceptorNoPanic(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	client, _ := setupTestServer(t, server.RecoveryInterceptorOption(logger))

	if _, err := client.ListCounters(context.Background()); err != nil {
		t.Fatalf("ListCounters: %v", err)
	}
}

func TestRecoveryInterceptorPanic(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	client := setupPanicServer(t, server.RecoveryInterceptorOption(logger))

	_, err := client.SubmitCommands(context.Background(), make([]byte, 16))
	wantCode(t, err, connect.CodeInternal)
}

// -------------------------------------------------------------------------
// TestBothInterceptors: logging + recovery together
// -------------------------------------------------------------------------

func TestBothInterceptors(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	client := setupPanicServer(t,
		server.LoggingInterceptorOption(logger),
		server.RecoveryInterceptorOption(logger),
	)

	_, err := client.SubmitCommands(context.Background(), make([]byte, 16))
	wantCode(t, err, connect.CodeInternal)
}
