package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dantte-lp/counterd/internal/command"
)

// transportName labels metrics for this transport.
const transportName = "udp"

// ErrNoListeners indicates that Run was called without any listeners.
var ErrNoListeners = errors.New("receiver run: no listeners provided")

// Handler executes a command batch and frames the responses into out.
// This interface decouples the receiver from the conductor package.
type Handler interface {
	Process(ctx context.Context, batch, out []byte) ([]byte, error)
}

// MetricsReporter receives transport failures.
type MetricsReporter interface {
	IncTransportErrors(transport string)
}

type noopMetrics struct{}

func (noopMetrics) IncTransportErrors(string) {}

// Receiver reads command batches from one or more Listeners, hands each to
// a Handler and writes the response batch back to the sender.
type Receiver struct {
	handler      Handler
	metrics      MetricsReporter
	writeTimeout time.Duration
	logger       *slog.Logger
}

// ReceiverOption configures optional Receiver parameters.
type ReceiverOption func(*Receiver)

// WithWriteTimeout bounds each response write.
func WithWriteTimeout(d time.Duration) ReceiverOption {
	return func(r *Receiver) {
		r.writeTimeout = d
	}
}

// WithReceiverMetrics sets the MetricsReporter. If mr is nil, a no-op
// reporter is used.
func WithReceiverMetrics(mr MetricsReporter) ReceiverOption {
	return func(r *Receiver) {
		if mr != nil {
			r.metrics = mr
		}
	}
}

// NewReceiver creates a Receiver that passes batches to handler.
func NewReceiver(handler Handler, logger *slog.Logger, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		handler: handler,
		metrics: noopMetrics{},
		logger:  logger.With(slog.String("component", "netio.receiver")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads from all listeners concurrently until ctx is cancelled. Each
// listener gets its own goroutine. A read blocked in the kernel returns once
// its listener is closed, so callers close listeners after cancelling ctx.
//
// Errors from individual datagrams are logged but do not stop the
// receiver.
func (r *Receiver) Run(ctx context.Context, listeners ...*Listener) error {
	if len(listeners) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	done := make(chan struct{}, len(listeners))

	for _, ln := range listeners {
		go func(l *Listener) {
			r.recvLoop(ctx, l)
			done <- struct{}{}
		}(ln)
	}

	for range len(listeners) {
		<-done
	}

	return nil
}

// recvLoop serves a single Listener until ctx is cancelled.
func (r *Receiver) recvLoop(ctx context.Context, ln *Listener) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.recvOne(ctx, ln); err != nil {
			// Context cancellation during read is expected at shutdown.
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrSocketClosed) || errors.Is(err, net.ErrClosed) {
				r.logger.Info("listener closed", slog.String("addr", ln.LocalAddr().String()))
				return
			}
			r.metrics.IncTransportErrors(transportName)
			r.logger.Warn("command batch failed", slog.String("error", err.Error()))
		}
	}
}

// recvOne performs a single receive-process-reply cycle. Both pooled
// buffers are returned before it exits.
func (r *Receiver) recvOne(ctx context.Context, ln *Listener) error {
	dgram, err := ln.Recv(ctx)
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}
	defer dgram.Release()

	outp, ok := command.BatchPool.Get().(*[]byte)
	if !ok {
		return fmt.Errorf("recv from %s: %w", dgram.Meta.Src, ErrPoolType)
	}
	defer command.BatchPool.Put(outp)

	out := (*outp)[:min(ln.MaxBatch(), maxDatagramPayload)]
	resp, procErr := r.handler.Process(ctx, dgram.Data, out)
	if procErr != nil {
		r.logger.Warn("command batch incomplete",
			slog.String("src", dgram.Meta.Src.String()),
			slog.String("error", procErr.Error()),
		)
	}

	if len(resp) == 0 {
		return nil
	}

	if err := ln.Reply(resp, dgram.Meta.Src, r.writeTimeout); err != nil {
		return fmt.Errorf("recv from %s: %w", dgram.Meta.Src, err)
	}

	return nil
}
