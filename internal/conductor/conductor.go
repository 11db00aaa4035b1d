// Package conductor executes command batches against the counter registry
// and produces the matching response batches.
package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dantte-lp/counterd/internal/command"
	"github.com/dantte-lp/counterd/internal/counters"
)

// maxErrorMessageLength caps the error text carried in an OnError response.
const maxErrorMessageLength = 1024

// -------------------------------------------------------------------------
// Dependencies
// -------------------------------------------------------------------------

// Registry is the counter store the conductor mutates.
type Registry interface {
	Add(registrationID int64, typeID int32, key []byte, label string) (int32, error)
	Remove(registrationID int64) (counters.Counter, error)
}

// MetricsReporter receives per-command observations.
type MetricsReporter interface {
	CounterAdded(typeID int32)
	CounterRemoved(typeID int32)
	IncCommandsReceived(command string)
	IncCommandsRejected(command, reason string)
	IncResponsesSent(response string)
	ObserveBatch(records int)
}

type noopMetrics struct{}

func (noopMetrics) CounterAdded(int32) {}
func (noopMetrics) CounterRemoved(int32) {}
func (noopMetrics) IncCommandsReceived(string) {}
func (noopMetrics) IncCommandsRejected(string, string) {}
func (noopMetrics) IncResponsesSent(string) {}
func (noopMetrics) ObserveBatch(int) {}

// -------------------------------------------------------------------------
// Conductor
// -------------------------------------------------------------------------

// Conductor dispatches command records by message type. It holds no
// per-batch state and is safe for concurrent use when its Registry is.
type Conductor struct {
	registry Registry
	metrics  MetricsReporter
	logger   *slog.Logger
}

// Option configures optional Conductor parameters.
type Option func(*Conductor)

// WithMetrics sets the MetricsReporter. If mr is nil, a no-op reporter is
// used.
func WithMetrics(mr MetricsReporter) Option {
	return func(c *Conductor) {
		if mr != nil {
			c.metrics = mr
		}
	}
}

// New creates a Conductor over registry.
func New(registry Registry, logger *slog.Logger, opts ...Option) *Conductor {
	c := &Conductor{
		registry: registry,
		metrics:  noopMetrics{},
		logger:   logger.With(slog.String("component", "conductor")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process executes every command record in batch and frames one response
// record per command into out. It returns the framed responses, which alias
// out.
//
// A framing error in batch does not fail Process: the records before it are
// executed and an OnError response with correlation id 0 is appended. An
// error is returned only when out cannot hold the responses
// (command.ErrBufTooSmall) or ctx is done; the responses framed so far are
// still returned. A command changes the registry only if its success
// response is framed, so the commands without a response did not run.
func (c *Conductor) Process(ctx context.Context, batch, out []byte) ([]byte, error) {
	var w command.BatchWriter
	w.Reset(out)

	var errResponse error
	n, err := command.ForEachRecord(batch, func(msgTypeID int32, buf []byte, offset, length int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.dispatch(&w, msgTypeID, buf, offset, length); err != nil {
			errResponse = err
			return err
		}
		return nil
	})
	c.metrics.ObserveBatch(n)

	switch {
	case err == nil:
		return w.Bytes(), nil
	case errResponse != nil:
		return w.Bytes(), fmt.Errorf("process batch after %d records: %w", n, errResponse)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return w.Bytes(), fmt.Errorf("process batch after %d records: %w", n, err)
	}

	c.logger.Debug("command batch framing error",
		slog.Int("records", n),
		slog.String("error", err.Error()),
	)
	if rerr := c.respondError(&w, 0, command.ErrorCodeMalformedCommand, err.Error()); rerr != nil {
		return w.Bytes(), fmt.Errorf("process batch after %d records: %w", n, rerr)
	}
	return w.Bytes(), nil
}

// dispatch executes one command. It returns an error only if the response
// could not be framed.
func (c *Conductor) dispatch(w *command.BatchWriter, msgTypeID int32, buf []byte, offset, length int) error {
	name := command.MsgTypeName(msgTypeID)
	c.metrics.IncCommandsReceived(name)

	switch msgTypeID {
	case command.AddCounter:
		return c.onAddCounter(w, buf, offset, length)
	case command.RemoveCounter:
		return c.onRemoveCounter(w, buf, offset, length)
	default:
		return c.reject(w, msgTypeID, correlationID(buf, offset, length),
			command.ErrorCodeUnknownCommandTypeID,
			fmt.Sprintf("command=%d: %v", msgTypeID, command.ErrUnknownCommandType))
	}
}

// -------------------------------------------------------------------------
// Command Handlers
// -------------------------------------------------------------------------

func (c *Conductor) onAddCounter(w *command.BatchWriter, buf []byte, offset, length int) error {
	var msg command.CounterMessage
	msg.Wrap(buf, offset)

	if err := msg.ValidateLength(command.AddCounter, length); err != nil {
		return c.rejectProtocol(w, command.AddCounter, correlationID(buf, offset, length), err)
	}

	correlation := msg.CorrelationID()
	typeID := msg.TypeID()

	// A counter is registered only if its OnCounterReady reply can be framed.
	if err := w.Ensure(command.OnCounterReady, command.CounterUpdateLength); err != nil {
		return err
	}

	counterID, err := c.registry.Add(correlation, typeID, msg.Key(), string(msg.Label()))
	if err != nil {
		return c.reject(w, command.AddCounter, correlation, command.ErrorCodeGeneric, err.Error())
	}

	offset, err = w.Reserve(command.OnCounterReady, command.CounterUpdateLength)
	if err != nil {
		if _, rmErr := c.registry.Remove(correlation); rmErr != nil {
			return errors.Join(err, rmErr)
		}
		return err
	}
	c.metrics.CounterAdded(typeID)

	var resp command.CounterUpdateMessage
	resp.Wrap(w.Bytes(), offset)
	resp.SetCorrelationID(correlation)
	resp.SetCounterID(counterID)
	c.metrics.IncResponsesSent(command.MsgTypeName(command.OnCounterReady))

	return nil
}

func (c *Conductor) onRemoveCounter(w *command.BatchWriter, buf []byte, offset, length int) error {
	var msg command.RemoveMessage
	msg.Wrap(buf, offset)

	if err := msg.ValidateLength(command.RemoveCounter, length); err != nil {
		return c.rejectProtocol(w, command.RemoveCounter, correlationID(buf, offset, length), err)
	}

	correlation := msg.CorrelationID()

	if err := w.Ensure(command.OnOperationSuccess, command.OperationSucceededLength); err != nil {
		return err
	}

	removed, err := c.registry.Remove(msg.RegistrationID())
	if err != nil {
		code := command.ErrorCodeGeneric
		if errors.Is(err, counters.ErrUnknownCounter) {
			code = command.ErrorCodeUnknownCounter
		}
		return c.reject(w, command.RemoveCounter, correlation, code, err.Error())
	}
	c.metrics.CounterRemoved(removed.TypeID)

	offset, err = w.Reserve(command.OnOperationSuccess, command.OperationSucceededLength)
	if err != nil {
		return err
	}

	var resp command.OperationSucceededMessage
	resp.Wrap(w.Bytes(), offset)
	resp.SetCorrelationID(correlation)
	c.metrics.IncResponsesSent(command.MsgTypeName(command.OnOperationSuccess))

	return nil
}

// -------------------------------------------------------------------------
// Error Responses
// -------------------------------------------------------------------------

// rejectProtocol answers a command that failed length validation.
func (c *Conductor) rejectProtocol(w *command.BatchWriter, msgTypeID int32, correlation int64, err error) error {
	code := command.ErrorCodeGeneric
	var cpe *command.ControlProtocolError
	if errors.As(err, &cpe) {
		code = cpe.Code
	}
	return c.reject(w, msgTypeID, correlation, code, err.Error())
}

func (c *Conductor) reject(
	w *command.BatchWriter,
	msgTypeID int32,
	correlation int64,
	code command.ErrorCode,
	text string,
) error {
	c.metrics.IncCommandsRejected(command.MsgTypeName(msgTypeID), code.String())

	c.logger.Debug("command rejected",
		slog.String("command", command.MsgTypeName(msgTypeID)),
		slog.Int64("correlation_id", correlation),
		slog.String("code", code.String()),
		slog.String("error", text),
	)

	return c.respondError(w, correlation, code, text)
}

func (c *Conductor) respondError(w *command.BatchWriter, correlation int64, code command.ErrorCode, text string) error {
	if len(text) > maxErrorMessageLength {
		text = text[:maxErrorMessageLength]
	}

	offset, err := w.Reserve(command.OnError, command.ErrorMessageOffset+len(text))
	if err != nil {
		return err
	}

	var resp command.ErrorResponseMessage
	resp.Wrap(w.Bytes(), offset)
	resp.SetCorrelationID(correlation)
	resp.SetErrorCode(code)
	resp.SetErrorMessage(text)
	c.metrics.IncResponsesSent(command.MsgTypeName(command.OnError))

	return nil
}

// correlationID returns the correlation id of a command that may be
// malformed, or 0 when the record is too short to carry one.
func correlationID(buf []byte, offset, length int) int64 {
	if length < command.SizeOfLong {
		return 0
	}
	var msg command.CorrelatedMessage
	msg.Wrap(buf, offset)
	return msg.CorrelationID()
}
