package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dantte-lp/counterd/internal/command"
)

// batchBufferSize bounds the batches counterctl builds; each holds one
// command.
const batchBufferSize = 1024

// Sentinel errors for command results.
var (
	// errCommandRejected indicates the daemon answered with OnError.
	errCommandRejected = errors.New("command rejected")

	// errUnexpectedResponse indicates a response batch that does not hold
	// exactly one known response record.
	errUnexpectedResponse = errors.New("unexpected response")
)

// commandResult is one decoded response record.
type commandResult struct {
	Response      string `json:"response"             yaml:"response"`
	CorrelationID int64  `json:"correlation_id"       yaml:"correlation_id"`
	CounterID     *int32 `json:"counter_id,omitempty" yaml:"counter_id,omitempty"`
	ErrorCode     string `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Message       string `json:"message,omitempty"    yaml:"message,omitempty"`
}

// buildAddBatch frames a single AddCounter command.
func buildAddBatch(cmd command.CounterCommand) ([]byte, error) {
	var w command.BatchWriter
	w.Reset(make([]byte, batchBufferSize))

	offset, err := w.Reserve(command.AddCounter, cmd.EncodedLength())
	if err != nil {
		return nil, fmt.Errorf("frame add counter: %w", err)
	}
	if _, err := command.EncodeCounterCommand(&cmd, w.Bytes(), offset); err != nil {
		return nil, fmt.Errorf("encode add counter: %w", err)
	}
	return w.Bytes(), nil
}

// buildRemoveBatch frames a single RemoveCounter command.
func buildRemoveBatch(correlationID, registrationID int64) ([]byte, error) {
	var w command.BatchWriter
	w.Reset(make([]byte, batchBufferSize))

	offset, err := w.Reserve(command.RemoveCounter, command.RemoveMessageLength)
	if err != nil {
		return nil, fmt.Errorf("frame remove counter: %w", err)
	}

	var msg command.RemoveMessage
	msg.Wrap(w.Bytes(), offset)
	msg.SetCorrelationID(correlationID)
	msg.SetRegistrationID(registrationID)

	return w.Bytes(), nil
}

// decodeResults decodes every record of a response batch.
func decodeResults(batch []byte) ([]commandResult, error) {
	var results []commandResult

	_, err := command.ForEachRecord(batch, func(msgTypeID int32, buf []byte, offset, length int) error {
		r := commandResult{Response: command.MsgTypeName(msgTypeID)}

		switch msgTypeID {
		case command.OnCounterReady:
			var msg command.CounterUpdateMessage
			msg.Wrap(buf, offset)
			if err := msg.ValidateLength(msgTypeID, length); err != nil {
				return err
			}
			id := msg.CounterID()
			r.CorrelationID = msg.CorrelationID()
			r.CounterID = &id

		case command.OnOperationSuccess:
			var msg command.OperationSucceededMessage
			msg.Wrap(buf, offset)
			if err := msg.ValidateLength(msgTypeID, length); err != nil {
				return err
			}
			r.CorrelationID = msg.CorrelationID()

		case command.OnError:
			var msg command.ErrorResponseMessage
			msg.Wrap(buf, offset)
			if err := msg.ValidateLength(msgTypeID, length); err != nil {
				return err
			}
			r.CorrelationID = msg.CorrelationID()
			r.ErrorCode = msg.ErrorCode().String()
			r.Message = string(msg.ErrorMessage())

		default:
			return fmt.Errorf("%w: %s", errUnexpectedResponse, r.Response)
		}

		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode response batch: %w", err)
	}

	return results, nil
}

// submitOne sends a single-command batch and returns its result. An OnError
// response is returned together with an error wrapping errCommandRejected.
func submitOne(ctx context.Context, s submitter, batch []byte) (commandResult, error) {
	resp, err := s.Submit(ctx, batch)
	if err != nil {
		return commandResult{}, err
	}

	results, err := decodeResults(resp)
	if err != nil {
		return commandResult{}, err
	}
	if len(results) != 1 {
		return commandResult{}, fmt.Errorf("%w: %d records, want 1", errUnexpectedResponse, len(results))
	}

	r := results[0]
	if r.ErrorCode != "" {
		return r, fmt.Errorf("%w: %s: %s", errCommandRejected, r.ErrorCode, r.Message)
	}
	return r, nil
}
