package command

import (
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Error Codes
// -------------------------------------------------------------------------

// ErrorCode classifies a rejected command. The numeric value is carried on
// the wire in OnError responses.
type ErrorCode int32

const (
	// ErrorCodeGeneric is an unclassified failure.
	ErrorCodeGeneric ErrorCode = 0

	// ErrorCodeUnknownCounter indicates a command referenced a counter that
	// is not registered.
	ErrorCodeUnknownCounter ErrorCode = 5

	// ErrorCodeUnknownCommandTypeID indicates an unrecognized message type.
	ErrorCodeUnknownCommandTypeID ErrorCode = 6

	// ErrorCodeMalformedCommand indicates a command whose declared lengths
	// do not fit the received region.
	ErrorCodeMalformedCommand ErrorCode = 7
)

// String returns the human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeGeneric:
		return "GENERIC_ERROR"
	case ErrorCodeUnknownCounter:
		return "UNKNOWN_COUNTER"
	case ErrorCodeUnknownCommandTypeID:
		return "UNKNOWN_COMMAND_TYPE_ID"
	case ErrorCodeMalformedCommand:
		return "MALFORMED_COMMAND"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(c))
	}
}

// Err returns the sentinel error matching the code.
func (c ErrorCode) Err() error {
	switch c {
	case ErrorCodeUnknownCounter:
		return ErrUnknownCounter
	case ErrorCodeUnknownCommandTypeID:
		return ErrUnknownCommandType
	case ErrorCodeMalformedCommand:
		return ErrMalformedCommand
	default:
		return ErrGeneric
	}
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

// Error classifications. A *ControlProtocolError unwraps to the one matching
// its Code.
var (
	// ErrGeneric is the classification for ErrorCodeGeneric.
	ErrGeneric = errors.New("generic error")

	// ErrUnknownCounter is the classification for ErrorCodeUnknownCounter.
	ErrUnknownCounter = errors.New("unknown counter")

	// ErrUnknownCommandType is the classification for
	// ErrorCodeUnknownCommandTypeID.
	ErrUnknownCommandType = errors.New("unknown command type id")

	// ErrMalformedCommand is the classification for ErrorCodeMalformedCommand.
	ErrMalformedCommand = errors.New("malformed command")
)

// Length validation failures. Each is reported inside a *ControlProtocolError
// with ErrorCodeMalformedCommand.
var (
	// ErrTooShort indicates the region cannot hold the fixed header.
	ErrTooShort = errors.New("too short")

	// ErrTooShortForKey indicates the declared key length pushes the label
	// length field past the end of the region.
	ErrTooShortForKey = errors.New("too short for key")

	// ErrTooShortForLabel indicates the declared label length runs past the
	// end of the region.
	ErrTooShortForLabel = errors.New("too short for label")

	// ErrTooShortForMessage indicates a variable-length response message
	// whose payload runs past the end of the region.
	ErrTooShortForMessage = errors.New("too short for message")

	// ErrRegionOverrun indicates the claimed length runs past the end of the
	// bound buffer.
	ErrRegionOverrun = errors.New("claimed length exceeds buffer")
)

// ErrBufTooSmall indicates the destination buffer cannot hold the encoded
// message.
var ErrBufTooSmall = errors.New("buffer too small for command")

// -------------------------------------------------------------------------
// ControlProtocolError
// -------------------------------------------------------------------------

// ControlProtocolError reports a command rejected by the protocol layer. It
// carries the message type identifier supplied by the dispatcher and the
// claimed total length, for diagnostics.
type ControlProtocolError struct {
	// Code classifies the failure.
	Code ErrorCode

	// MsgTypeID is the message type the command was dispatched as.
	MsgTypeID int32

	// Length is the claimed length of the command in bytes.
	Length int

	// Reason is the specific failure, e.g. ErrTooShortForKey.
	Reason error
}

// newMalformed builds a MALFORMED_COMMAND error for a length check failure.
func newMalformed(msgTypeID int32, length int, reason error) *ControlProtocolError {
	return &ControlProtocolError{
		Code:      ErrorCodeMalformedCommand,
		MsgTypeID: msgTypeID,
		Length:    length,
		Reason:    reason,
	}
}

// Error implements error.
func (e *ControlProtocolError) Error() string {
	return fmt.Sprintf("%s: command=%d %v: length=%d", e.Code, e.MsgTypeID, e.Reason, e.Length)
}

// Unwrap exposes both the code classification and the specific reason to
// errors.Is.
func (e *ControlProtocolError) Unwrap() []error {
	if e.Reason == nil {
		return []error{e.Code.Err()}
	}
	return []error{e.Code.Err(), e.Reason}
}
