package command

import "fmt"

// Command message type identifiers (client -> service).
const (
	// AddCounter requests registration of a new counter.
	AddCounter int32 = 0x09

	// RemoveCounter requests removal of a counter by registration id.
	RemoveCounter int32 = 0x0A
)

// Response message type identifiers (service -> client).
const (
	// OnError reports that a command was rejected.
	OnError int32 = 0x0F01

	// OnOperationSuccess acknowledges a command that has no other response.
	OnOperationSuccess int32 = 0x0F04

	// OnCounterReady reports the counter id assigned to an AddCounter command.
	OnCounterReady int32 = 0x0F08
)

// MsgTypeName returns a short name for a message type id.
func MsgTypeName(msgTypeID int32) string {
	switch msgTypeID {
	case AddCounter:
		return "add_counter"
	case RemoveCounter:
		return "remove_counter"
	case OnError:
		return "on_error"
	case OnOperationSuccess:
		return "on_operation_success"
	case OnCounterReady:
		return "on_counter_ready"
	default:
		return fmt.Sprintf("unknown(0x%X)", msgTypeID)
	}
}
