package command

// -------------------------------------------------------------------------
// OnCounterReady
// -------------------------------------------------------------------------

// Counter update field offsets, relative to the message start.
const (
	// CounterUpdateCounterIDOffset is the offset of the counter id field.
	CounterUpdateCounterIDOffset = CorrelationIDOffset + SizeOfLong

	// CounterUpdateLength is the fixed length of a counter update message.
	CounterUpdateLength = CounterUpdateCounterIDOffset + SizeOfInt
)

// CounterUpdateMessage is a view over an OnCounterReady response: the
// correlation id of the AddCounter command and the assigned counter id.
type CounterUpdateMessage struct {
	CorrelatedMessage
}

// CounterID returns the counter id field.
func (m *CounterUpdateMessage) CounterID() int32 {
	return getInt32(m.buf, m.offset+CounterUpdateCounterIDOffset)
}

// SetCounterID writes the counter id field.
func (m *CounterUpdateMessage) SetCounterID(id int32) {
	putInt32(m.buf, m.offset+CounterUpdateCounterIDOffset, id)
}

// Length returns the fixed message length.
func (m *CounterUpdateMessage) Length() int {
	return CounterUpdateLength
}

// ValidateLength checks that the claimed length holds the fixed message.
func (m *CounterUpdateMessage) ValidateLength(msgTypeID int32, length int) error {
	if length < CounterUpdateLength {
		return newMalformed(msgTypeID, length, ErrTooShort)
	}
	if length > len(m.buf)-m.offset {
		return newMalformed(msgTypeID, length, ErrRegionOverrun)
	}
	return nil
}

// -------------------------------------------------------------------------
// OnOperationSuccess
// -------------------------------------------------------------------------

// OperationSucceededLength is the fixed length of an operation succeeded
// message.
const OperationSucceededLength = CorrelationIDOffset + SizeOfLong

// OperationSucceededMessage is a view over an OnOperationSuccess response.
// It carries only the correlation id of the acknowledged command.
type OperationSucceededMessage struct {
	CorrelatedMessage
}

// Length returns the fixed message length.
func (m *OperationSucceededMessage) Length() int {
	return OperationSucceededLength
}

// ValidateLength checks that the claimed length holds the fixed message.
func (m *OperationSucceededMessage) ValidateLength(msgTypeID int32, length int) error {
	if length < OperationSucceededLength {
		return newMalformed(msgTypeID, length, ErrTooShort)
	}
	if length > len(m.buf)-m.offset {
		return newMalformed(msgTypeID, length, ErrRegionOverrun)
	}
	return nil
}

// -------------------------------------------------------------------------
// OnError
// -------------------------------------------------------------------------

// Error response field offsets, relative to the message start.
const (
	// ErrorCodeOffset is the offset of the error code field.
	ErrorCodeOffset = CorrelationIDOffset + SizeOfLong

	// ErrorMessageLengthOffset is the offset of the error message length.
	ErrorMessageLengthOffset = ErrorCodeOffset + SizeOfInt

	// ErrorMessageOffset is the offset of the first error message byte.
	ErrorMessageOffset = ErrorMessageLengthOffset + SizeOfInt

	// ErrorResponseMinimumLength is the length of an error response with an
	// empty message.
	ErrorResponseMinimumLength = ErrorMessageOffset
)

// ErrorResponseMessage is a view over an OnError response. The correlation
// id field holds the correlation id of the offending command.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|              Offending Command Correlation ID                 |
//	|                                                               |
//	+---------------------------------------------------------------+
//	|                         Error Code                            |
//	+---------------------------------------------------------------+
//	|                   Error Message Length                        |
//	+---------------------------------------------------------------+
//	|                       Error Message                          ...
//	...                                                             |
//	+---------------------------------------------------------------+
type ErrorResponseMessage struct {
	CorrelatedMessage
}

// ErrorCode returns the error code field.
func (m *ErrorResponseMessage) ErrorCode() ErrorCode {
	return ErrorCode(getInt32(m.buf, m.offset+ErrorCodeOffset))
}

// SetErrorCode writes the error code field.
func (m *ErrorResponseMessage) SetErrorCode(code ErrorCode) {
	putInt32(m.buf, m.offset+ErrorCodeOffset, int32(code))
}

// ErrorMessage returns the error message bytes as a slice of the bound
// region (no copy).
func (m *ErrorResponseMessage) ErrorMessage() []byte {
	start := m.offset + ErrorMessageOffset
	return m.buf[start : start+int(getInt32(m.buf, m.offset+ErrorMessageLengthOffset))]
}

// SetErrorMessage writes msg as a length-prefixed string.
func (m *ErrorResponseMessage) SetErrorMessage(msg string) {
	putInt32(m.buf, m.offset+ErrorMessageLengthOffset, int32(len(msg)))
	copy(m.buf[m.offset+ErrorMessageOffset:], msg)
}

// Length returns the number of bytes the message occupies.
func (m *ErrorResponseMessage) Length() int {
	return ErrorMessageOffset + int(getInt32(m.buf, m.offset+ErrorMessageLengthOffset))
}

// ValidateLength checks that the claimed length holds the fixed fields and
// the declared error message.
func (m *ErrorResponseMessage) ValidateLength(msgTypeID int32, length int) error {
	if length < ErrorResponseMinimumLength {
		return newMalformed(msgTypeID, length, ErrTooShort)
	}
	if length > len(m.buf)-m.offset {
		return newMalformed(msgTypeID, length, ErrRegionOverrun)
	}

	msgLength := int64(getInt32(m.buf, m.offset+ErrorMessageLengthOffset))
	if msgLength < 0 || int64(length) < ErrorMessageOffset+msgLength {
		return newMalformed(msgTypeID, length, ErrTooShortForMessage)
	}
	return nil
}
