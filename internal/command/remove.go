package command

// Remove message field offsets, relative to the message start.
const (
	// RemoveRegistrationIDOffset is the offset of the registration id field.
	RemoveRegistrationIDOffset = CorrelationIDOffset + SizeOfLong

	// RemoveMessageLength is the fixed length of a remove message.
	RemoveMessageLength = RemoveRegistrationIDOffset + SizeOfLong
)

// RemoveMessage is a view over a RemoveCounter command. The registration id
// is the correlation id of the AddCounter command that created the counter.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Correlation ID                        |
//	|                                                               |
//	+---------------------------------------------------------------+
//	|                        Registration ID                        |
//	|                                                               |
//	+---------------------------------------------------------------+
type RemoveMessage struct {
	CorrelatedMessage
}

// RegistrationID returns the registration id field.
func (m *RemoveMessage) RegistrationID() int64 {
	return getInt64(m.buf, m.offset+RemoveRegistrationIDOffset)
}

// SetRegistrationID writes the registration id field.
func (m *RemoveMessage) SetRegistrationID(id int64) {
	putInt64(m.buf, m.offset+RemoveRegistrationIDOffset, id)
}

// Length returns the fixed message length.
func (m *RemoveMessage) Length() int {
	return RemoveMessageLength
}

// ValidateLength checks that the claimed length holds the fixed message and
// lies within the bound region.
func (m *RemoveMessage) ValidateLength(msgTypeID int32, length int) error {
	if length < RemoveMessageLength {
		return newMalformed(msgTypeID, length, ErrTooShort)
	}
	if length > len(m.buf)-m.offset {
		return newMalformed(msgTypeID, length, ErrRegionOverrun)
	}
	return nil
}
