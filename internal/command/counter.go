package command

import (
	"unicode"
	"unicode/utf8"
)

// Counter message field offsets, relative to the message start.
const (
	// CounterTypeIDOffset is the offset of the counter type id field.
	CounterTypeIDOffset = CorrelationIDOffset + SizeOfLong

	// CounterKeyLengthOffset is the offset of the key length field.
	CounterKeyLengthOffset = CounterTypeIDOffset + SizeOfInt

	// CounterKeyBufferOffset is the offset of the first key byte.
	CounterKeyBufferOffset = CounterKeyLengthOffset + SizeOfInt

	// CounterMinimumLength is the smallest region that can hold the fixed
	// header: correlation id, type id and key length.
	CounterMinimumLength = CounterKeyLengthOffset + SizeOfInt
)

// fieldAlignment is the boundary the key section is padded to.
const fieldAlignment = SizeOfInt

// CounterMessage is a view over an AddCounter command.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Correlation ID                        |
//	|                                                               |
//	+---------------------------------------------------------------+
//	|                        Counter Type ID                        |
//	+---------------------------------------------------------------+
//	|                           Key Length                          |
//	+---------------------------------------------------------------+
//	|                     Key Buffer (padded to 4)                 ...
//	...                                                             |
//	+---------------------------------------------------------------+
//	|                          Label Length                         |
//	+---------------------------------------------------------------+
//	|                          Label (ASCII)                       ...
//	...                                                             |
//	+---------------------------------------------------------------+
//
// The label section offset is derived from the key length field each time it
// is needed and is never cached: the key section must be written before the
// label section, and writing the key again moves the label.
//
// Accessors do not bounds-check the declared lengths. A received message must
// pass ValidateLength before Key, Label, LabelBufferOffset or Length are used.
type CounterMessage struct {
	CorrelatedMessage
}

// TruncateTypeID narrows a wide type id to the 4-byte wire field, keeping
// the low 32 bits.
func TruncateTypeID(typeID int64) int32 {
	return int32(typeID)
}

// TypeID returns the counter type id field.
func (m *CounterMessage) TypeID() int32 {
	return getInt32(m.buf, m.offset+CounterTypeIDOffset)
}

// SetTypeID writes the counter type id field.
func (m *CounterMessage) SetTypeID(typeID int32) {
	putInt32(m.buf, m.offset+CounterTypeIDOffset, typeID)
}

// -------------------------------------------------------------------------
// Key section
// -------------------------------------------------------------------------

// KeyBufferOffset returns the absolute offset of the key bytes in the bound
// region.
func (m *CounterMessage) KeyBufferOffset() int {
	return m.offset + CounterKeyBufferOffset
}

// KeyBufferLength returns the declared key length.
func (m *CounterMessage) KeyBufferLength() int {
	return int(getInt32(m.buf, m.offset+CounterKeyLengthOffset))
}

// SetKey writes the key section: length into the key length field, then
// length bytes of src starting at srcOffset. A nil src or zero length
// produces an empty key. Padding up to the next 4-byte boundary is zeroed.
func (m *CounterMessage) SetKey(src []byte, srcOffset, length int) {
	putInt32(m.buf, m.offset+CounterKeyLengthOffset, int32(length))
	if src == nil || length <= 0 {
		return
	}

	start := m.KeyBufferOffset()
	copy(m.buf[start:start+length], src[srcOffset:srcOffset+length])
	clear(m.buf[start+length : start+align(length, fieldAlignment)])
}

// Key returns the key bytes as a slice of the bound region (no copy).
func (m *CounterMessage) Key() []byte {
	start := m.KeyBufferOffset()
	return m.buf[start : start+m.KeyBufferLength()]
}

// -------------------------------------------------------------------------
// Label section
// -------------------------------------------------------------------------

// labelLengthOffset is the offset of the label length field relative to the
// message start. It depends on the current key length field.
func (m *CounterMessage) labelLengthOffset() int {
	return CounterKeyBufferOffset + align(m.KeyBufferLength(), fieldAlignment)
}

// LabelBufferOffset returns the absolute offset of the label bytes in the
// bound region.
func (m *CounterMessage) LabelBufferOffset() int {
	return m.offset + m.labelLengthOffset() + SizeOfInt
}

// LabelBufferLength returns the declared label length.
func (m *CounterMessage) LabelBufferLength() int {
	return int(getInt32(m.buf, m.offset+m.labelLengthOffset()))
}

// SetLabel writes the label section: length into the label length field,
// then length bytes of src starting at srcOffset. A nil src or zero length
// produces an empty label. The key section must already be written.
func (m *CounterMessage) SetLabel(src []byte, srcOffset, length int) {
	putInt32(m.buf, m.offset+m.labelLengthOffset(), int32(length))
	if src == nil || length <= 0 {
		return
	}

	start := m.LabelBufferOffset()
	copy(m.buf[start:start+length], src[srcOffset:srcOffset+length])
}

// SetLabelString writes label as a length-prefixed ASCII string. Each
// non-ASCII character is written as a single '?', so the label length is
// the character count, not the UTF-8 byte count. An invalid UTF-8 byte
// counts as one character.
func (m *CounterMessage) SetLabelString(label string) {
	putInt32(m.buf, m.offset+m.labelLengthOffset(), int32(utf8.RuneCountInString(label)))

	i := m.LabelBufferOffset()
	for _, r := range label {
		if r > unicode.MaxASCII {
			r = '?'
		}
		m.buf[i] = byte(r)
		i++
	}
}

// Label returns the label bytes as a slice of the bound region (no copy).
func (m *CounterMessage) Label() []byte {
	start := m.LabelBufferOffset()
	return m.buf[start : start+m.LabelBufferLength()]
}

// -------------------------------------------------------------------------
// Length and validation
// -------------------------------------------------------------------------

// Length returns the number of bytes the message occupies from its start
// offset. Only accurate once both sections are written or validated.
func (m *CounterMessage) Length() int {
	labelOffset := m.labelLengthOffset()
	return labelOffset + SizeOfInt + m.LabelBufferLength()
}

// ValidateLength checks that a received message of the claimed length fits
// its declared key and label sections. msgTypeID is reported in the error
// for diagnostics. The checks, in order:
//
//  1. length >= CounterMinimumLength (ErrTooShort)
//  2. length lies within the bound region (ErrRegionOverrun)
//  3. the label length field fits after the padded key (ErrTooShortForKey)
//  4. the label bytes fit within length (ErrTooShortForLabel)
//
// Check 2 runs before any declared length is read, so a claimed length past
// the end of the region reports ErrRegionOverrun even when the key or label
// would also fail. A negative declared length fails the check it feeds.
// Every failure is a *ControlProtocolError with ErrorCodeMalformedCommand.
// ValidateLength does not modify the region.
func (m *CounterMessage) ValidateLength(msgTypeID int32, length int) error {
	if length < CounterMinimumLength {
		return newMalformed(msgTypeID, length, ErrTooShort)
	}

	if length > len(m.buf)-m.offset {
		return newMalformed(msgTypeID, length, ErrRegionOverrun)
	}

	// Widen before aligning: the key length is peer-controlled.
	keyLength := int64(m.KeyBufferLength())
	labelOffset := int64(CounterKeyBufferOffset) + align(keyLength, fieldAlignment)
	if keyLength < 0 || int64(length)-labelOffset < SizeOfInt {
		return newMalformed(msgTypeID, length, ErrTooShortForKey)
	}

	labelLength := int64(m.LabelBufferLength())
	if labelLength < 0 || int64(length) < labelOffset+SizeOfInt+labelLength {
		return newMalformed(msgTypeID, length, ErrTooShortForLabel)
	}

	return nil
}
