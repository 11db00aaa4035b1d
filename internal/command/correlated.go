package command

import "encoding/binary"

// Primitive field widths.
const (
	// SizeOfInt is the width of a 32-bit wire field.
	SizeOfInt = 4

	// SizeOfLong is the width of a 64-bit wire field.
	SizeOfLong = 8
)

// CorrelationIDOffset is the offset of the correlation id within every
// correlated message.
const CorrelationIDOffset = 0

// CorrelatedMessage is the common header of every command and response: an
// opaque 8-byte token that pairs a request with its response. The protocol
// layer never interprets it.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Correlation ID                        |
//	|                                                               |
//	+---------------------------------------------------------------+
type CorrelatedMessage struct {
	buf    []byte
	offset int
}

// Wrap binds the view to buf at offset. The view does not take ownership of
// buf and must not outlive it.
func (m *CorrelatedMessage) Wrap(buf []byte, offset int) {
	m.buf = buf
	m.offset = offset
}

// Buffer returns the bound region.
func (m *CorrelatedMessage) Buffer() []byte {
	return m.buf
}

// Offset returns the message start offset within the bound region.
func (m *CorrelatedMessage) Offset() int {
	return m.offset
}

// CorrelationID returns the correlation id field.
func (m *CorrelatedMessage) CorrelationID() int64 {
	return getInt64(m.buf, m.offset+CorrelationIDOffset)
}

// SetCorrelationID writes the correlation id field.
func (m *CorrelatedMessage) SetCorrelationID(id int64) {
	putInt64(m.buf, m.offset+CorrelationIDOffset, id)
}

// -------------------------------------------------------------------------
// Field helpers
// -------------------------------------------------------------------------

func getInt32(buf []byte, index int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[index : index+SizeOfInt]))
}

func putInt32(buf []byte, index int, v int32) {
	binary.LittleEndian.PutUint32(buf[index:index+SizeOfInt], uint32(v))
}

func getInt64(buf []byte, index int) int64 {
	return int64(binary.LittleEndian.Uint64(buf[index : index+SizeOfLong]))
}

func putInt64(buf []byte, index int, v int64) {
	binary.LittleEndian.PutUint64(buf[index:index+SizeOfLong], uint64(v))
}

// align rounds value up to the next multiple of alignment, which must be a
// power of two.
func align[T int | int64](value, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}
