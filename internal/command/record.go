package command

import (
	"errors"
	"fmt"
	"sync"
)

// Record framing. Commands travel in batches of records; each record is an
// 8-byte header followed by one message and starts on an 8-byte boundary.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                Record Length (including header)               |
//	+---------------------------------------------------------------+
//	|                        Message Type ID                        |
//	+---------------------------------------------------------------+
//	|                            Message                           ...
//	...                                                             |
//	+---------------------------------------------------------------+
const (
	// RecordHeaderLength is the size of the record header.
	RecordHeaderLength = 2 * SizeOfInt

	// RecordAlignment is the boundary every record starts on.
	RecordAlignment = 8

	recordLengthOffset = 0
	recordTypeOffset   = SizeOfInt
)

// MaxBatchLength is the size of pooled batch buffers and the largest batch
// a single datagram may carry.
const MaxBatchLength = 64 * 1024

// Record framing errors.
var (
	// ErrRecordTruncated indicates fewer than RecordHeaderLength bytes remain
	// where a record header is expected.
	ErrRecordTruncated = errors.New("record header truncated")

	// ErrRecordLength indicates a record length shorter than its header or
	// longer than the remaining batch.
	ErrRecordLength = errors.New("invalid record length")
)

// RecordHandler receives one record: the message type, the batch buffer,
// and the offset and length of the message within it.
type RecordHandler func(msgTypeID int32, buf []byte, offset, length int) error

// ForEachRecord walks the records in batch, calling handler for each. It
// returns the number of records delivered. Iteration stops at the first
// framing error or handler error.
func ForEachRecord(batch []byte, handler RecordHandler) (int, error) {
	count := 0
	pos := 0

	for pos < len(batch) {
		remaining := len(batch) - pos
		if remaining < RecordHeaderLength {
			return count, fmt.Errorf("record at %d: %d bytes remain: %w", pos, remaining, ErrRecordTruncated)
		}

		recordLength := int(getInt32(batch, pos+recordLengthOffset))
		if recordLength < RecordHeaderLength || recordLength > remaining {
			return count, fmt.Errorf("record at %d: length %d, %d bytes remain: %w",
				pos, recordLength, remaining, ErrRecordLength)
		}

		msgTypeID := getInt32(batch, pos+recordTypeOffset)
		if err := handler(msgTypeID, batch, pos+RecordHeaderLength, recordLength-RecordHeaderLength); err != nil {
			return count, fmt.Errorf("record at %d: %w", pos, err)
		}
		count++

		pos += align(recordLength, RecordAlignment)
	}

	return count, nil
}

// BatchWriter frames records into a caller-owned buffer.
type BatchWriter struct {
	buf []byte
	pos int
}

// Reset binds the writer to buf and discards any framed records.
func (w *BatchWriter) Reset(buf []byte) {
	w.buf = buf
	w.pos = 0
}

// Reserve frames a record of msgTypeID with room for a message of length
// bytes, and returns the offset at which the caller writes the message.
// Alignment padding after the message is zeroed.
func (w *BatchWriter) Reserve(msgTypeID int32, length int) (int, error) {
	if err := w.Ensure(msgTypeID, length); err != nil {
		return 0, err
	}

	recordLength := RecordHeaderLength + length
	aligned := align(recordLength, RecordAlignment)

	putInt32(w.buf, w.pos+recordLengthOffset, int32(recordLength))
	putInt32(w.buf, w.pos+recordTypeOffset, msgTypeID)
	clear(w.buf[w.pos+recordLength : w.pos+aligned])

	offset := w.pos + RecordHeaderLength
	w.pos += aligned

	return offset, nil
}

// Ensure reports whether a record with a message of length bytes still fits,
// without framing it. A nil result means the next Reserve of that size
// succeeds.
func (w *BatchWriter) Ensure(msgTypeID int32, length int) error {
	aligned := align(RecordHeaderLength+length, RecordAlignment)
	if length < 0 || aligned > len(w.buf)-w.pos {
		return fmt.Errorf("reserve %s record of %d bytes, %d free: %w",
			MsgTypeName(msgTypeID), length, len(w.buf)-w.pos, ErrBufTooSmall)
	}
	return nil
}

// Len returns the number of framed bytes.
func (w *BatchWriter) Len() int {
	return w.pos
}

// Bytes returns the framed records. The slice aliases the writer's buffer.
func (w *BatchWriter) Bytes() []byte {
	return w.buf[:w.pos]
}

// -------------------------------------------------------------------------
// BatchPool
// -------------------------------------------------------------------------

// BatchPool provides reusable MaxBatchLength buffers for batch I/O. It
// stores *[]byte so Get and Put do not allocate.
//
// Usage:
//
//	bufp := command.BatchPool.Get().(*[]byte)
//	defer command.BatchPool.Put(bufp)
var BatchPool = sync.Pool{
	New: func() any {
		buf := make([]byte, MaxBatchLength)
		return &buf
	},
}
