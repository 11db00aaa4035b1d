package command

import (
	"fmt"
	"unicode/utf8"
)

// CounterCommand holds the decoded fields of an AddCounter command. It is
// the value-level alternative to driving a CounterMessage field by field.
type CounterCommand struct {
	// CorrelationID pairs the command with its response.
	CorrelationID int64

	// TypeID classifies the counter.
	TypeID int32

	// Key is the optional opaque key. After DecodeCounterCommand it
	// references the source region (zero-copy); copy it before the region is
	// reused.
	Key []byte

	// Label is the ASCII label.
	Label string
}

// EncodedLength returns the number of bytes EncodeCounterCommand writes.
// The label takes one byte per character.
func (c *CounterCommand) EncodedLength() int {
	return CounterKeyBufferOffset + align(len(c.Key), fieldAlignment) + SizeOfInt + utf8.RuneCountInString(c.Label)
}

// EncodeCounterCommand writes cmd into buf at offset and returns the encoded
// length. The capacity is checked once up front, so no field is written when
// the buffer is too small.
func EncodeCounterCommand(cmd *CounterCommand, buf []byte, offset int) (int, error) {
	need := cmd.EncodedLength()
	if offset < 0 || len(buf)-offset < need {
		return 0, fmt.Errorf("encode counter command: need %d bytes at offset %d, buffer has %d: %w",
			need, offset, len(buf), ErrBufTooSmall)
	}

	var msg CounterMessage
	msg.Wrap(buf, offset)
	msg.SetCorrelationID(cmd.CorrelationID)
	msg.SetTypeID(cmd.TypeID)
	msg.SetKey(cmd.Key, 0, len(cmd.Key))
	msg.SetLabelString(cmd.Label)

	return msg.Length(), nil
}

// DecodeCounterCommand validates the AddCounter command of the claimed
// length at offset and fills cmd. It returns the validation error unchanged
// so callers can report it with errors.As.
func DecodeCounterCommand(buf []byte, offset, length int, cmd *CounterCommand) error {
	var msg CounterMessage
	msg.Wrap(buf, offset)
	if err := msg.ValidateLength(AddCounter, length); err != nil {
		return err
	}

	cmd.CorrelationID = msg.CorrelationID()
	cmd.TypeID = msg.TypeID()
	cmd.Key = msg.Key()
	cmd.Label = string(msg.Label())

	return nil
}
