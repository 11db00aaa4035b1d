// Package command implements the client-to-service command protocol codec.
//
// Messages are flyweight views over caller-owned byte regions: a view is
// bound to a buffer and a start offset, and every field is read or written
// in place at a fixed or computed offset. Views never copy or allocate.
// Received messages MUST be validated with ValidateLength before any
// variable-length field is trusted.
//
// All fields are little-endian.
package command
