package netio

import (
	"errors"
	"net/netip"
	"time"
)

// -------------------------------------------------------------------------
// Transport Metadata
// -------------------------------------------------------------------------

// PacketMeta contains transport-layer metadata of a received datagram.
type PacketMeta struct {
	// Src is the source address and port. Responses are sent here.
	Src netip.AddrPort
}

// -------------------------------------------------------------------------
// PacketConn Interface
// -------------------------------------------------------------------------

// PacketConn abstracts datagram send/receive so the listener and receiver
// can be tested without sockets.
type PacketConn interface {
	// ReadPacket reads a single datagram into buf.
	// Returns the number of bytes read and transport metadata.
	ReadPacket(buf []byte) (n int, meta PacketMeta, err error)

	// WritePacket sends buf as a single datagram to dst.
	WritePacket(buf []byte, dst netip.AddrPort) error

	// SetWriteDeadline bounds subsequent WritePacket calls. A zero value
	// disables the deadline.
	SetWriteDeadline(t time.Time) error

	// Close releases the underlying socket resources.
	Close() error

	// LocalAddr returns the local address and port the socket is bound to.
	LocalAddr() netip.AddrPort
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrPoolType indicates the batch pool returned an unexpected type.
	ErrPoolType = errors.New("batch pool returned unexpected type")

	// ErrUnexpectedConnType indicates net.ListenPacket returned a
	// connection that is not a *net.UDPConn.
	ErrUnexpectedConnType = errors.New("unexpected connection type from ListenPacket")

	// ErrDatagramTooLarge indicates a response batch exceeds the maximum
	// datagram size.
	ErrDatagramTooLarge = errors.New("datagram exceeds maximum batch size")
)
