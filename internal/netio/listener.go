package netio

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/dantte-lp/counterd/internal/command"
)

// maxDatagramPayload is the largest UDP payload over IPv4.
const maxDatagramPayload = 65507

// -------------------------------------------------------------------------
// Datagram: pooled receive buffer
// -------------------------------------------------------------------------

// Datagram is one received command batch. Data aliases a buffer from
// command.BatchPool; Release returns it and must be called exactly once.
type Datagram struct {
	// Data is the received batch.
	Data []byte

	// Meta is the transport metadata.
	Meta PacketMeta

	bufp *[]byte
}

// Release returns the datagram buffer to command.BatchPool.
func (d *Datagram) Release() {
	if d.bufp != nil {
		command.BatchPool.Put(d.bufp)
		d.bufp = nil
		d.Data = nil
	}
}

// -------------------------------------------------------------------------
// Listener: command batch receive loop
// -------------------------------------------------------------------------

// Listener wraps a PacketConn and provides a context-aware receive loop
// for command batches, using command.BatchPool for buffers.
type Listener struct {
	conn     PacketConn
	maxBatch int
}

// NewListener binds a command socket on laddr. maxBatch caps the bytes
// read per datagram and is clamped to command.MaxBatchLength.
func NewListener(ctx context.Context, laddr netip.AddrPort, maxBatch int, opts SocketOptions) (*Listener, error) {
	conn, err := ListenUDP(ctx, laddr, opts)
	if err != nil {
		return nil, fmt.Errorf("create command listener: %w", err)
	}

	return NewListenerFromConn(conn, maxBatch), nil
}

// NewListenerFromConn creates a Listener from an existing PacketConn.
// This is useful for testing with mock connections.
func NewListenerFromConn(conn PacketConn, maxBatch int) *Listener {
	if maxBatch <= 0 || maxBatch > command.MaxBatchLength {
		maxBatch = command.MaxBatchLength
	}

	return &Listener{
		conn:     conn,
		maxBatch: maxBatch,
	}
}

// MaxBatch returns the per-datagram byte limit.
func (l *Listener) MaxBatch() int {
	return l.maxBatch
}

// Recv blocks until a datagram is received or ctx is cancelled. Empty
// datagrams are skipped. The caller must Release the returned Datagram.
func (l *Listener) Recv(ctx context.Context) (Datagram, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Datagram{}, fmt.Errorf("listener recv: %w", err)
		}

		dgram, err := l.recvOne()
		if err != nil {
			return Datagram{}, err
		}

		if len(dgram.Data) == 0 {
			dgram.Release()
			continue
		}

		return dgram, nil
	}
}

// recvOne performs a single read from the underlying connection using a
// pooled buffer.
func (l *Listener) recvOne() (Datagram, error) {
	bufp, ok := command.BatchPool.Get().(*[]byte)
	if !ok {
		return Datagram{}, fmt.Errorf("listener recv: %w", ErrPoolType)
	}

	n, meta, err := l.conn.ReadPacket((*bufp)[:l.maxBatch])
	if err != nil {
		command.BatchPool.Put(bufp)
		return Datagram{}, fmt.Errorf("listener read: %w", err)
	}

	return Datagram{Data: (*bufp)[:n], Meta: meta, bufp: bufp}, nil
}

// Reply sends a response batch to dst, bounded by timeout when positive.
func (l *Listener) Reply(buf []byte, dst netip.AddrPort, timeout time.Duration) error {
	if len(buf) > maxDatagramPayload {
		return fmt.Errorf("reply %d bytes to %s: %w", len(buf), dst, ErrDatagramTooLarge)
	}

	if timeout > 0 {
		if err := l.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("reply to %s: %w", dst, err)
		}
	}

	if err := l.conn.WritePacket(buf, dst); err != nil {
		return fmt.Errorf("reply to %s: %w", dst, err)
	}
	return nil
}

// LocalAddr returns the bound address.
func (l *Listener) LocalAddr() netip.AddrPort {
	return l.conn.LocalAddr()
}

// Close closes the underlying PacketConn.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}
