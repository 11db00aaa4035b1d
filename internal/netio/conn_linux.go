//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// UDPConn: command socket
// -------------------------------------------------------------------------

// SocketOptions configures the command socket.
type SocketOptions struct {
	// ReadBufferBytes sets SO_RCVBUF. Zero keeps the kernel default.
	ReadBufferBytes int
}

// UDPConn implements PacketConn over a UDP socket configured with
// SO_REUSEADDR and, when requested, an enlarged receive buffer.
type UDPConn struct {
	conn      *net.UDPConn
	localAddr netip.AddrPort
	closed    bool
	mu        sync.Mutex
}

// ListenUDP binds a command socket on laddr. A zero port binds an
// ephemeral port; LocalAddr reports the one chosen.
func ListenUDP(ctx context.Context, laddr netip.AddrPort, opts SocketOptions) (*UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSocketOpts(c, opts)
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp", laddr.String())
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", laddr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, errors.Join(
			fmt.Errorf("listen UDP %s: %w", laddr, ErrUnexpectedConnType),
			closeErr,
		)
	}

	bound := laddr
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		bound = ua.AddrPort()
	}

	return &UDPConn{
		conn:      conn,
		localAddr: bound,
	}, nil
}

// ReadPacket reads a single datagram from the socket.
func (c *UDPConn) ReadPacket(buf []byte) (int, PacketMeta, error) {
	n, src, err := c.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, PacketMeta{}, fmt.Errorf("read command datagram: %w", err)
	}

	return n, PacketMeta{Src: netip.AddrPortFrom(src.Addr().Unmap(), src.Port())}, nil
}

// WritePacket sends buf to dst.
func (c *UDPConn) WritePacket(buf []byte, dst netip.AddrPort) error {
	if _, err := c.conn.WriteToUDPAddrPort(buf, dst); err != nil {
		return fmt.Errorf("write response datagram to %s: %w", dst, err)
	}
	return nil
}

// SetWriteDeadline sets the deadline for future WritePacket calls.
func (c *UDPConn) SetWriteDeadline(t time.Time) error {
	if err := c.conn.SetWriteDeadline(t); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return nil
}

// Close releases the underlying socket. Closing twice is a no-op.
func (c *UDPConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close command socket: %w", err)
	}
	return nil
}

// LocalAddr returns the local address and port the socket is bound to.
func (c *UDPConn) LocalAddr() netip.AddrPort {
	return c.localAddr
}

// -------------------------------------------------------------------------
// Socket options
// -------------------------------------------------------------------------

// setSocketOpts applies SocketOptions via the Control callback.
func setSocketOpts(c syscall.RawConn, opts SocketOptions) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		sockErr = applySockOpts(int(fd), opts)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}

// applySockOpts sets individual socket options on the file descriptor.
func applySockOpts(fd int, opts SocketOptions) error {
	// SO_REUSEADDR: allow a restarted daemon to rebind immediately.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	if opts.ReadBufferBytes > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.ReadBufferBytes); err != nil {
			return fmt.Errorf("set SO_RCVBUF(%d): %w", opts.ReadBufferBytes, err)
		}
	}

	return nil
}
