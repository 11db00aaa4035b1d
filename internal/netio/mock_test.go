package netio_test

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/dantte-lp/counterd/internal/netio"
)

// -------------------------------------------------------------------------
// MockPacketConn: Test double for PacketConn
// -------------------------------------------------------------------------

// MockPacketConn implements netio.PacketConn for testing without real
// sockets. It provides injectable read/write behavior and records writes.
type MockPacketConn struct {
	mu        sync.Mutex
	localAddr netip.AddrPort
	closed    bool
	deadlines []time.Time

	// ReadFunc is called by ReadPacket without holding the mock's lock, so
	// it may block.
	ReadFunc func(buf []byte) (int, netio.PacketMeta, error)

	// WriteFunc is called by WritePacket. Set this to control write behavior.
	WriteFunc func(buf []byte, dst netip.AddrPort) error

	written []writtenPacket
}

// writtenPacket records a single WritePacket call.
type writtenPacket struct {
	Data []byte
	Dst  netip.AddrPort
}

// NewMockPacketConn creates a MockPacketConn with the given local address.
func NewMockPacketConn(addr netip.AddrPort) *MockPacketConn {
	return &MockPacketConn{localAddr: addr}
}

// ReadPacket implements PacketConn.ReadPacket using the injectable ReadFunc.
func (m *MockPacketConn) ReadPacket(buf []byte) (int, netio.PacketMeta, error) {
	m.mu.Lock()
	closed, read := m.closed, m.ReadFunc
	m.mu.Unlock()

	if closed {
		return 0, netio.PacketMeta{}, netio.ErrSocketClosed
	}
	if read == nil {
		return 0, netio.PacketMeta{}, errors.New("mock: ReadFunc not set")
	}
	return read(buf)
}

// WritePacket implements PacketConn.WritePacket.
func (m *MockPacketConn) WritePacket(buf []byte, dst netip.AddrPort) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return netio.ErrSocketClosed
	}

	// Copy the buffer so the test can inspect it after the caller reuses it.
	data := make([]byte, len(buf))
	copy(data, buf)
	m.written = append(m.written, writtenPacket{Data: data, Dst: dst})

	if m.WriteFunc != nil {
		return m.WriteFunc(buf, dst)
	}
	return nil
}

// SetWriteDeadline implements PacketConn.SetWriteDeadline.
func (m *MockPacketConn) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deadlines = append(m.deadlines, t)
	return nil
}

// Close implements PacketConn.Close.
func (m *MockPacketConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// LocalAddr implements PacketConn.LocalAddr.
func (m *MockPacketConn) LocalAddr() netip.AddrPort {
	return m.localAddr
}

// Written returns a copy of the recorded writes.
func (m *MockPacketConn) Written() []writtenPacket {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]writtenPacket(nil), m.written...)
}

// Deadlines returns the recorded write deadlines.
func (m *MockPacketConn) Deadlines() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]time.Time(nil), m.deadlines...)
}

// chanReader returns a ReadFunc that serves datagrams from ch and reports
// ErrSocketClosed once ch is closed.
func chanReader(ch <-chan []byte, src netip.AddrPort) func([]byte) (int, netio.PacketMeta, error) {
	return func(buf []byte) (int, netio.PacketMeta, error) {
		p, ok := <-ch
		if !ok {
			return 0, netio.PacketMeta{}, netio.ErrSocketClosed
		}
		return copy(buf, p), netio.PacketMeta{Src: src}, nil
	}
}
