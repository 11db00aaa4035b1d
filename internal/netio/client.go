package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dantte-lp/counterd/internal/command"
)

// defaultClientTimeout bounds an Exchange when ctx has no deadline.
const defaultClientTimeout = 3 * time.Second

// ErrEmptyBatch indicates Exchange was called with no records.
var ErrEmptyBatch = errors.New("empty command batch")

// Client sends command batches to a counterd UDP listener and waits for
// the response batch.
type Client struct {
	conn    *net.UDPConn
	timeout time.Duration
}

// Dial connects a Client to addr ("host:port"). timeout bounds each
// Exchange when the caller's context has no deadline; zero selects a
// default.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	conn, ok := c.(*net.UDPConn)
	if !ok {
		closeErr := c.Close()
		return nil, errors.Join(fmt.Errorf("dial %s: %w", addr, ErrUnexpectedConnType), closeErr)
	}

	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	return &Client{conn: conn, timeout: timeout}, nil
}

// Exchange sends batch as one datagram and returns the response batch.
// The returned slice is owned by the caller.
func (c *Client) Exchange(ctx context.Context, batch []byte) ([]byte, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(batch) > maxDatagramPayload {
		return nil, fmt.Errorf("exchange %d bytes: %w", len(batch), ErrDatagramTooLarge)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	if _, err := c.conn.Write(batch); err != nil {
		return nil, fmt.Errorf("exchange: send: %w", err)
	}

	bufp, ok := command.BatchPool.Get().(*[]byte)
	if !ok {
		return nil, fmt.Errorf("exchange: %w", ErrPoolType)
	}
	defer command.BatchPool.Put(bufp)

	n, err := c.conn.Read(*bufp)
	if err != nil {
		return nil, fmt.Errorf("exchange: receive: %w", err)
	}

	resp := make([]byte, n)
	copy(resp, (*bufp)[:n])
	return resp, nil
}

// Close closes the client socket.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close client: %w", err)
	}
	return nil
}
