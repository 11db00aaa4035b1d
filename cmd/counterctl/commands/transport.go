package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dantte-lp/counterd/internal/netio"
	"github.com/dantte-lp/counterd/internal/server"
)

const (
	transportRPC = "rpc"
	transportUDP = "udp"
)

// errUnknownTransport is returned for a --transport value other than rpc or udp.
var errUnknownTransport = errors.New("unknown transport, expected rpc or udp")

// submitter sends a framed command batch and returns the response batch.
type submitter interface {
	Submit(ctx context.Context, batch []byte) ([]byte, error)
}

// rpcSubmitter sends batches through SubmitCommands.
type rpcSubmitter struct {
	client *server.Client
}

func (s rpcSubmitter) Submit(ctx context.Context, batch []byte) ([]byte, error) {
	resp, err := s.client.SubmitCommands(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("submit commands: %w", err)
	}
	return resp, nil
}

// udpSubmitter sends each batch as one datagram from a fresh socket.
type udpSubmitter struct {
	addr    string
	timeout time.Duration
}

func (s udpSubmitter) Submit(ctx context.Context, batch []byte) ([]byte, error) {
	c, err := netio.Dial(ctx, s.addr, s.timeout)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	resp, err := c.Exchange(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("exchange with %s: %w", s.addr, err)
	}
	return resp, nil
}

// newSubmitter returns the submitter selected by --transport.
func newSubmitter() (submitter, error) {
	switch transportName {
	case transportRPC:
		return rpcSubmitter{client: rpcClient}, nil
	case transportUDP:
		return udpSubmitter{addr: commandAddr, timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownTransport, transportName)
	}
}
