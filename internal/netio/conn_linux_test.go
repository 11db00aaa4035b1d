//go:build linux

package netio_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/dantte-lp/counterd/internal/netio"
)

// TestLoopbackExchange runs a Client against a Receiver over a real
// loopback socket.
func TestLoopbackExchange(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := netio.NewListener(ctx, netip.MustParseAddrPort("127.0.0.1:0"), 4096,
		netio.SocketOptions{ReadBufferBytes: 1 << 16})
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	if ln.LocalAddr().Port() == 0 {
		t.Fatal("LocalAddr() reports port 0 after bind")
	}

	r := netio.NewReceiver(&echoHandler{}, slog.New(slog.DiscardHandler),
		netio.WithWriteTimeout(time.Second))

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, ln)
	}()

	client, err := netio.Dial(ctx, ln.LocalAddr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	batch := []byte{8, 0, 0, 0, 4, 15, 0, 0}
	resp, err := client.Exchange(ctx, batch)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if !bytes.Equal(resp, batch) {
		t.Errorf("response = %v, want %v", resp, batch)
	}

	cancel()
	if err := ln.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestClientExchangeTimeout(t *testing.T) {
	t.Parallel()

	// A bound socket nobody reads from never answers.
	ctx := context.Background()
	conn, err := netio.ListenUDP(ctx, netip.MustParseAddrPort("127.0.0.1:0"), netio.SocketOptions{})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer conn.Close()

	client, err := netio.Dial(ctx, conn.LocalAddr().String(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Exchange(ctx, []byte{1}); err == nil {
		t.Error("Exchange: expected timeout error")
	}
	if _, err := client.Exchange(ctx, nil); !errors.Is(err, netio.ErrEmptyBatch) {
		t.Errorf("Exchange(nil): err = %v, want ErrEmptyBatch", err)
	}
}

func TestUDPConnCloseTwice(t *testing.T) {
	t.Parallel()

	conn, err := netio.ListenUDP(context.Background(), netip.MustParseAddrPort("127.0.0.1:0"), netio.SocketOptions{})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
