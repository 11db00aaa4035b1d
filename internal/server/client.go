package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls CounterService procedures.
type Client struct {
	submit *connect.Client[wrapperspb.BytesValue, wrapperspb.BytesValue]
	list   *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewClient creates a Client for the service at baseURL
// (e.g. "http://localhost:50061").
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		submit: connect.NewClient[wrapperspb.BytesValue, wrapperspb.BytesValue](
			httpClient, baseURL+SubmitCommandsProcedure, opts...,
		),
		list: connect.NewClient[emptypb.Empty, structpb.Struct](
			httpClient, baseURL+ListCountersProcedure,
			append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...,
		),
	}
}

// SubmitCommands sends a framed command batch and returns the response
// batch.
func (c *Client) SubmitCommands(ctx context.Context, batch []byte) ([]byte, error) {
	resp, err := c.submit.CallUnary(ctx, connect.NewRequest(wrapperspb.Bytes(batch)))
	if err != nil {
		return nil, err
	}
	return resp.Msg.GetValue(), nil
}

// ListCounters returns the raw counter listing.
func (c *Client) ListCounters(ctx context.Context) (*structpb.Struct, error) {
	resp, err := c.list.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
