// Package server implements the ConnectRPC surface of the counter daemon.
//
// The service has no generated stubs: both procedures use well-known
// protobuf types as envelopes. SubmitCommands carries a raw command batch in
// a BytesValue and returns the response batch the same way; ListCounters
// returns the registry as a Struct.
package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dantte-lp/counterd/internal/command"
	"github.com/dantte-lp/counterd/internal/counters"
)

// Procedure names.
const (
	// ServiceName is the fully qualified service name.
	ServiceName = "counterd.v1.CounterService"

	// SubmitCommandsProcedure runs a command batch.
	SubmitCommandsProcedure = "/" + ServiceName + "/SubmitCommands"

	// ListCountersProcedure lists registered counters.
	ListCountersProcedure = "/" + ServiceName + "/ListCounters"
)

// TruncatedHeader is set on a SubmitCommands response when the response
// batch filled before every command ran. Commands without a response record
// were not executed.
const TruncatedHeader = "Counterd-Batch-Truncated"

// Request errors.
var (
	// ErrEmptyBatch indicates a SubmitCommands request without records.
	ErrEmptyBatch = errors.New("command batch is empty")

	// ErrBatchTooLarge indicates a batch over the configured maximum.
	ErrBatchTooLarge = errors.New("command batch too large")
)

// Processor executes a command batch. Implemented by conductor.Conductor.
type Processor interface {
	Process(ctx context.Context, batch, out []byte) ([]byte, error)
}

// CounterLister provides the registry snapshot. Implemented by
// counters.Registry.
type CounterLister interface {
	Counters() []counters.Counter
}

// CounterServer serves the counter RPCs.
//
// The server is a thin adapter between the RPC envelopes and the conductor
// and registry.
type CounterServer struct {
	processor Processor
	lister    CounterLister
	maxBatch  int
	logger    *slog.Logger
}

// New creates a CounterServer and returns the HTTP handler and the path
// prefix to mount it on. maxBatch caps request and response batch size and
// is clamped to command.MaxBatchLength.
func New(
	processor Processor,
	lister CounterLister,
	maxBatch int,
	logger *slog.Logger,
	opts ...connect.HandlerOption,
) (string, http.Handler) {
	if maxBatch <= 0 || maxBatch > command.MaxBatchLength {
		maxBatch = command.MaxBatchLength
	}

	srv := &CounterServer{
		processor: processor,
		lister:    lister,
		maxBatch:  maxBatch,
		logger:    logger.With(slog.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.Handle(SubmitCommandsProcedure, connect.NewUnaryHandler(
		SubmitCommandsProcedure, srv.SubmitCommands, opts...,
	))
	mux.Handle(ListCountersProcedure, connect.NewUnaryHandler(
		ListCountersProcedure, srv.ListCounters,
		append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...,
	))

	return "/" + ServiceName + "/", mux
}

// SubmitCommands runs the command batch in req and returns the response
// batch. Per-command failures are carried as OnError records in the
// response, not as RPC errors. When the response batch fills, the responses
// framed so far are returned with TruncatedHeader set; ResourceExhausted is
// returned only if not even the first response fit.
func (s *CounterServer) SubmitCommands(
	ctx context.Context,
	req *connect.Request[wrapperspb.BytesValue],
) (*connect.Response[wrapperspb.BytesValue], error) {
	batch := req.Msg.GetValue()
	if len(batch) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrEmptyBatch)
	}
	if len(batch) > s.maxBatch {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("%d bytes, max %d: %w", len(batch), s.maxBatch, ErrBatchTooLarge))
	}

	outp, ok := command.BatchPool.Get().(*[]byte)
	if !ok {
		return nil, connect.NewError(connect.CodeInternal, errors.New("batch pool returned unexpected type"))
	}
	defer command.BatchPool.Put(outp)

	resp, err := s.processor.Process(ctx, batch, (*outp)[:s.maxBatch])
	truncated := false
	if err != nil {
		// Every framed response belongs to a command that ran.
		if !errors.Is(err, command.ErrBufTooSmall) || len(resp) == 0 {
			return nil, mapProcessError(err)
		}
		s.logger.Warn("response batch truncated",
			slog.Int("response_bytes", len(resp)),
			slog.String("error", err.Error()),
		)
		truncated = true
	}

	out := make([]byte, len(resp))
	copy(out, resp)

	res := connect.NewResponse(wrapperspb.Bytes(out))
	if truncated {
		res.Header().Set(TruncatedHeader, "true")
	}
	return res, nil
}

// ListCounters returns every registered counter, sorted by counter id.
//
// Response shape:
//
//	{"count": 1, "counters": [{"counter_id": 0, "registration_id": "7",
//	  "type_id": 42, "key": "", "label": "orders-queue",
//	  "registered": "2026-01-02T03:04:05Z"}]}
//
// Registration ids are strings because they are 64-bit and Struct numbers
// are doubles.
func (s *CounterServer) ListCounters(
	_ context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	snapshot := s.lister.Counters()

	list := make([]any, 0, len(snapshot))
	for _, c := range snapshot {
		list = append(list, map[string]any{
			"counter_id":      int64(c.ID),
			"registration_id": strconv.FormatInt(c.RegistrationID, 10),
			"type_id":         int64(c.TypeID),
			"key":             hex.EncodeToString(c.Key),
			"label":           c.Label,
			"registered":      c.Registered.UTC().Format(time.RFC3339),
		})
	}

	st, err := structpb.NewStruct(map[string]any{
		"count":    int64(len(snapshot)),
		"counters": list,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode counter list: %w", err))
	}

	return connect.NewResponse(st), nil
}

// mapProcessError converts a conductor error to a connect error.
func mapProcessError(err error) *connect.Error {
	switch {
	case errors.Is(err, command.ErrBufTooSmall):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
