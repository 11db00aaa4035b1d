package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// transportName labels RPC failures reported to an ErrorReporter.
const transportName = "rpc"

// ErrPanicRecovered indicates an RPC handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in rpc handler")

// ErrorReporter counts failed RPCs. Implemented by countermetrics.Collector.
type ErrorReporter interface {
	IncTransportErrors(transport string)
}

type noopReporter struct{}

func (noopReporter) IncTransportErrors(string) {}

// InterceptorOption configures LoggingInterceptor.
type InterceptorOption func(*interceptorConfig)

type interceptorConfig struct {
	reporter ErrorReporter
}

// WithErrorReporter counts every RPC that fails for a reason other than a
// bad or abandoned request. If r is nil, failures are only logged.
func WithErrorReporter(r ErrorReporter) InterceptorOption {
	return func(c *interceptorConfig) {
		if r != nil {
			c.reporter = r
		}
	}
}

// clientFault reports whether code blames the caller rather than the daemon.
func clientFault(code connect.Code) bool {
	switch code {
	case connect.CodeInvalidArgument, connect.CodeCanceled, connect.CodeDeadlineExceeded:
		return true
	default:
		return false
	}
}

// LoggingInterceptor returns a ConnectRPC unary interceptor that logs every
// RPC call with the procedure name, peer, duration, command batch sizes and
// error (if any).
//
// Successful calls are logged at Debug. Calls rejected for a client fault
// (invalid batch, canceled, deadline) are logged at Info; other failures are
// logged at Warn and counted by the ErrorReporter.
func LoggingInterceptor(logger *slog.Logger, opts ...InterceptorOption) connect.UnaryInterceptorFunc {
	cfg := interceptorConfig{reporter: noopReporter{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []slog.Attr{
				slog.String("procedure", req.Spec().Procedure),
				slog.String("peer", req.Peer().Addr),
				slog.Duration("duration", time.Since(start)),
			}
			attrs = append(attrs, batchAttrs(req, resp)...)

			if err == nil {
				logger.LogAttrs(ctx, slog.LevelDebug, "rpc completed", attrs...)
				return resp, nil
			}

			code := connect.CodeOf(err)
			attrs = append(attrs,
				slog.String("code", code.String()),
				slog.String("error", err.Error()),
			)
			if clientFault(code) {
				logger.LogAttrs(ctx, slog.LevelInfo, "rpc rejected", attrs...)
			} else {
				cfg.reporter.IncTransportErrors(transportName)
				logger.LogAttrs(ctx, slog.LevelWarn, "rpc completed with error", attrs...)
			}

			return resp, err
		}
	}
}

// batchAttrs describes the command batches carried by a SubmitCommands call.
// Other procedures yield no attributes.
func batchAttrs(req connect.AnyRequest, resp connect.AnyResponse) []slog.Attr {
	in, ok := req.Any().(*wrapperspb.BytesValue)
	if !ok {
		return nil
	}

	attrs := []slog.Attr{slog.Int("request_bytes", len(in.GetValue()))}
	if resp == nil {
		return attrs
	}
	if out, ok := resp.Any().(*wrapperspb.BytesValue); ok {
		attrs = append(attrs, slog.Int("response_bytes", len(out.GetValue())))
	}
	if resp.Header().Get(TruncatedHeader) != "" {
		attrs = append(attrs, slog.Bool("truncated", true))
	}
	return attrs
}

// RecoveryInterceptor returns a ConnectRPC unary interceptor that recovers
// from panics in RPC handlers. On panic, it logs the panic value, the
// request batch size and stack trace at Error level and returns a
// CodeInternal error to the client.
func RecoveryInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)

					attrs := []slog.Attr{
						slog.String("procedure", req.Spec().Procedure),
						slog.String("peer", req.Peer().Addr),
						slog.Any("panic", r),
					}
					attrs = append(attrs, batchAttrs(req, nil)...)
					attrs = append(attrs, slog.String("stack", string(buf[:n])))
					logger.LogAttrs(ctx, slog.LevelError, "panic recovered in rpc handler", attrs...)

					retErr = connect.NewError(connect.CodeInternal,
						fmt.Errorf("%s: %w", req.Spec().Procedure, ErrPanicRecovered))
				}
			}()

			return next(ctx, req)
		}
	}
}

// LoggingInterceptorOption wraps LoggingInterceptor as a handler option.
func LoggingInterceptorOption(logger *slog.Logger, opts ...InterceptorOption) connect.HandlerOption {
	return connect.WithInterceptors(LoggingInterceptor(logger, opts...))
}

// RecoveryInterceptorOption wraps RecoveryInterceptor as a handler option.
func RecoveryInterceptorOption(logger *slog.Logger) connect.HandlerOption {
	return connect.WithInterceptors(RecoveryInterceptor(logger))
}
