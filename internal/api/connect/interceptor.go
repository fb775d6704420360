package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// loggingInterceptor logs every handled call with its procedure, duration and result code.
type loggingInterceptor struct{}

// NewLoggingInterceptor creates a server-side interceptor that logs unary calls and streams.
func NewLoggingInterceptor() connect.Interceptor {
	return &loggingInterceptor{}
}

func (i *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		start := time.Now()
		resp, err := next(ctx, req)
		logCall(req.Spec().Procedure, req.Peer().Addr, start, err)
		return resp, err
	}
}

func (i *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		zlog.Debug().Msgf("stream opened: procedure=%s peer=%s", conn.Spec().Procedure, conn.Peer().Addr)
		err := next(ctx, conn)
		logCall(conn.Spec().Procedure, conn.Peer().Addr, start, err)
		return err
	}
}

func logCall(procedure, peer string, start time.Time, err error) {
	code := "ok"
	var ev *zerolog.Event
	switch {
	case err == nil:
		ev = zlog.Info()
	case connect.CodeOf(err) == connect.CodeInternal, connect.CodeOf(err) == connect.CodeUnknown:
		ev = zlog.Error().Err(err)
	default:
		ev = zlog.Warn().Err(err)
	}
	if err != nil {
		code = connect.CodeOf(err).String()
	}
	ev.Msgf("rpc: procedure=%s peer=%s code=%s duration=%s", procedure, peer, code, time.Since(start))
}
