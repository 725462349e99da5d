// Package observability provides gRPC interceptors and the metrics server.
package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"encounter-scribe-service/internal/observability/metrics"
)

// UnaryServerInterceptor records and logs every unary call.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		observe(m, info.FullMethod, err, time.Since(start), "gRPC unary call")
		return resp, err
	}
}

// StreamServerInterceptor records and logs every stream once it ends.
// Health watchers hold streams open, so these can be long.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		err := handler(srv, ss)

		observe(m, info.FullMethod, err, time.Since(start), "gRPC stream completed")
		return err
	}
}

func observe(m *metrics.Metrics, method string, err error, duration time.Duration, msg string) {
	st, _ := status.FromError(err)
	code := st.Code().String()
	m.RecordGRPCCall(method, code, duration.Seconds())

	event := log.Debug()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Str("method", method).
		Str("code", code).
		Dur("duration", duration).
		Msg(msg)
}
