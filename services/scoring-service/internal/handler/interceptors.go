package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/metrics"
)

// ServerOptions chains request logging and latency metrics in front of
// every unary method.
func ServerOptions(m *metrics.Metrics, log *logger.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(log.With("component", "grpc")),
			metricsInterceptor(m),
		),
	}
}

func loggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
		switch code {
		case codes.OK:
			log.Debug("RPC handled", fields...)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			log.Error("RPC failed", append(fields, "error", err)...)
		default:
			log.Info("RPC rejected", append(fields, "error", err)...)
		}
		return resp, err
	}
}

func metricsInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}
