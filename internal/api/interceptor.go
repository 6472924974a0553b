package api

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpcstatus "google.golang.org/grpc/status"
)

// LogUnary logs every unary call with its outcome and duration.
func LogUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("took", time.Since(start)),
		}
		if err != nil {
			st := grpcstatus.Convert(err)
			logger.Warn("rpc failed", append(fields, zap.String("code", st.Code().String()), zap.String("error", st.Message()))...)
			return resp, err
		}
		logger.Debug("rpc", fields...)
		return resp, nil
	}
}
