package rpc

import (
	"context"

	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const requestIDMetadataKey = "x-request-id"

// OperationIDUnaryServerInterceptor ensures an operation_id is present on the
// context, sourcing it from the x-request-id metadata if provided, and
// attaches a per-call logger annotated with operation_id and method.
func OperationIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(withCallLogger(ctx, base, info.FullMethod), req)
	}
}

// OperationIDStreamServerInterceptor is the streaming counterpart of
// OperationIDUnaryServerInterceptor.
func OperationIDStreamServerInterceptor(base logging.Logger) grpc.StreamServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := withCallLogger(ss.Context(), base, info.FullMethod)
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}

func withCallLogger(ctx context.Context, base logging.Logger, method string) context.Context {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if incoming := firstHeader(md, requestIDMetadataKey); incoming != "" {
			ctx = logging.ContextWithOperationID(ctx, incoming)
		}
	}
	ctx, callLog := logging.WithOperationLogger(ctx, base.With(logging.String("method", method)))
	return logging.ContextWithLogger(ctx, callLog)
}

type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
