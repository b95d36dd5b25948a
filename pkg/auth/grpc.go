package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// UnaryServerInterceptor returns a gRPC unary server interceptor that runs
// the authenticator on the "authorization" metadata value and then the
// guard. A guard failure is returned as codes.Unauthenticated. A nil guard
// admits every call.
func UnaryServerInterceptor(authenticator Authenticator, guard GuardFunc) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, authenticator, guard)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(authenticator Authenticator, guard GuardFunc) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), authenticator, guard)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticateGRPC(ctx context.Context, authenticator Authenticator, guard GuardFunc) (context.Context, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(strings.ToLower(HeaderAuthorization)); len(values) > 0 {
			header = values[0]
		}
	}

	ctx = authenticator.TryAuthenticate(ctx, header)

	if guard == nil {
		return ctx, nil
	}
	if err := guard(ctx); err != nil {
		msg := err.Error()
		if e, ok := sserr.AsError(err); ok {
			msg = e.Message
		}
		return ctx, status.Error(codes.Unauthenticated, msg)
	}
	return ctx, nil
}

// wrappedServerStream overrides the stream context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
