package middleware

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// requestIDHeader is the outgoing metadata key carrying the request id.
const requestIDHeader = "x-request-id"

// Context keys for request tracking
type contextKey string

const contextKeyRequestID contextKey = "request_id"

// RequestIDMiddleware stamps every outgoing call with a request id, so the
// GetFlightInfo and DoGet halves of one query correlate in server logs.
type RequestIDMiddleware struct{}

// NewRequestIDMiddleware creates a new request-id middleware.
func NewRequestIDMiddleware() *RequestIDMiddleware {
	return &RequestIDMiddleware{}
}

// UnaryInterceptor returns a unary client interceptor that stamps request ids.
func (m *RequestIDMiddleware) UnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(ensureRequestID(ctx), method, req, reply, cc, opts...)
	}
}

// StreamInterceptor returns a stream client interceptor that stamps request ids.
func (m *RequestIDMiddleware) StreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(ensureRequestID(ctx), desc, cc, method, opts...)
	}
}

// WithRequestID pins a request id on the context. Calls made with the
// returned context reuse the id instead of generating fresh ones.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// NewRequestID generates a fresh request id.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestID extracts the request id from context, or returns "" if none has
// been pinned.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// ensureRequestID guarantees the context carries a request id both as a
// context value and as outgoing metadata.
func ensureRequestID(ctx context.Context) context.Context {
	id := RequestID(ctx)
	if id == "" {
		id = NewRequestID()
		ctx = WithRequestID(ctx, id)
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if len(md.Get(requestIDHeader)) > 0 {
			return ctx
		}
	}
	return metadata.AppendToOutgoingContext(ctx, requestIDHeader, id)
}
