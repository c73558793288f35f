// Package middleware provides client-side gRPC interceptors for Flight SQL
// calls: structured logging, metrics, and request-id stamping.
package middleware

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingMiddleware provides call logging middleware.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger,
	}
}

// UnaryInterceptor returns a unary client interceptor for logging.
func (m *LoggingMiddleware) UnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()

		err := invoker(ctx, method, req, reply, cc, opts...)

		duration := time.Since(start)
		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}

		event := m.logger.Info()
		if err != nil && code != codes.Canceled {
			event = m.logger.Error().Err(err)
		}

		event.
			Str("method", method).
			Str("request_id", RequestID(ctx)).
			Dur("duration", duration).
			Str("code", code.String()).
			Msg("Unary call")

		return err
	}
}

// StreamInterceptor returns a stream client interceptor for logging. The
// completed call is logged once, when the stream ends in io.EOF or an error.
func (m *LoggingMiddleware) StreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := time.Now()

		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			m.logger.Error().Err(err).
				Str("method", method).
				Str("request_id", RequestID(ctx)).
				Msg("Stream open failed")
			return nil, err
		}

		return &loggingClientStream{
			ClientStream: cs,
			method:       method,
			requestID:    RequestID(ctx),
			logger:       m.logger,
			start:        start,
		}, nil
	}
}

// loggingClientStream wraps a ClientStream to track message counts and log
// stream completion.
type loggingClientStream struct {
	grpc.ClientStream
	method    string
	requestID string
	logger    zerolog.Logger
	start     time.Time

	finishOnce       sync.Once
	messagesSent     int
	messagesReceived int
}

func (s *loggingClientStream) SendMsg(m interface{}) error {
	err := s.ClientStream.SendMsg(m)
	if err == nil {
		s.messagesSent++
	}
	return err
}

func (s *loggingClientStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		s.messagesReceived++
		return nil
	}
	s.finish(err)
	return err
}

func (s *loggingClientStream) finish(err error) {
	s.finishOnce.Do(func() {
		duration := time.Since(s.start)
		code := codes.OK
		if err != nil && err != io.EOF {
			code = status.Code(err)
		}

		event := s.logger.Info()
		if err != nil && err != io.EOF && code != codes.Canceled {
			event = s.logger.Error().Err(err)
		}

		event.
			Str("method", s.method).
			Str("request_id", s.requestID).
			Dur("duration", duration).
			Str("code", code.String()).
			Int("messages_sent", s.messagesSent).
			Int("messages_received", s.messagesReceived).
			Msg("Stream call")
	})
}
