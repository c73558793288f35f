package middleware

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TFMV/kite/pkg/metrics"
)

// MetricsCollector defines the interface for collecting metrics.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer = metrics.Timer

// MetricsMiddleware provides metrics collection middleware.
type MetricsMiddleware struct {
	collector MetricsCollector
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(collector MetricsCollector) *MetricsMiddleware {
	return &MetricsMiddleware{
		collector: collector,
	}
}

// UnaryInterceptor returns a unary client interceptor for metrics.
func (m *MetricsMiddleware) UnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		timer := m.collector.StartTimer("grpc_client_request_duration")
		defer func() {
			duration := timer.Stop()
			m.collector.RecordHistogram("grpc_client_request_duration_seconds", duration, "method", method, "type", "unary")
		}()

		m.collector.IncrementCounter("grpc_client_requests_total", "method", method, "type", "unary")

		err := invoker(ctx, method, req, reply, cc, opts...)

		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}
		m.collector.IncrementCounter("grpc_client_responses_total", "method", method, "type", "unary", "code", code.String())

		return err
	}
}

// StreamInterceptor returns a stream client interceptor for metrics.
func (m *MetricsMiddleware) StreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		m.collector.IncrementCounter("grpc_client_streams_total", "method", method)

		timer := m.collector.StartTimer("grpc_client_stream_duration")
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			m.collector.IncrementCounter("grpc_client_stream_status_total", "method", method, "code", status.Code(err).String())
			return nil, err
		}

		return &metricsClientStream{
			ClientStream: cs,
			collector:    m.collector,
			method:       method,
			timer:        timer,
		}, nil
	}
}

// metricsClientStream wraps a ClientStream to track message metrics.
type metricsClientStream struct {
	grpc.ClientStream
	collector MetricsCollector
	method    string
	timer     Timer

	finishOnce sync.Once
}

func (s *metricsClientStream) SendMsg(m interface{}) error {
	err := s.ClientStream.SendMsg(m)
	s.collector.IncrementCounter("grpc_client_stream_messages_sent_total", "method", s.method)
	if err != nil {
		s.collector.IncrementCounter("grpc_client_stream_send_errors_total", "method", s.method)
	}
	return err
}

func (s *metricsClientStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		s.collector.IncrementCounter("grpc_client_stream_messages_received_total", "method", s.method)
		return nil
	}
	s.finish(err)
	return err
}

func (s *metricsClientStream) finish(err error) {
	s.finishOnce.Do(func() {
		duration := s.timer.Stop()
		s.collector.RecordHistogram("grpc_client_stream_duration_seconds", duration, "method", s.method)

		code := codes.OK
		if err != nil && err != io.EOF {
			code = status.Code(err)
		}
		s.collector.IncrementCounter("grpc_client_stream_status_total", "method", s.method, "code", code.String())
	})
}
