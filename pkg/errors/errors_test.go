package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *QueryError
		expected string
	}{
		{
			name: "error without cause",
			err: &QueryError{
				Code:    CodeInvalidQuery,
				Message: "query text is empty",
			},
			expected: "INVALID_QUERY: query text is empty",
		},
		{
			name: "error with cause",
			err: &QueryError{
				Code:    CodeTransport,
				Message: "rpc failed",
				Cause:   fmt.Errorf("connection refused"),
			},
			expected: "TRANSPORT_FAILED: rpc failed (caused by: connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestQueryError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := &QueryError{
		Code:    CodeTransport,
		Message: "rpc failed",
		Cause:   cause,
	}

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, &QueryError{Code: CodeTransport}))
}

func TestQueryError_Is(t *testing.T) {
	err1 := &QueryError{Code: CodeNoEndpoints, Message: "no endpoints"}
	err2 := &QueryError{Code: CodeNoEndpoints, Message: "different message"}
	err3 := &QueryError{Code: CodeEmptyResponse, Message: "empty"}
	stdErr := fmt.Errorf("standard error")

	assert.True(t, err1.Is(err2), "errors with same code should match")
	assert.False(t, err1.Is(err3), "errors with different codes should not match")
	assert.False(t, err1.Is(stdErr), "query error should not match standard error")
}

func TestQueryError_Kind(t *testing.T) {
	tests := []struct {
		code     string
		expected Kind
	}{
		{CodeInvalidQuery, KindUsage},
		{CodeNaiveTime, KindUsage},
		{CodeInvalidRange, KindUsage},
		{CodeInvalidConfig, KindUsage},
		{CodeTransport, KindTransport},
		{CodeAuth, KindTransport},
		{CodeNoEndpoints, KindProtocol},
		{CodeEmptyResponse, KindProtocol},
		{CodeUnexpectedMessage, KindProtocol},
		{CodeUnsupportedType, KindDecode},
		{CodeUnsupportedIntWidth, KindDecode},
		{CodeUnsupportedWire, KindDecode},
		{CodeTruncatedBatch, KindDecode},
		{CodeMalformedHeader, KindDecode},
		{CodeInternal, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, "x").Kind())
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "usage", KindUsage.String())
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "protocol", KindProtocol.String())
	assert.Equal(t, "decode", KindDecode.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestQueryError_WithDetails(t *testing.T) {
	err := &QueryError{
		Code:    CodeTruncatedBatch,
		Message: "truncated",
	}

	details := map[string]interface{}{
		"field":       "spans",
		"field_index": 3,
	}

	err = err.WithDetails(details)
	assert.Equal(t, details, err.Details)
}

func TestQueryError_WithDetail(t *testing.T) {
	err := &QueryError{
		Code:    CodeTransport,
		Message: "rpc failed",
	}

	err = err.WithDetail("phase", "DoGet").WithDetail("message_seq", 2)

	assert.Equal(t, "DoGet", err.Details["phase"])
	assert.Equal(t, 2, err.Details["message_seq"])
}

func TestNew(t *testing.T) {
	err := New(CodeInvalidQuery, "test message")
	assert.Equal(t, CodeInvalidQuery, err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Nil(t, err.Cause)
}

func TestNewf(t *testing.T) {
	err := Newf(CodeUnsupportedType, "unsupported type tag %d", 7)
	assert.Equal(t, CodeUnsupportedType, err.Code)
	assert.Equal(t, "unsupported type tag 7", err.Message)
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(cause, CodeTransport, "wrapped message")

	assert.Equal(t, CodeTransport, err.Code)
	assert.Equal(t, "wrapped message", err.Message)
	assert.Equal(t, cause, err.Cause)

	// Test nil error
	assert.Nil(t, Wrap(nil, CodeTransport, "message"))
}

func TestWrapf(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrapf(cause, CodeTruncatedBatch, "batch %d misaligned", 42)

	assert.Equal(t, CodeTruncatedBatch, err.Code)
	assert.Equal(t, "batch 42 misaligned", err.Message)
	assert.Equal(t, cause, err.Cause)

	// Test nil error
	assert.Nil(t, Wrapf(nil, CodeTruncatedBatch, "batch %d", 42))
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		usage    bool
		trans    bool
		proto    bool
		decode   bool
	}{
		{
			name:  "usage error",
			err:   ErrEmptyQuery,
			usage: true,
		},
		{
			name:  "transport error",
			err:   New(CodeTransport, "dial failed"),
			trans: true,
		},
		{
			name:  "protocol error",
			err:   ErrNoEndpoints,
			proto: true,
		},
		{
			name:   "decode error",
			err:    New(CodeTruncatedBatch, "short"),
			decode: true,
		},
		{
			name: "wrapped decode error keeps its kind",
			err:  fmt.Errorf("outer: %w", New(CodeUnsupportedType, "tag")),
			decode: true,
		},
		{
			name: "standard error",
			err:  fmt.Errorf("standard error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.usage, IsUsage(tt.err))
			assert.Equal(t, tt.trans, IsTransport(tt.err))
			assert.Equal(t, tt.proto, IsProtocol(tt.err))
			assert.Equal(t, tt.decode, IsDecode(tt.err))
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "query error",
			err:      ErrNoEndpoints,
			expected: CodeNoEndpoints,
		},
		{
			name:     "standard error",
			err:      fmt.Errorf("standard error"),
			expected: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetCode(tt.err))
		})
	}
}

func TestGetMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "query error",
			err:      ErrEmptyQuery,
			expected: "query text is empty",
		},
		{
			name:     "standard error",
			err:      fmt.Errorf("standard error"),
			expected: "standard error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetMessage(tt.err))
		})
	}
}

func TestCommonErrors(t *testing.T) {
	// Test that all common errors are properly initialized
	assert.Equal(t, CodeInvalidQuery, ErrEmptyQuery.Code)
	assert.Equal(t, CodeNaiveTime, ErrNaiveTime.Code)
	assert.Equal(t, CodeNoEndpoints, ErrNoEndpoints.Code)
	assert.Equal(t, CodeEmptyResponse, ErrEmptyResponse.Code)
}
