// Package errors provides standardized error types for the Flight SQL client.
package errors

import (
	"errors"
	"fmt"
)

// Kind partitions errors by who has to act on them: the caller fixes usage
// errors, retries transport errors, and reports protocol or decode errors as
// a client/server compatibility defect.
type Kind int

const (
	KindUnknown Kind = iota
	KindUsage
	KindTransport
	KindProtocol
	KindDecode
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error codes grouped by kind.
const (
	// Usage: invalid caller input, detected before any RPC.
	CodeInvalidQuery  = "INVALID_QUERY"
	CodeNaiveTime     = "NAIVE_TIME"
	CodeInvalidRange  = "INVALID_RANGE"
	CodeInvalidConfig = "INVALID_CONFIG"

	// Transport: connect or RPC failure, passed through from gRPC.
	CodeTransport = "TRANSPORT_FAILED"
	CodeAuth      = "AUTH_FAILED"

	// Protocol: the server answered, but not with what the protocol promises.
	CodeNoEndpoints       = "NO_ENDPOINTS"
	CodeEmptyResponse     = "EMPTY_RESPONSE"
	CodeUnexpectedMessage = "UNEXPECTED_MESSAGE"

	// Decode: the wire bytes do not decode against the declared schema.
	CodeUnsupportedType     = "UNSUPPORTED_TYPE"
	CodeUnsupportedIntWidth = "UNSUPPORTED_INT_WIDTH"
	CodeUnsupportedWire     = "UNSUPPORTED_WIRE_FEATURE"
	CodeTruncatedBatch      = "TRUNCATED_BATCH"
	CodeMalformedHeader     = "MALFORMED_HEADER"

	CodeInternal = "INTERNAL_ERROR"
)

// QueryError represents a client-side query failure with code, message, and
// optional details.
type QueryError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *QueryError) Is(target error) bool {
	t, ok := target.(*QueryError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Kind reports the taxonomy bucket the error code falls into.
func (e *QueryError) Kind() Kind {
	switch e.Code {
	case CodeInvalidQuery, CodeNaiveTime, CodeInvalidRange, CodeInvalidConfig:
		return KindUsage
	case CodeTransport, CodeAuth:
		return KindTransport
	case CodeNoEndpoints, CodeEmptyResponse, CodeUnexpectedMessage:
		return KindProtocol
	case CodeUnsupportedType, CodeUnsupportedIntWidth, CodeUnsupportedWire,
		CodeTruncatedBatch, CodeMalformedHeader:
		return KindDecode
	default:
		return KindUnknown
	}
}

// WithDetails replaces the details map.
func (e *QueryError) WithDetails(details map[string]interface{}) *QueryError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *QueryError) WithDetail(key string, value interface{}) *QueryError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common errors
var (
	ErrEmptyQuery    = &QueryError{Code: CodeInvalidQuery, Message: "query text is empty"}
	ErrNaiveTime     = &QueryError{Code: CodeNaiveTime, Message: "timestamp needs an explicit UTC offset"}
	ErrNoEndpoints   = &QueryError{Code: CodeNoEndpoints, Message: "flight info carries no endpoints"}
	ErrEmptyResponse = &QueryError{Code: CodeEmptyResponse, Message: "result stream yielded no messages"}
)

// New creates a new QueryError with the given code and message.
func New(code, message string) *QueryError {
	return &QueryError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new QueryError with a formatted message.
func Newf(code, format string, args ...interface{}) *QueryError {
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a QueryError.
func Wrap(err error, code, message string) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// KindOf extracts the kind from an error, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return qerr.Kind()
	}
	return KindUnknown
}

// IsUsage checks if an error is a caller usage error.
func IsUsage(err error) bool {
	return KindOf(err) == KindUsage
}

// IsTransport checks if an error is a transport error.
func IsTransport(err error) bool {
	return KindOf(err) == KindTransport
}

// IsProtocol checks if an error is a protocol mismatch error.
func IsProtocol(err error) bool {
	return KindOf(err) == KindProtocol
}

// IsDecode checks if an error is a wire decode error.
func IsDecode(err error) bool {
	return KindOf(err) == KindDecode
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return qerr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return qerr.Message
	}
	return err.Error()
}
