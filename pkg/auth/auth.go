// Package auth supplies per-RPC credentials for Flight SQL connections:
// static bearer tokens, fixed header sets, and OAuth 2.0 client-credentials
// tokens. Everything here satisfies grpc's credentials.PerRPCCredentials, so
// the connection layer attaches identity the same way regardless of scheme.
package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc/credentials"

	"github.com/TFMV/kite/pkg/errors"
)

// Option adjusts credential construction.
type Option func(*settings)

type settings struct {
	allowInsecure bool
}

// WithInsecureTransport permits attaching the credentials to a plaintext
// connection. Meant for local development; production tokens should only
// travel over TLS.
func WithInsecureTransport() Option {
	return func(s *settings) {
		s.allowInsecure = true
	}
}

func applyOptions(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewBearer returns per-RPC credentials that attach a static bearer token
// as the authorization header on every call.
func NewBearer(token string, opts ...Option) (credentials.PerRPCCredentials, error) {
	if token == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "bearer token is empty")
	}
	s := applyOptions(opts)
	return &bearerCreds{
		token:      token,
		requireTLS: !s.allowInsecure,
	}, nil
}

type bearerCreds struct {
	token      string
	requireTLS bool
}

func (c *bearerCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.token}, nil
}

func (c *bearerCreds) RequireTransportSecurity() bool {
	return c.requireTLS
}

// NewHeaders returns per-RPC credentials that attach a fixed set of request
// headers verbatim. Keys are lower-cased; gRPC rejects uppercase metadata
// keys at send time and HTTP/2 header names are case-insensitive anyway.
func NewHeaders(headers map[string]string, opts ...Option) (credentials.PerRPCCredentials, error) {
	if len(headers) == 0 {
		return nil, errors.New(errors.CodeInvalidConfig, "header set is empty")
	}
	fixed := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			return nil, errors.New(errors.CodeInvalidConfig, "header name is empty")
		}
		fixed[key] = v
	}
	s := applyOptions(opts)
	return &headerCreds{
		headers:    fixed,
		requireTLS: !s.allowInsecure,
	}, nil
}

type headerCreds struct {
	headers    map[string]string
	requireTLS bool
}

func (c *headerCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	out := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		out[k] = v
	}
	return out, nil
}

func (c *headerCreds) RequireTransportSecurity() bool {
	return c.requireTLS
}
