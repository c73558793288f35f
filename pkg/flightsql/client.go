// Package flightsql implements a client-side driver for Arrow Flight SQL
// query execution. A query is planned with GetFlightInfo, fetched with
// DoGet, and the resulting Arrow IPC messages are decoded by pkg/ipc rather
// than a prebuilt reader, so wire-level violations surface as typed errors
// instead of silent truncation.
package flightsql

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	flightpb "github.com/apache/arrow-go/v18/arrow/flight/gen/flight"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/TFMV/kite/pkg/auth"
	"github.com/TFMV/kite/pkg/cache"
	"github.com/TFMV/kite/pkg/errors"
	"github.com/TFMV/kite/pkg/ipc"
	"github.com/TFMV/kite/pkg/metrics"
	"github.com/TFMV/kite/pkg/middleware"
)

// Config holds connection settings for a Flight SQL endpoint.
type Config struct {
	// Address is the host:port of the Flight SQL endpoint.
	Address string

	// TLS enables transport security. Plaintext otherwise.
	TLS bool

	// TLSSkipVerify disables certificate verification. Development only.
	TLSSkipVerify bool

	// Token attaches a static bearer token to every call.
	Token string

	// Headers are attached to every call as request metadata, verbatim
	// except for the lower-casing HTTP/2 requires.
	Headers map[string]string

	// OAuth fetches bearer tokens via the client-credentials grant when set.
	// Takes precedence over Token.
	OAuth *auth.OAuthConfig

	// MaxRecvMsgSize caps inbound gRPC message size in bytes. Zero keeps
	// the transport default, which large record batches routinely exceed.
	MaxRecvMsgSize int
}

// Validate checks the configuration for usage errors.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New(errors.CodeInvalidConfig, "address is required")
	}
	if c.TLSSkipVerify && !c.TLS {
		return errors.New(errors.CodeInvalidConfig, "tls_skip_verify requires tls")
	}
	return nil
}

// Option adjusts client construction.
type Option func(*clientOptions)

type clientOptions struct {
	logger   zerolog.Logger
	metrics  metrics.Collector
	cache    cache.Cache
	dialOpts []grpc.DialOption
}

// WithLogger injects a logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetrics injects a metrics collector. The default is a no-op.
func WithMetrics(collector metrics.Collector) Option {
	return func(o *clientOptions) {
		o.metrics = collector
	}
}

// WithResultCache serves repeated eager queries from an in-memory cache
// keyed by statement and time range. Only Query consults it; streamed
// results are single-pass and always reach the server.
func WithResultCache(c cache.Cache) Option {
	return func(o *clientOptions) {
		o.cache = c
	}
}

// WithDialOptions appends extra gRPC dial options, applied after the ones
// derived from Config.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *clientOptions) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// Client executes queries against one Flight SQL endpoint. It is safe for
// concurrent use; each query runs on its own gRPC streams.
type Client struct {
	conn    *grpc.ClientConn
	flight  flightpb.FlightServiceClient
	logger  zerolog.Logger
	metrics metrics.Collector
	cache   cache.Cache
}

// NewClient wraps a gRPC connection the caller owns and keeps open.
// Dial-time concerns (credentials, interceptors, message limits) stay with
// the caller; Close on the returned client does not close the connection.
func NewClient(conn grpc.ClientConnInterface, opts ...Option) *Client {
	o := clientOptions{
		logger:  zerolog.Nop(),
		metrics: metrics.NewNoOpCollector(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		flight:  flightpb.NewFlightServiceClient(conn),
		logger:  o.logger.With().Str("component", "flightsql").Logger(),
		metrics: o.metrics,
		cache:   o.cache,
	}
}

// Dial connects to a Flight SQL endpoint. The context bounds connection
// setup work such as OAuth endpoint discovery; the gRPC channel itself
// connects lazily on first use.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{
		logger:  zerolog.Nop(),
		metrics: metrics.NewNoOpCollector(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logging := middleware.NewLoggingMiddleware(o.logger)
	mets := middleware.NewMetricsMiddleware(o.metrics)
	reqID := middleware.NewRequestIDMiddleware()

	dialOpts := []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(
			reqID.UnaryInterceptor(),
			mets.UnaryInterceptor(),
			logging.UnaryInterceptor(),
		),
		grpc.WithChainStreamInterceptor(
			reqID.StreamInterceptor(),
			mets.StreamInterceptor(),
			logging.StreamInterceptor(),
		),
	}

	if cfg.TLS {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		})))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	perRPC, err := perRPCCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, creds := range perRPC {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(creds))
	}

	if cfg.MaxRecvMsgSize > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize)))
	}
	dialOpts = append(dialOpts, o.dialOpts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, transportError(err, "dial")
	}

	logger := o.logger.With().Str("component", "flightsql").Str("address", cfg.Address).Logger()
	logger.Debug().Bool("tls", cfg.TLS).Msg("Client connected")

	return &Client{
		conn:    conn,
		flight:  flightpb.NewFlightServiceClient(conn),
		logger:  logger,
		metrics: o.metrics,
		cache:   o.cache,
	}, nil
}

// perRPCCredentials assembles the credential sources the config asks for.
// Several may apply at once; gRPC merges their metadata per call.
func perRPCCredentials(ctx context.Context, cfg Config) ([]credentials.PerRPCCredentials, error) {
	var authOpts []auth.Option
	if !cfg.TLS {
		authOpts = append(authOpts, auth.WithInsecureTransport())
	}

	var out []credentials.PerRPCCredentials
	switch {
	case cfg.OAuth != nil:
		tm, err := auth.NewTokenManager(ctx, *cfg.OAuth, authOpts...)
		if err != nil {
			return nil, err
		}
		out = append(out, tm)
	case cfg.Token != "":
		bearer, err := auth.NewBearer(cfg.Token, authOpts...)
		if err != nil {
			return nil, err
		}
		out = append(out, bearer)
	}

	if len(cfg.Headers) > 0 {
		headers, err := auth.NewHeaders(cfg.Headers, authOpts...)
		if err != nil {
			return nil, err
		}
		out = append(out, headers)
	}
	return out, nil
}

// Close tears down the underlying connection when the client owns it; a
// client over an injected connection leaves it open. In-flight streams on
// an owned connection fail with a transport error.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return transportError(err, "close")
	}
	return nil
}

// QueryOption adjusts a single query execution.
type QueryOption func(*queryOptions)

type queryOptions struct {
	timeRange TimeRange
}

// WithTimeRange bounds the query with pre-formatted RFC 3339 strings.
// Validation happens before any RPC: timestamps without a UTC offset are
// rejected as naive.
func WithTimeRange(r TimeRange) QueryOption {
	return func(o *queryOptions) {
		o.timeRange = r
	}
}

// WithTimeBounds bounds the query with concrete instants. Zero-valued
// instants leave that side of the range open.
func WithTimeBounds(begin, end time.Time) QueryOption {
	return func(o *queryOptions) {
		o.timeRange = NewTimeRange(begin, end)
	}
}

func applyQueryOptions(opts []QueryOption) (queryOptions, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.timeRange.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

func buildQueryOptions(query string, opts []QueryOption) (queryOptions, error) {
	if query == "" {
		return queryOptions{}, errors.ErrEmptyQuery
	}
	return applyQueryOptions(opts)
}

// Query executes a statement and materializes the whole result. The
// returned table owns its records; callers release it once. With a result
// cache configured, a repeat of a cached statement and range is served
// locally without touching the server.
//
// An error anywhere in the exchange discards all partial results: the
// caller either gets the complete response or a typed error.
func (c *Client) Query(ctx context.Context, query string, opts ...QueryOption) (*Table, error) {
	o, err := buildQueryOptions(query, opts)
	if err != nil {
		return nil, err
	}

	var key string
	if c.cache != nil {
		key = cache.Key(query, o.timeRange.Begin, o.timeRange.End)
		if res, ok := c.cache.Get(key); ok {
			c.metrics.IncrementCounter("flightsql_cache_hits_total")
			c.logger.Debug().Int("batches", len(res.Records)).Msg("Query served from result cache")
			return &Table{schema: res.Schema, records: res.Records}, nil
		}
		c.metrics.IncrementCounter("flightsql_cache_misses_total")
	}

	desc, err := statementDescriptor(query)
	if err != nil {
		return nil, err
	}
	c.metrics.IncrementCounter("flightsql_queries_total", "mode", "eager")

	timer := c.metrics.StartTimer("flightsql_query_duration")
	defer func() {
		c.metrics.RecordHistogram("flightsql_query_duration_seconds", timer.Stop(), "mode", "eager")
	}()

	ctx, cancel := context.WithCancel(c.prepareContext(ctx, o.timeRange))
	defer cancel()

	open, err := c.openFlight(ctx, desc)
	if err != nil {
		return nil, err
	}
	table, err := c.collect(open)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(key, cache.Result{Schema: table.schema, Records: table.records})
	}
	return table, nil
}

// QueryStream executes a statement and returns a lazy stream over the
// result. The schema is already decoded when QueryStream returns; batches
// are decoded one per Next call. Close the stream to cancel the exchange.
func (c *Client) QueryStream(ctx context.Context, query string, opts ...QueryOption) (*Stream, error) {
	o, err := buildQueryOptions(query, opts)
	if err != nil {
		return nil, err
	}
	desc, err := statementDescriptor(query)
	if err != nil {
		return nil, err
	}
	c.metrics.IncrementCounter("flightsql_queries_total", "mode", "stream")

	ctx, cancel := context.WithCancel(c.prepareContext(ctx, o.timeRange))
	open, err := c.openFlight(ctx, desc)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Stream{
		schema:  open.schema,
		rpc:     open.rpc,
		cancel:  cancel,
		logger:  c.logger,
		metrics: c.metrics,
	}, nil
}

// prepareContext pins one request id for the whole exchange and attaches
// the time range as outgoing metadata, so GetFlightInfo and DoGet carry
// identical context.
func (c *Client) prepareContext(ctx context.Context, r TimeRange) context.Context {
	ctx = middleware.WithRequestID(ctx, middleware.NewRequestID())
	return r.appendToContext(ctx)
}

// openStream pairs a decoded stream schema with the RPC delivering its
// batches.
type openStream struct {
	schema *arrow.Schema
	rpc    flightpb.FlightService_DoGetClient
}

// openFlight runs the two-step exchange up to the first stream message:
// plan with GetFlightInfo, fetch the first endpoint's ticket with DoGet,
// and decode the leading schema message.
func (c *Client) openFlight(ctx context.Context, desc *flightpb.FlightDescriptor) (*openStream, error) {
	info, err := c.flight.GetFlightInfo(ctx, desc)
	if err != nil {
		return nil, transportError(err, "get_flight_info")
	}

	if len(info.Endpoint) == 0 {
		return nil, errors.ErrNoEndpoints
	}
	if len(info.Endpoint) > 1 {
		c.logger.Debug().
			Int("endpoints", len(info.Endpoint)).
			Msg("Server returned multiple endpoints, fetching only the first")
	}
	ticket := info.Endpoint[0].Ticket
	if ticket == nil {
		return nil, errors.New(errors.CodeNoEndpoints, "first endpoint carries no ticket")
	}

	rpc, err := c.flight.DoGet(ctx, ticket)
	if err != nil {
		return nil, transportError(err, "do_get")
	}

	first, err := rpc.Recv()
	if err == io.EOF {
		return nil, errors.ErrEmptyResponse
	}
	if err != nil {
		return nil, transportError(err, "do_get")
	}

	schema, err := ipc.DecodeSchema(first.DataHeader)
	if err != nil {
		c.metrics.IncrementCounter("flightsql_decode_errors_total", "code", errors.GetCode(err))
		return nil, tagMessageSeq(err, 0)
	}
	return &openStream{schema: schema, rpc: rpc}, nil
}

// collect drains an open stream into a Table. Any failure releases the
// batches accumulated so far.
func (c *Client) collect(open *openStream) (*Table, error) {
	var recs []arrow.Record
	seq := 0
	for {
		data, err := open.rpc.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			releaseAll(recs)
			return nil, transportError(err, "do_get")
		}
		seq++

		rec, err := ipc.DecodeRecordBatch(open.schema, data.DataHeader, data.DataBody)
		if err != nil {
			releaseAll(recs)
			c.metrics.IncrementCounter("flightsql_decode_errors_total", "code", errors.GetCode(err))
			return nil, tagMessageSeq(err, seq)
		}
		c.metrics.IncrementCounter("flightsql_batches_total", "mode", "eager")
		recs = append(recs, rec)
	}

	table := &Table{schema: open.schema, records: recs}
	c.metrics.RecordGauge("flightsql_last_result_rows", float64(table.NumRows()))
	c.logger.Debug().
		Int("batches", len(recs)).
		Int64("rows", table.NumRows()).
		Msg("Query result materialized")
	return table, nil
}

// transportError tags an RPC failure with the protocol phase it happened in.
func transportError(err error, phase string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, errors.CodeTransport, "%s failed", phase).
		WithDetail("phase", phase)
}
