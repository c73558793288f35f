package flightsql

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	flightpb "github.com/apache/arrow-go/v18/arrow/flight/gen/flight"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/TFMV/kite/pkg/errors"
	"github.com/TFMV/kite/pkg/ipc"
	"github.com/TFMV/kite/pkg/middleware"
)

// Flight SQL action types for the prepared statement lifecycle.
const (
	createPreparedStatementAction = "CreatePreparedStatement"
	closePreparedStatementAction  = "ClosePreparedStatement"
)

// PreparedStatement is a server-side statement handle. Execute and
// ExecuteStream run it through the same exchange as ad-hoc queries; Close
// releases the server-side state. Not safe for concurrent use.
type PreparedStatement struct {
	client  *Client
	query   string
	handle  []byte
	dataset *arrow.Schema
	params  *arrow.Schema
	closed  bool
}

// Prepare creates a prepared statement on the server. The returned handle
// stays valid until Close or the connection ends.
func (c *Client) Prepare(ctx context.Context, query string) (*PreparedStatement, error) {
	if query == "" {
		return nil, errors.ErrEmptyQuery
	}

	body, err := packAction(&flightpb.ActionCreatePreparedStatementRequest{Query: query})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(middleware.WithRequestID(ctx, middleware.NewRequestID()))
	defer cancel()

	rpc, err := c.flight.DoAction(ctx, &flightpb.Action{
		Type: createPreparedStatementAction,
		Body: body,
	})
	if err != nil {
		return nil, transportError(err, "do_action")
	}

	res, err := rpc.Recv()
	if err == io.EOF {
		return nil, errors.New(errors.CodeEmptyResponse, "server returned no result for CreatePreparedStatement")
	}
	if err != nil {
		return nil, transportError(err, "do_action")
	}

	var result flightpb.ActionCreatePreparedStatementResult
	if err := unpackResult(res.Body, &result); err != nil {
		return nil, err
	}
	if err := drainResults(rpc); err != nil {
		return nil, err
	}

	var dataset, params *arrow.Schema
	if len(result.DatasetSchema) > 0 {
		if dataset, err = decodeSchemaPayload(result.DatasetSchema); err != nil {
			return nil, err
		}
	}
	if len(result.ParameterSchema) > 0 {
		if params, err = decodeSchemaPayload(result.ParameterSchema); err != nil {
			return nil, err
		}
	}

	c.logger.Debug().
		Int("handle_bytes", len(result.PreparedStatementHandle)).
		Bool("has_dataset_schema", dataset != nil).
		Msg("Prepared statement created")

	return &PreparedStatement{
		client:  c,
		query:   query,
		handle:  result.PreparedStatementHandle,
		dataset: dataset,
		params:  params,
	}, nil
}

// Schema returns the dataset schema the server advertised at prepare time,
// or nil if it declined to.
func (p *PreparedStatement) Schema() *arrow.Schema {
	return p.dataset
}

// ParameterSchema returns the parameter schema, or nil for statements
// without parameters.
func (p *PreparedStatement) ParameterSchema() *arrow.Schema {
	return p.params
}

// Execute runs the prepared statement and materializes the whole result.
func (p *PreparedStatement) Execute(ctx context.Context, opts ...QueryOption) (*Table, error) {
	if p.closed {
		return nil, errors.New(errors.CodeInvalidQuery, "prepared statement is closed")
	}
	o, err := applyQueryOptions(opts)
	if err != nil {
		return nil, err
	}
	desc, err := preparedDescriptor(p.handle)
	if err != nil {
		return nil, err
	}
	p.client.metrics.IncrementCounter("flightsql_queries_total", "mode", "eager")

	ctx, cancel := context.WithCancel(p.client.prepareContext(ctx, o.timeRange))
	defer cancel()

	open, err := p.client.openFlight(ctx, desc)
	if err != nil {
		return nil, err
	}
	return p.client.collect(open)
}

// ExecuteStream runs the prepared statement and returns a lazy stream over
// the result.
func (p *PreparedStatement) ExecuteStream(ctx context.Context, opts ...QueryOption) (*Stream, error) {
	if p.closed {
		return nil, errors.New(errors.CodeInvalidQuery, "prepared statement is closed")
	}
	o, err := applyQueryOptions(opts)
	if err != nil {
		return nil, err
	}
	desc, err := preparedDescriptor(p.handle)
	if err != nil {
		return nil, err
	}
	p.client.metrics.IncrementCounter("flightsql_queries_total", "mode", "stream")

	ctx, cancel := context.WithCancel(p.client.prepareContext(ctx, o.timeRange))
	open, err := p.client.openFlight(ctx, desc)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Stream{
		schema:  open.schema,
		rpc:     open.rpc,
		cancel:  cancel,
		logger:  p.client.logger,
		metrics: p.client.metrics,
	}, nil
}

// Close releases the server-side statement. Further Execute calls fail.
// Safe to call more than once.
func (p *PreparedStatement) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	p.closed = true

	body, err := packAction(&flightpb.ActionClosePreparedStatementRequest{
		PreparedStatementHandle: p.handle,
	})
	if err != nil {
		return err
	}
	rpc, err := p.client.flight.DoAction(ctx, &flightpb.Action{
		Type: closePreparedStatementAction,
		Body: body,
	})
	if err != nil {
		return transportError(err, "do_action")
	}
	return drainResults(rpc)
}

// packAction serializes a Flight SQL action body: the command wrapped in a
// protobuf Any, then marshaled.
func packAction(cmd proto.Message) ([]byte, error) {
	var body anypb.Any
	if err := body.MarshalFrom(cmd); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to wrap action body")
	}
	raw, err := proto.Marshal(&body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal action body")
	}
	return raw, nil
}

// unpackResult decodes an action result body: a protobuf Any wrapping the
// expected message type.
func unpackResult(raw []byte, out proto.Message) error {
	var body anypb.Any
	if err := proto.Unmarshal(raw, &body); err != nil {
		return errors.Wrap(err, errors.CodeUnexpectedMessage, "action result is not a wrapped message")
	}
	if err := body.UnmarshalTo(out); err != nil {
		return errors.Wrapf(err, errors.CodeUnexpectedMessage, "action result does not hold a %s",
			out.ProtoReflect().Descriptor().Name())
	}
	return nil
}

// drainResults consumes an action stream to completion so the RPC finishes
// cleanly.
func drainResults(rpc flightpb.FlightService_DoActionClient) error {
	for {
		if _, err := rpc.Recv(); err != nil {
			if err == io.EOF {
				return nil
			}
			return transportError(err, "do_action")
		}
	}
}

// decodeSchemaPayload decodes an IPC-serialized schema, the byte-stream
// form used for schemas that ride inside another message.
func decodeSchemaPayload(raw []byte) (*arrow.Schema, error) {
	msgs, err := ipc.SplitStream(raw)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, errors.New(errors.CodeUnexpectedMessage, "schema payload holds no messages")
	}
	return ipc.DecodeSchema(msgs[0].Header)
}
