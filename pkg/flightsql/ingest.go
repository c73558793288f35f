package flightsql

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	flightpb "github.com/apache/arrow-go/v18/arrow/flight/gen/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/protobuf/proto"

	"github.com/TFMV/kite/pkg/errors"
	"github.com/TFMV/kite/pkg/middleware"
)

// IngestOptions configures a bulk ingest.
type IngestOptions struct {
	// Table receives the rows. Required. Created from the batch schema if
	// it does not exist.
	Table string

	// Schema is the database schema qualifying Table, for backends that
	// use one.
	Schema string

	// Catalog qualifying Table.
	Catalog string

	// Temporary asks for a session-scoped table.
	Temporary bool

	// Replace drops existing rows instead of appending.
	Replace bool
}

// BulkIngest streams record batches into a server-side table over DoPut
// and returns the row count the server acknowledged. All batches must share
// one schema; the caller keeps ownership of the records.
func (c *Client) BulkIngest(ctx context.Context, recs []arrow.Record, opts IngestOptions) (int64, error) {
	if opts.Table == "" {
		return 0, errors.New(errors.CodeInvalidConfig, "ingest target table is required")
	}
	if len(recs) == 0 {
		return 0, errors.New(errors.CodeInvalidQuery, "nothing to ingest: no record batches")
	}
	schema := recs[0].Schema()
	for i, rec := range recs[1:] {
		if !rec.Schema().Equal(schema) {
			return 0, errors.Newf(errors.CodeInvalidQuery, "record batch %d schema differs from the first", i+1)
		}
	}

	desc, err := commandDescriptor(ingestCommand(opts))
	if err != nil {
		return 0, err
	}
	c.metrics.IncrementCounter("flightsql_ingests_total")

	timer := c.metrics.StartTimer("flightsql_ingest_duration")
	defer func() {
		c.metrics.RecordHistogram("flightsql_ingest_duration_seconds", timer.Stop())
	}()

	ctx, cancel := context.WithCancel(middleware.WithRequestID(ctx, middleware.NewRequestID()))
	defer cancel()

	stream, err := c.flight.DoPut(ctx)
	if err != nil {
		return 0, transportError(err, "do_put")
	}

	// The writer emits the schema message up front; the descriptor rides on
	// that first FlightData so the server knows the target before any rows.
	wr := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	wr.SetFlightDescriptor(desc)
	var sent int64
	for _, rec := range recs {
		if err := wr.Write(rec); err != nil {
			return 0, transportError(err, "do_put")
		}
		sent += rec.NumRows()
	}
	if err := wr.Close(); err != nil {
		return 0, transportError(err, "do_put")
	}
	if err := stream.CloseSend(); err != nil {
		return 0, transportError(err, "do_put")
	}

	acked, err := ackedRecordCount(stream)
	if err != nil {
		return 0, err
	}
	c.metrics.RecordGauge("flightsql_last_ingest_rows", float64(acked))
	c.logger.Debug().
		Str("table", opts.Table).
		Int("batches", len(recs)).
		Int64("rows_sent", sent).
		Int64("rows_acked", acked).
		Msg("Bulk ingest finished")
	return acked, nil
}

// ingestCommand translates the options into the statement ingest command.
// Absent tables are always created; Replace decides what happens to rows
// already there.
func ingestCommand(opts IngestOptions) *flightpb.CommandStatementIngest {
	cmd := &flightpb.CommandStatementIngest{
		TableDefinitionOptions: &flightpb.CommandStatementIngest_TableDefinitionOptions{
			IfNotExist: flightpb.CommandStatementIngest_TableDefinitionOptions_TABLE_NOT_EXIST_OPTION_CREATE,
			IfExists:   flightpb.CommandStatementIngest_TableDefinitionOptions_TABLE_EXISTS_OPTION_APPEND,
		},
		Table:     opts.Table,
		Temporary: opts.Temporary,
	}
	if opts.Replace {
		cmd.TableDefinitionOptions.IfExists = flightpb.CommandStatementIngest_TableDefinitionOptions_TABLE_EXISTS_OPTION_REPLACE
	}
	if opts.Schema != "" {
		cmd.Schema = proto.String(opts.Schema)
	}
	if opts.Catalog != "" {
		cmd.Catalog = proto.String(opts.Catalog)
	}
	return cmd
}

// ackedRecordCount sums the row counts the server reports back on the put
// stream. Servers that cannot count report -1.
func ackedRecordCount(stream flightpb.FlightService_DoPutClient) (int64, error) {
	var total int64
	counted := false
	for {
		res, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, transportError(err, "do_put")
		}
		if len(res.AppMetadata) == 0 {
			continue
		}
		var upd flightpb.DoPutUpdateResult
		if err := proto.Unmarshal(res.AppMetadata, &upd); err != nil {
			return 0, errors.Wrap(err, errors.CodeUnexpectedMessage, "put result metadata is not a DoPutUpdateResult")
		}
		if upd.RecordCount < 0 {
			return -1, nil
		}
		total += upd.RecordCount
		counted = true
	}
	if !counted {
		return -1, nil
	}
	return total, nil
}
