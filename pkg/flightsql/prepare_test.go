package flightsql

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	flightpb "github.com/apache/arrow-go/v18/arrow/flight/gen/flight"
	arrowipc "github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/TFMV/kite/pkg/errors"
)

// serializeSchema renders a schema in the byte-stream form servers use for
// the dataset schema of a prepared statement.
func serializeSchema(t *testing.T, schema *arrow.Schema) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := arrowipc.NewWriter(&buf, arrowipc.WithSchema(schema))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func prepareResult(t *testing.T, handle []byte, schema *arrow.Schema) []byte {
	t.Helper()
	res := &flightpb.ActionCreatePreparedStatementResult{PreparedStatementHandle: handle}
	if schema != nil {
		res.DatasetSchema = serializeSchema(t, schema)
	}
	var body anypb.Any
	require.NoError(t, body.MarshalFrom(res))
	raw, err := proto.Marshal(&body)
	require.NoError(t, err)
	return raw
}

func decodeAction(t *testing.T, action *flightpb.Action, out proto.Message) {
	t.Helper()
	var body anypb.Any
	require.NoError(t, proto.Unmarshal(action.Body, &body))
	require.NoError(t, body.UnmarshalTo(out))
}

func TestPrepare_RoundTrip(t *testing.T) {
	rec := int64Record(t, "v", 42)
	handle := []byte("stmt-7")
	stub := &stubFlightServer{
		actionResults: [][]byte{prepareResult(t, handle, rec.Schema())},
		getData:       flightDataForRecords(t, rec.Schema(), rec),
	}
	client := newTestClient(t, stub)

	stmt, err := client.Prepare(context.Background(), "SELECT v FROM t WHERE v > ?")
	require.NoError(t, err)

	require.NotNil(t, stmt.Schema())
	assert.Equal(t, "v", stmt.Schema().Field(0).Name)
	assert.Nil(t, stmt.ParameterSchema())

	actions := stub.recordedActions()
	require.Len(t, actions, 1)
	assert.Equal(t, "CreatePreparedStatement", actions[0].Type)
	var createReq flightpb.ActionCreatePreparedStatementRequest
	decodeAction(t, actions[0], &createReq)
	assert.Equal(t, "SELECT v FROM t WHERE v > ?", createReq.Query)

	tbl, err := stmt.Execute(context.Background())
	require.NoError(t, err)
	defer tbl.Release()
	assert.Equal(t, int64(1), tbl.NumRows())
	assert.Equal(t, []int64{42}, tbl.Records()[0].Column(0).(*array.Int64).Int64Values())

	var cmd flightpb.CommandPreparedStatementQuery
	unwrapCommand(t, stub.lastDescriptor(), &cmd)
	assert.Equal(t, handle, cmd.PreparedStatementHandle)

	require.NoError(t, stmt.Close(context.Background()))
	actions = stub.recordedActions()
	require.Len(t, actions, 2)
	assert.Equal(t, "ClosePreparedStatement", actions[1].Type)
	var closeReq flightpb.ActionClosePreparedStatementRequest
	decodeAction(t, actions[1], &closeReq)
	assert.Equal(t, handle, closeReq.PreparedStatementHandle)

	require.NoError(t, stmt.Close(context.Background()))
	assert.Len(t, stub.recordedActions(), 2, "second close must not reach the server")
}

func TestPrepare_ExecuteStream(t *testing.T) {
	rec := int64Record(t, "v", 1, 2, 3)
	stub := &stubFlightServer{
		actionResults: [][]byte{prepareResult(t, []byte("h"), nil)},
		getData:       flightDataForRecords(t, rec.Schema(), rec),
	}
	client := newTestClient(t, stub)

	stmt, err := client.Prepare(context.Background(), "SELECT v FROM t")
	require.NoError(t, err)
	assert.Nil(t, stmt.Schema(), "no dataset schema advertised")

	stream, err := stmt.ExecuteStream(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Next())
	assert.Equal(t, int64(3), stream.Record().NumRows())
	assert.False(t, stream.Next())
	assert.NoError(t, stream.Err())
}

func TestPrepare_EmptyQuery(t *testing.T) {
	client := newTestClient(t, &stubFlightServer{})

	_, err := client.Prepare(context.Background(), "")
	assert.ErrorIs(t, err, errors.ErrEmptyQuery)
}

func TestPrepare_NoResult(t *testing.T) {
	client := newTestClient(t, &stubFlightServer{})

	_, err := client.Prepare(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeEmptyResponse, errors.GetCode(err))
	assert.True(t, errors.IsProtocol(err))
}

func TestPrepare_MalformedResult(t *testing.T) {
	stub := &stubFlightServer{actionResults: [][]byte{{0xDE, 0xAD}}}
	client := newTestClient(t, stub)

	_, err := client.Prepare(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnexpectedMessage, errors.GetCode(err))
}

func TestPrepare_ExecuteAfterClose(t *testing.T) {
	stub := &stubFlightServer{actionResults: [][]byte{prepareResult(t, []byte("h"), nil)}}
	client := newTestClient(t, stub)

	stmt, err := client.Prepare(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, stmt.Close(context.Background()))

	_, err = stmt.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsUsage(err))
	assert.Contains(t, err.Error(), "closed")

	_, err = stmt.ExecuteStream(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsUsage(err))

	info, _ := stub.calls()
	assert.Zero(t, info, "closed statement must not reach the server")
}

func TestPrepare_NaiveRangeRejectedOnExecute(t *testing.T) {
	stub := &stubFlightServer{actionResults: [][]byte{prepareResult(t, []byte("h"), nil)}}
	client := newTestClient(t, stub)

	stmt, err := client.Prepare(context.Background(), "SELECT 1")
	require.NoError(t, err)

	_, err = stmt.Execute(context.Background(),
		WithTimeRange(TimeRange{Begin: "2024-03-01T08:00:00"}))
	require.Error(t, err)
	assert.Equal(t, errors.CodeNaiveTime, errors.GetCode(err))

	info, _ := stub.calls()
	assert.Zero(t, info)
}
