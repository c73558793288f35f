package flightsql

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	flightpb "github.com/apache/arrow-go/v18/arrow/flight/gen/flight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/kite/pkg/errors"
)

func TestBulkIngest_RoundTrip(t *testing.T) {
	r1 := int64Record(t, "v", 1, 2, 3)
	r2 := int64Record(t, "v", 4, 5)
	stub := &stubFlightServer{}
	client := newTestClient(t, stub)

	n, err := client.BulkIngest(context.Background(), []arrow.Record{r1, r2}, IngestOptions{Table: "events"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	desc, rows := stub.putState()
	assert.Equal(t, int64(5), rows)
	require.NotNil(t, desc, "descriptor must ride on the put stream")

	var cmd flightpb.CommandStatementIngest
	unwrapCommand(t, desc, &cmd)
	assert.Equal(t, "events", cmd.Table)
	assert.Equal(t, flightpb.CommandStatementIngest_TableDefinitionOptions_TABLE_NOT_EXIST_OPTION_CREATE,
		cmd.TableDefinitionOptions.IfNotExist)
	assert.Equal(t, flightpb.CommandStatementIngest_TableDefinitionOptions_TABLE_EXISTS_OPTION_APPEND,
		cmd.TableDefinitionOptions.IfExists)
}

func TestBulkIngest_Replace(t *testing.T) {
	rec := int64Record(t, "v", 1)
	stub := &stubFlightServer{}
	client := newTestClient(t, stub)

	_, err := client.BulkIngest(context.Background(), []arrow.Record{rec},
		IngestOptions{Table: "events", Replace: true})
	require.NoError(t, err)

	desc, _ := stub.putState()
	var cmd flightpb.CommandStatementIngest
	unwrapCommand(t, desc, &cmd)
	assert.Equal(t, flightpb.CommandStatementIngest_TableDefinitionOptions_TABLE_EXISTS_OPTION_REPLACE,
		cmd.TableDefinitionOptions.IfExists)
}

func TestBulkIngest_NoAckReportsUnknown(t *testing.T) {
	rec := int64Record(t, "v", 1)
	stub := &stubFlightServer{putNoAck: true}
	client := newTestClient(t, stub)

	n, err := client.BulkIngest(context.Background(), []arrow.Record{rec}, IngestOptions{Table: "events"})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)
}

func TestBulkIngest_Validation(t *testing.T) {
	stub := &stubFlightServer{}
	client := newTestClient(t, stub)
	rec := int64Record(t, "v", 1)

	_, err := client.BulkIngest(context.Background(), []arrow.Record{rec}, IngestOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	_, err = client.BulkIngest(context.Background(), nil, IngestOptions{Table: "events"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidQuery, errors.GetCode(err))

	other := int64Record(t, "w", 1)
	_, err = client.BulkIngest(context.Background(), []arrow.Record{rec, other}, IngestOptions{Table: "events"})
	require.Error(t, err)
	assert.True(t, errors.IsUsage(err))
	assert.Contains(t, err.Error(), "schema differs")
}
