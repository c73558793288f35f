package flightsql

import (
	flightpb "github.com/apache/arrow-go/v18/arrow/flight/gen/flight"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/TFMV/kite/pkg/errors"
)

// statementDescriptor wraps an ad-hoc query in a CommandStatementQuery
// command descriptor.
func statementDescriptor(query string) (*flightpb.FlightDescriptor, error) {
	return commandDescriptor(&flightpb.CommandStatementQuery{Query: query})
}

// preparedDescriptor wraps a server-issued prepared statement handle in a
// CommandPreparedStatementQuery command descriptor.
func preparedDescriptor(handle []byte) (*flightpb.FlightDescriptor, error) {
	return commandDescriptor(&flightpb.CommandPreparedStatementQuery{PreparedStatementHandle: handle})
}

// commandDescriptor packs a Flight SQL command into the Any envelope the
// protocol expects and returns a CMD descriptor carrying it.
func commandDescriptor(cmd proto.Message) (*flightpb.FlightDescriptor, error) {
	var body anypb.Any
	if err := body.MarshalFrom(cmd); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to wrap command in Any")
	}
	data, err := proto.Marshal(&body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal command descriptor")
	}
	return &flightpb.FlightDescriptor{
		Type: flightpb.FlightDescriptor_CMD,
		Cmd:  data,
	}, nil
}
