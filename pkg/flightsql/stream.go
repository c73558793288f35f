package flightsql

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	flightpb "github.com/apache/arrow-go/v18/arrow/flight/gen/flight"
	"github.com/rs/zerolog"

	"github.com/TFMV/kite/pkg/errors"
	"github.com/TFMV/kite/pkg/ipc"
	"github.com/TFMV/kite/pkg/metrics"
)

type streamState int

const (
	// streamActive means batches may still arrive.
	streamActive streamState = iota
	// streamDone means the server finished the stream cleanly.
	streamDone
	// streamFailed means a transport or decode error ended the stream.
	streamFailed
	// streamClosed means the caller closed the stream.
	streamClosed
)

// Stream is a lazy, single-pass view of a query result. Batches are decoded
// one at a time as Next is called; each record is valid until the following
// Next or Close. Streams are not safe for concurrent use.
type Stream struct {
	schema  *arrow.Schema
	rpc     flightpb.FlightService_DoGetClient
	cancel  context.CancelFunc
	logger  zerolog.Logger
	metrics metrics.Collector

	state streamState
	cur   arrow.Record
	err   error
	seq   int // message sequence; the schema message was 0
}

// Schema returns the stream schema, known as soon as the stream opens.
func (s *Stream) Schema() *arrow.Schema {
	return s.schema
}

// Next advances to the next record batch. It returns false when the stream
// is exhausted, failed, or closed; check Err to tell the cases apart.
// Zero-row batches are surfaced like any other batch.
func (s *Stream) Next() bool {
	if s.state != streamActive {
		return false
	}
	s.releaseCurrent()

	data, err := s.rpc.Recv()
	if err == io.EOF {
		s.state = streamDone
		s.cancel()
		return false
	}
	if err != nil {
		s.fail(transportError(err, "do_get"))
		return false
	}
	s.seq++

	rec, err := ipc.DecodeRecordBatch(s.schema, data.DataHeader, data.DataBody)
	if err != nil {
		s.metrics.IncrementCounter("flightsql_decode_errors_total", "code", errors.GetCode(err))
		s.fail(tagMessageSeq(err, s.seq))
		return false
	}

	s.metrics.IncrementCounter("flightsql_batches_total", "mode", "stream")
	s.metrics.RecordGauge("flightsql_last_batch_rows", float64(rec.NumRows()))
	s.cur = rec
	return true
}

// Record returns the current batch. Only valid after Next returned true,
// and only until the next call to Next or Close.
func (s *Stream) Record() arrow.Record {
	return s.cur
}

// Err returns the terminal error, or nil if the stream ended cleanly or is
// still active.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the current batch and cancels the underlying RPC so the
// server stops sending. Safe to call at any point and more than once.
func (s *Stream) Close() error {
	if s.state == streamClosed {
		return nil
	}
	if s.state == streamActive {
		s.logger.Debug().Int("messages", s.seq).Msg("Closing stream before exhaustion")
	}
	s.state = streamClosed
	s.releaseCurrent()
	s.cancel()
	return nil
}

func (s *Stream) fail(err error) {
	s.state = streamFailed
	s.err = err
	s.cancel()
}

func (s *Stream) releaseCurrent() {
	if s.cur != nil {
		s.cur.Release()
		s.cur = nil
	}
}

// tagMessageSeq records the position of the offending message on a decode
// error. The schema message is sequence 0, the first batch 1.
func tagMessageSeq(err error, seq int) error {
	var qerr *errors.QueryError
	if stderrors.As(err, &qerr) {
		qerr.WithDetail("message_seq", seq)
	}
	return err
}
