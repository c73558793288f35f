package ipc

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	arrowipc "github.com/apache/arrow-go/v18/arrow/ipc"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/stretchr/testify/require"
)

// encodeStream runs records through the reference stream writer and splits
// the output back into raw (header, body) messages, the shape FlightData
// delivers them in.
func encodeStreamBytes(t *testing.T, schema *arrow.Schema, recs ...arrow.Record) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := arrowipc.NewWriter(&buf, arrowipc.WithSchema(schema))
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func encodeStream(t *testing.T, schema *arrow.Schema, recs ...arrow.Record) []RawMessage {
	t.Helper()

	msgs, err := SplitStream(encodeStreamBytes(t, schema, recs...))
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	return msgs
}

// decodeStream pushes reference-writer messages through the custom decoders.
func decodeStream(t *testing.T, msgs []RawMessage) (*arrow.Schema, []arrow.Record) {
	t.Helper()

	schema, err := DecodeSchema(msgs[0].Header)
	require.NoError(t, err)

	recs := make([]arrow.Record, 0, len(msgs)-1)
	for _, msg := range msgs[1:] {
		rec, err := DecodeRecordBatch(schema, msg.Header, msg.Body)
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	return schema, recs
}

// batchHeader hand-assembles a RecordBatch message header with explicit node
// and buffer vectors, for engineering count mismatches the reference writer
// would never produce. nodes entries are (length, null_count) pairs, bufs
// entries (offset, length) pairs.
func batchHeader(t *testing.T, length int64, nodes [][2]int64, bufs [][2]int64, compressed bool) []byte {
	t.Helper()

	b := flatbuffers.NewBuilder(256)

	var compression flatbuffers.UOffsetT
	if compressed {
		b.StartObject(2)
		compression = b.EndObject()
	}

	b.StartVector(16, len(nodes), 8)
	for i := len(nodes) - 1; i >= 0; i-- {
		b.Prep(8, 16)
		b.PrependInt64(nodes[i][1])
		b.PrependInt64(nodes[i][0])
	}
	nodesVec := b.EndVector(len(nodes))

	b.StartVector(16, len(bufs), 8)
	for i := len(bufs) - 1; i >= 0; i-- {
		b.Prep(8, 16)
		b.PrependInt64(bufs[i][1])
		b.PrependInt64(bufs[i][0])
	}
	bufsVec := b.EndVector(len(bufs))

	b.StartObject(5)
	b.PrependInt64Slot(0, length, 0)
	b.PrependUOffsetTSlot(1, nodesVec, 0)
	b.PrependUOffsetTSlot(2, bufsVec, 0)
	if compressed {
		b.PrependUOffsetTSlot(3, compression, 0)
	}
	rb := b.EndObject()

	return finishMessage(b, 3, rb)
}

// schemaHeaderOneField hand-assembles a Schema message with a single field
// whose type table is produced by buildType, for exercising mapper rejections
// the reference writer cannot emit.
func schemaHeaderOneField(t *testing.T, name string, typeTag byte, withDictionary bool, buildType func(b *flatbuffers.Builder) flatbuffers.UOffsetT) []byte {
	t.Helper()

	b := flatbuffers.NewBuilder(256)
	nameOff := b.CreateString(name)

	var typeTbl flatbuffers.UOffsetT
	if buildType != nil {
		typeTbl = buildType(b)
	}

	var dict flatbuffers.UOffsetT
	if withDictionary {
		b.StartObject(4)
		dict = b.EndObject()
	}

	b.StartObject(7)
	b.PrependUOffsetTSlot(0, nameOff, 0)
	b.PrependBoolSlot(1, true, false)
	b.PrependByteSlot(2, typeTag, 0)
	if typeTbl != 0 {
		b.PrependUOffsetTSlot(3, typeTbl, 0)
	}
	if withDictionary {
		b.PrependUOffsetTSlot(4, dict, 0)
	}
	field := b.EndObject()

	b.StartVector(4, 1, 4)
	b.PrependUOffsetT(field)
	fieldsVec := b.EndVector(1)

	b.StartObject(4)
	b.PrependUOffsetTSlot(1, fieldsVec, 0)
	schema := b.EndObject()

	return finishMessage(b, 1, schema)
}

// emptyHeaderMessage builds a message with the given version, header tag,
// and an empty header table, enough to exercise envelope dispatch.
func emptyHeaderMessage(t *testing.T, version int16, headerType byte) []byte {
	t.Helper()

	b := flatbuffers.NewBuilder(64)
	b.StartObject(1)
	header := b.EndObject()

	b.StartObject(5)
	b.PrependInt16Slot(0, version, 0)
	b.PrependByteSlot(1, headerType, 0)
	b.PrependUOffsetTSlot(2, header, 0)
	msg := b.EndObject()
	b.Finish(msg)
	return b.FinishedBytes()
}

func finishMessage(b *flatbuffers.Builder, headerType byte, header flatbuffers.UOffsetT) []byte {
	b.StartObject(5)
	b.PrependInt16Slot(0, 4, 0) // metadata V5
	b.PrependByteSlot(1, headerType, 0)
	b.PrependUOffsetTSlot(2, header, 0)
	msg := b.EndObject()
	b.Finish(msg)
	return b.FinishedBytes()
}
