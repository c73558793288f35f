package ipc

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/kite/pkg/errors"
	"github.com/TFMV/kite/pkg/ipc/flatbuf"
)

// DecodeRecordBatch decodes one RecordBatch message against a schema decoded
// earlier from the same stream. Columns are zero-copy views over body, so the
// record must not outlive the body bytes unless the caller copies.
//
// Field nodes and buffers are consumed strictly in order through two cursors
// shared across the whole recursive walk: each column pops its (length,
// null_count) node, then the buffers its type prescribes: primitives
// [validity, data], utf8/binary [validity, offsets, data], list [validity,
// offsets] plus its element column, struct [validity] plus one column per
// child, null nothing. Both cursors must land exactly on the end of their
// vectors, otherwise the batch is rejected as truncated or misaligned.
func DecodeRecordBatch(schema *arrow.Schema, header, body []byte) (rec arrow.Record, err error) {
	defer recoverMalformed(&err, "record batch header")

	msg, err := rootMessage(header)
	if err != nil {
		return nil, err
	}
	switch ht := msg.HeaderType(); ht {
	case flatbuf.MessageHeaderRecordBatch:
	case flatbuf.MessageHeaderDictionaryBatch:
		return nil, errors.New(errors.CodeUnsupportedWire, "dictionary batches are not supported")
	default:
		return nil, errors.Newf(errors.CodeUnexpectedMessage,
			"expected a RecordBatch header, got %s", flatbuf.MessageHeaderName(ht))
	}

	var tbl flatbuffers.Table
	if !msg.Header(&tbl) {
		return nil, errors.New(errors.CodeMalformedHeader, "message header union is empty")
	}
	var rb flatbuf.RecordBatch
	rb.Init(tbl.Bytes, tbl.Pos)

	if rb.Compressed() {
		return nil, errors.New(errors.CodeUnsupportedWire, "compressed record batch bodies are not supported")
	}

	cur := &batchCursors{rb: &rb, body: body}
	datas := make([]arrow.ArrayData, 0, schema.NumFields())
	releaseAll := func() {
		for _, d := range datas {
			d.Release()
		}
	}

	for i := 0; i < schema.NumFields(); i++ {
		f := schema.Field(i)
		data, cerr := cur.readColumn(f)
		if cerr != nil {
			releaseAll()
			return nil, annotateColumn(cerr, f.Name, i)
		}
		datas = append(datas, data)
	}

	if cur.node != rb.NodesLength() || cur.buf != rb.BuffersLength() {
		releaseAll()
		return nil, errors.Newf(errors.CodeTruncatedBatch,
			"record batch cursors misaligned: consumed %d of %d field nodes, %d of %d buffers",
			cur.node, rb.NodesLength(), cur.buf, rb.BuffersLength())
	}

	cols := make([]arrow.Array, len(datas))
	for i, data := range datas {
		cols[i] = array.MakeFromData(data)
		data.Release()
	}
	out := array.NewRecord(schema, cols, rb.Length())
	for _, col := range cols {
		col.Release()
	}
	return out, nil
}

// batchCursors threads the node and buffer positions through the recursive
// column walk. Cursor state is scoped to a single message.
type batchCursors struct {
	rb   *flatbuf.RecordBatch
	body []byte
	node int
	buf  int
}

func (c *batchCursors) readColumn(field arrow.Field) (arrow.ArrayData, error) {
	length, nulls, err := c.nextNode(field.Name)
	if err != nil {
		return nil, err
	}
	if length < 0 || nulls < 0 || nulls > length {
		return nil, errors.Newf(errors.CodeMalformedHeader,
			"column %q: field node (length=%d, null_count=%d) is invalid", field.Name, length, nulls)
	}

	// The null layout owns no buffers, not even a validity bitmap.
	if field.Type.ID() == arrow.NULL {
		return array.NewData(field.Type, int(length), []*memory.Buffer{nil}, nil, int(length), 0), nil
	}

	validity, err := c.validityBuffer(field.Name, length, nulls)
	if err != nil {
		return nil, err
	}

	switch dt := field.Type.(type) {
	case *arrow.ListType:
		offsets, err := c.offsetsBuffer(field.Name, length, arrow.Int32SizeBytes)
		if err != nil {
			return nil, err
		}
		elem, err := c.readColumn(dt.ElemField())
		if err != nil {
			return nil, err
		}
		data := array.NewData(dt, int(length),
			[]*memory.Buffer{validity, offsets}, []arrow.ArrayData{elem}, int(nulls), 0)
		elem.Release()
		return data, nil

	case *arrow.StructType:
		children := make([]arrow.ArrayData, dt.NumFields())
		for i := 0; i < dt.NumFields(); i++ {
			child, err := c.readColumn(dt.Field(i))
			if err != nil {
				for _, built := range children[:i] {
					built.Release()
				}
				return nil, err
			}
			children[i] = child
		}
		data := array.NewData(dt, int(length), []*memory.Buffer{validity}, children, int(nulls), 0)
		for _, child := range children {
			child.Release()
		}
		return data, nil

	case *arrow.StringType, *arrow.BinaryType:
		return c.varBinary(field, length, nulls, validity, arrow.Int32SizeBytes)

	case *arrow.LargeStringType, *arrow.LargeBinaryType:
		return c.varBinary(field, length, nulls, validity, arrow.Int64SizeBytes)

	case *arrow.Int8Type, *arrow.Int16Type, *arrow.Int32Type, *arrow.Int64Type,
		*arrow.Uint8Type, *arrow.Uint16Type, *arrow.Uint32Type, *arrow.Uint64Type,
		*arrow.Float64Type, *arrow.BooleanType, *arrow.TimestampType:
		fw := dt.(arrow.FixedWidthDataType)
		data, err := c.fixedBuffer(field.Name, length, fw.BitWidth())
		if err != nil {
			return nil, err
		}
		return array.NewData(fw, int(length),
			[]*memory.Buffer{validity, data}, nil, int(nulls), 0), nil

	default:
		return nil, errors.Newf(errors.CodeUnsupportedType,
			"column %q: no decode path for %s", field.Name, field.Type)
	}
}

func (c *batchCursors) varBinary(field arrow.Field, length, nulls int64, validity *memory.Buffer, offsetSize int) (arrow.ArrayData, error) {
	offsets, err := c.offsetsBuffer(field.Name, length, offsetSize)
	if err != nil {
		return nil, err
	}
	data, err := c.nextBuffer(field.Name)
	if err != nil {
		return nil, err
	}
	return array.NewData(field.Type, int(length),
		[]*memory.Buffer{validity, offsets, data}, nil, int(nulls), 0), nil
}

func (c *batchCursors) nextNode(col string) (length, nulls int64, err error) {
	var fn flatbuf.FieldNode
	if c.node >= c.rb.NodesLength() || !c.rb.Nodes(&fn, c.node) {
		return 0, 0, errors.Newf(errors.CodeTruncatedBatch,
			"column %q: field nodes exhausted after %d", col, c.node)
	}
	c.node++
	return fn.Length(), fn.NullCount(), nil
}

// nextBuffer pops the next buffer entry and slices it out of the body.
// Zero-length buffers come back nil, which the array layer treats as absent.
func (c *batchCursors) nextBuffer(col string) (*memory.Buffer, error) {
	var b flatbuf.Buffer
	if c.buf >= c.rb.BuffersLength() || !c.rb.Buffers(&b, c.buf) {
		return nil, errors.Newf(errors.CodeTruncatedBatch,
			"column %q: buffers exhausted after %d", col, c.buf)
	}
	c.buf++
	off, ln := b.Offset(), b.Length()
	if off < 0 || ln < 0 || off+ln > int64(len(c.body)) {
		return nil, errors.Newf(errors.CodeTruncatedBatch,
			"column %q: buffer %d spans [%d:%d) outside the %d-byte body",
			col, c.buf-1, off, off+ln, len(c.body))
	}
	if ln == 0 {
		return nil, nil
	}
	return memory.NewBufferBytes(c.body[off : off+ln]), nil
}

func (c *batchCursors) validityBuffer(col string, length, nulls int64) (*memory.Buffer, error) {
	buf, err := c.nextBuffer(col)
	if err != nil {
		return nil, err
	}
	if nulls == 0 {
		// All rows valid. The wire entry may be empty or populated either
		// way; dropping it lets the array skip bitmap reads entirely.
		return nil, nil
	}
	need := bitutil.BytesForBits(length)
	if buf == nil || int64(buf.Len()) < need {
		got := 0
		if buf != nil {
			got = buf.Len()
		}
		return nil, errors.Newf(errors.CodeTruncatedBatch,
			"column %q: null_count=%d but validity bitmap holds %d bytes, need %d", col, nulls, got, need)
	}
	return buf, nil
}

func (c *batchCursors) offsetsBuffer(col string, length int64, offsetSize int) (*memory.Buffer, error) {
	buf, err := c.nextBuffer(col)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return buf, nil
	}
	need := int64(offsetSize) * (length + 1)
	if buf == nil || int64(buf.Len()) < need {
		got := 0
		if buf != nil {
			got = buf.Len()
		}
		return nil, errors.Newf(errors.CodeTruncatedBatch,
			"column %q: offsets buffer holds %d bytes, need %d for %d rows", col, got, need, length)
	}
	return buf, nil
}

func (c *batchCursors) fixedBuffer(col string, length int64, bitWidth int) (*memory.Buffer, error) {
	buf, err := c.nextBuffer(col)
	if err != nil {
		return nil, err
	}
	need := bitutil.BytesForBits(length * int64(bitWidth))
	if need == 0 {
		return buf, nil
	}
	if buf == nil || int64(buf.Len()) < need {
		got := 0
		if buf != nil {
			got = buf.Len()
		}
		return nil, errors.Newf(errors.CodeTruncatedBatch,
			"column %q: data buffer holds %d bytes, need %d", col, got, need)
	}
	return buf, nil
}
