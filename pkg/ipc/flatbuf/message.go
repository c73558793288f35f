// Package flatbuf holds hand-written, read-only FlatBuffer accessors for the
// subset of the Arrow columnar format headers this client decodes: the
// Message envelope, Schema and Field (with the type tables the paired server
// emits), and RecordBatch with its FieldNode and Buffer entries.
//
// Accessors follow the standard FlatBuffers table layout: each getter
// resolves a vtable slot, returning the declared default when the slot is
// absent. Offsets into malformed buffers are not bounds-checked here; the
// decoder entry points in pkg/ipc convert the resulting panics into decode
// errors.
package flatbuf

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// MetadataVersion values from the format's MetadataVersion enum.
const (
	MetadataV4 int16 = 3
	MetadataV5 int16 = 4
)

// MessageHeader union tags.
const (
	MessageHeaderNONE            byte = 0
	MessageHeaderSchema          byte = 1
	MessageHeaderDictionaryBatch byte = 2
	MessageHeaderRecordBatch     byte = 3
)

// MessageHeaderName returns a printable name for a header union tag.
func MessageHeaderName(tag byte) string {
	switch tag {
	case MessageHeaderNONE:
		return "NONE"
	case MessageHeaderSchema:
		return "Schema"
	case MessageHeaderDictionaryBatch:
		return "DictionaryBatch"
	case MessageHeaderRecordBatch:
		return "RecordBatch"
	default:
		return "unknown"
	}
}

// Message is the envelope carried in FlightData.data_header.
//
//	table Message {
//	  version: MetadataVersion;      (slot 4)
//	  header: MessageHeader (union)  (type slot 6, value slot 8)
//	  bodyLength: long;              (slot 10)
//	}
type Message struct {
	tab flatbuffers.Table
}

// GetRootAsMessage positions a Message at the buffer's root table.
func GetRootAsMessage(buf []byte, offset flatbuffers.UOffsetT) *Message {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &Message{}
	x.tab.Bytes = buf
	x.tab.Pos = n + offset
	return x
}

// Version returns the metadata version, V1 when absent.
func (m *Message) Version() int16 {
	if o := flatbuffers.UOffsetT(m.tab.Offset(4)); o != 0 {
		return m.tab.GetInt16(o + m.tab.Pos)
	}
	return 0
}

// HeaderType returns the header union tag.
func (m *Message) HeaderType() byte {
	if o := flatbuffers.UOffsetT(m.tab.Offset(6)); o != 0 {
		return m.tab.GetByte(o + m.tab.Pos)
	}
	return MessageHeaderNONE
}

// Header positions tbl at the union value table and reports whether one is
// present.
func (m *Message) Header(tbl *flatbuffers.Table) bool {
	if o := flatbuffers.UOffsetT(m.tab.Offset(8)); o != 0 {
		m.tab.Union(tbl, o)
		return true
	}
	return false
}

// BodyLength returns the length in bytes of the message body that follows
// the header on the wire.
func (m *Message) BodyLength() int64 {
	if o := flatbuffers.UOffsetT(m.tab.Offset(10)); o != 0 {
		return m.tab.GetInt64(o + m.tab.Pos)
	}
	return 0
}

// RecordBatch is the header of a data-carrying message.
//
//	table RecordBatch {
//	  length: long;                  (slot 4)
//	  nodes: [FieldNode];            (slot 6)
//	  buffers: [Buffer];             (slot 8)
//	  compression: BodyCompression;  (slot 10)
//	}
type RecordBatch struct {
	tab flatbuffers.Table
}

// Init positions the RecordBatch at a union value resolved by Message.Header.
func (rb *RecordBatch) Init(buf []byte, pos flatbuffers.UOffsetT) {
	rb.tab.Bytes = buf
	rb.tab.Pos = pos
}

// Length returns the number of rows in the batch.
func (rb *RecordBatch) Length() int64 {
	if o := flatbuffers.UOffsetT(rb.tab.Offset(4)); o != 0 {
		return rb.tab.GetInt64(o + rb.tab.Pos)
	}
	return 0
}

// NodesLength returns the number of field nodes.
func (rb *RecordBatch) NodesLength() int {
	if o := flatbuffers.UOffsetT(rb.tab.Offset(6)); o != 0 {
		return rb.tab.VectorLen(o)
	}
	return 0
}

// Nodes positions obj at node j and reports whether it exists. FieldNode is a
// 16-byte inline struct, so elements are addressed by stride, not indirection.
func (rb *RecordBatch) Nodes(obj *FieldNode, j int) bool {
	if o := flatbuffers.UOffsetT(rb.tab.Offset(6)); o != 0 {
		x := rb.tab.Vector(o)
		x += flatbuffers.UOffsetT(j) * 16
		obj.tab.Bytes = rb.tab.Bytes
		obj.tab.Pos = x
		return true
	}
	return false
}

// BuffersLength returns the number of buffer entries.
func (rb *RecordBatch) BuffersLength() int {
	if o := flatbuffers.UOffsetT(rb.tab.Offset(8)); o != 0 {
		return rb.tab.VectorLen(o)
	}
	return 0
}

// Buffers positions obj at buffer entry j and reports whether it exists.
func (rb *RecordBatch) Buffers(obj *Buffer, j int) bool {
	if o := flatbuffers.UOffsetT(rb.tab.Offset(8)); o != 0 {
		x := rb.tab.Vector(o)
		x += flatbuffers.UOffsetT(j) * 16
		obj.tab.Bytes = rb.tab.Bytes
		obj.tab.Pos = x
		return true
	}
	return false
}

// Compressed reports whether the batch declares a BodyCompression entry.
// The codec itself is irrelevant here: compressed bodies are rejected.
func (rb *RecordBatch) Compressed() bool {
	return flatbuffers.UOffsetT(rb.tab.Offset(10)) != 0
}

// FieldNode is the per-column (length, null_count) pair.
//
//	struct FieldNode { length: long; null_count: long; }
type FieldNode struct {
	tab flatbuffers.Struct
}

// Length returns the node's row count.
func (fn *FieldNode) Length() int64 {
	return fn.tab.GetInt64(fn.tab.Pos + 0)
}

// NullCount returns the node's null count.
func (fn *FieldNode) NullCount() int64 {
	return fn.tab.GetInt64(fn.tab.Pos + 8)
}

// Buffer is the (offset, length) pair locating one buffer in the body.
//
//	struct Buffer { offset: long; length: long; }
type Buffer struct {
	tab flatbuffers.Struct
}

// Offset returns the buffer's byte offset into the body.
func (b *Buffer) Offset() int64 {
	return b.tab.GetInt64(b.tab.Pos + 0)
}

// Length returns the buffer's byte length.
func (b *Buffer) Length() int64 {
	return b.tab.GetInt64(b.tab.Pos + 8)
}
