package ipc

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/TFMV/kite/pkg/errors"
	"github.com/TFMV/kite/pkg/ipc/flatbuf"
)

// DecodeSchema decodes the header of a stream's first message into an ordered
// schema. The envelope must declare metadata version V5 and a Schema header;
// any other version or header type fails with CodeUnexpectedMessage. The
// result is immutable and shared across every batch decode of the stream.
func DecodeSchema(header []byte) (schema *arrow.Schema, err error) {
	defer recoverMalformed(&err, "schema header")

	msg, err := rootMessage(header)
	if err != nil {
		return nil, err
	}
	if v := msg.Version(); v != flatbuf.MetadataV5 {
		return nil, errors.Newf(errors.CodeUnexpectedMessage,
			"metadata version %d, want V5 (%d)", v, flatbuf.MetadataV5)
	}
	if ht := msg.HeaderType(); ht != flatbuf.MessageHeaderSchema {
		return nil, errors.Newf(errors.CodeUnexpectedMessage,
			"first message carries a %s header, want Schema", flatbuf.MessageHeaderName(ht))
	}

	var tbl flatbuffers.Table
	if !msg.Header(&tbl) {
		return nil, errors.New(errors.CodeMalformedHeader, "message header union is empty")
	}
	var sc flatbuf.Schema
	sc.Init(tbl.Bytes, tbl.Pos)

	fields := make([]arrow.Field, sc.FieldsLength())
	for i := range fields {
		var ff flatbuf.Field
		if !sc.Fields(&ff, i) {
			return nil, errors.Newf(errors.CodeMalformedHeader, "schema field %d is missing", i)
		}
		mapped, err := MapField(&ff)
		if err != nil {
			return nil, annotateColumn(err, ff.Name(), i)
		}
		fields[i] = mapped
	}
	return arrow.NewSchema(fields, nil), nil
}

func rootMessage(header []byte) (*flatbuf.Message, error) {
	if len(header) < 8 {
		return nil, errors.Newf(errors.CodeMalformedHeader,
			"message header is %d bytes, too short for a flatbuffer root", len(header))
	}
	return flatbuf.GetRootAsMessage(header, 0), nil
}

// annotateColumn pins the top-level column name and index onto a decode
// error. Errors raised deeper in a nested walk keep their own field detail.
func annotateColumn(err error, name string, index int) error {
	qerr, ok := err.(*errors.QueryError)
	if !ok {
		return err
	}
	if _, set := qerr.Details["field"]; !set {
		qerr.WithDetail("field", name).WithDetail("field_index", index)
	}
	return qerr
}

// recoverMalformed converts panics from offset arithmetic over corrupt
// flatbuffer bytes into decode errors. Deferred by the decode entry points.
func recoverMalformed(err *error, what string) {
	if r := recover(); r != nil {
		*err = errors.Newf(errors.CodeMalformedHeader, "%s: corrupt flatbuffer: %v", what, r)
	}
}
