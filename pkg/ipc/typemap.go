// Package ipc decodes Arrow IPC stream messages (FlatBuffer headers plus raw
// buffer bodies) into arrow records, covering exactly the logical types the
// paired server emits: null, int (8/16/32/64, both signs), float64, bool,
// utf8/binary and their large variants, timestamp, list, and struct.
// Everything else on the wire is rejected with a decode error rather than
// falling through to a partial result.
package ipc

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/TFMV/kite/pkg/errors"
	"github.com/TFMV/kite/pkg/ipc/flatbuf"
)

// MapField maps a FlatBuffer field to an arrow.Field, preserving name,
// nullability, and nested children. Unsupported type tags, int widths, and
// float precisions fail with decode errors naming the offending column.
func MapField(f *flatbuf.Field) (arrow.Field, error) {
	if f.Dictionary() {
		return arrow.Field{}, errors.Newf(errors.CodeUnsupportedType,
			"column %q: dictionary-encoded fields are not supported", f.Name())
	}
	dt, err := mapType(f)
	if err != nil {
		return arrow.Field{}, err
	}
	return arrow.Field{Name: f.Name(), Type: dt, Nullable: f.Nullable()}, nil
}

func mapType(f *flatbuf.Field) (arrow.DataType, error) {
	tag := f.TypeType()

	var tbl flatbuffers.Table
	hasTable := f.Type(&tbl)

	switch tag {
	case flatbuf.TypeNull:
		return arrow.Null, nil

	case flatbuf.TypeBool:
		return arrow.FixedWidthTypes.Boolean, nil

	case flatbuf.TypeUtf8:
		return arrow.BinaryTypes.String, nil

	case flatbuf.TypeBinary:
		return arrow.BinaryTypes.Binary, nil

	case flatbuf.TypeLargeUtf8:
		return arrow.BinaryTypes.LargeString, nil

	case flatbuf.TypeLargeBinary:
		return arrow.BinaryTypes.LargeBinary, nil

	case flatbuf.TypeInt:
		if !hasTable {
			return nil, missingTypeTable(f, tag)
		}
		var it flatbuf.Int
		it.Init(tbl.Bytes, tbl.Pos)
		return intType(f.Name(), it.BitWidth(), it.IsSigned())

	case flatbuf.TypeFloatingPoint:
		if !hasTable {
			return nil, missingTypeTable(f, tag)
		}
		var fp flatbuf.FloatingPoint
		fp.Init(tbl.Bytes, tbl.Pos)
		if p := fp.Precision(); p != flatbuf.PrecisionDouble {
			return nil, errors.Newf(errors.CodeUnsupportedType,
				"column %q: floating point precision %d is not supported, only DOUBLE", f.Name(), p)
		}
		return arrow.PrimitiveTypes.Float64, nil

	case flatbuf.TypeTimestamp:
		if !hasTable {
			return nil, missingTypeTable(f, tag)
		}
		var ts flatbuf.Timestamp
		ts.Init(tbl.Bytes, tbl.Pos)
		unit, err := timeUnit(f.Name(), ts.Unit())
		if err != nil {
			return nil, err
		}
		return &arrow.TimestampType{Unit: unit, TimeZone: ts.Timezone()}, nil

	case flatbuf.TypeList:
		if n := f.ChildrenLength(); n != 1 {
			return nil, errors.Newf(errors.CodeMalformedHeader,
				"column %q: list declares %d children, want exactly 1", f.Name(), n)
		}
		var child flatbuf.Field
		if !f.Children(&child, 0) {
			return nil, errors.Newf(errors.CodeMalformedHeader,
				"column %q: list child field is missing", f.Name())
		}
		elem, err := MapField(&child)
		if err != nil {
			return nil, err
		}
		return arrow.ListOfField(elem), nil

	case flatbuf.TypeStruct:
		n := f.ChildrenLength()
		fields := make([]arrow.Field, n)
		for i := 0; i < n; i++ {
			var child flatbuf.Field
			if !f.Children(&child, i) {
				return nil, errors.Newf(errors.CodeMalformedHeader,
					"column %q: struct child %d is missing", f.Name(), i)
			}
			cf, err := MapField(&child)
			if err != nil {
				return nil, err
			}
			fields[i] = cf
		}
		return arrow.StructOf(fields...), nil

	default:
		return nil, errors.Newf(errors.CodeUnsupportedType,
			"column %q: unsupported type %s (tag %d)", f.Name(), flatbuf.TypeName(tag), tag)
	}
}

func intType(col string, bitWidth int32, signed bool) (arrow.DataType, error) {
	if signed {
		switch bitWidth {
		case 8:
			return arrow.PrimitiveTypes.Int8, nil
		case 16:
			return arrow.PrimitiveTypes.Int16, nil
		case 32:
			return arrow.PrimitiveTypes.Int32, nil
		case 64:
			return arrow.PrimitiveTypes.Int64, nil
		}
	} else {
		switch bitWidth {
		case 8:
			return arrow.PrimitiveTypes.Uint8, nil
		case 16:
			return arrow.PrimitiveTypes.Uint16, nil
		case 32:
			return arrow.PrimitiveTypes.Uint32, nil
		case 64:
			return arrow.PrimitiveTypes.Uint64, nil
		}
	}
	return nil, errors.Newf(errors.CodeUnsupportedIntWidth,
		"column %q: int bit width %d is not supported", col, bitWidth)
}

func timeUnit(col string, unit int16) (arrow.TimeUnit, error) {
	switch unit {
	case flatbuf.TimeUnitSecond:
		return arrow.Second, nil
	case flatbuf.TimeUnitMillisecond:
		return arrow.Millisecond, nil
	case flatbuf.TimeUnitMicrosecond:
		return arrow.Microsecond, nil
	case flatbuf.TimeUnitNanosecond:
		return arrow.Nanosecond, nil
	default:
		return 0, errors.Newf(errors.CodeMalformedHeader,
			"column %q: unknown timestamp unit %d", col, unit)
	}
}

func missingTypeTable(f *flatbuf.Field, tag byte) error {
	return errors.Newf(errors.CodeMalformedHeader,
		"column %q: type %s declared without its type table", f.Name(), flatbuf.TypeName(tag))
}
