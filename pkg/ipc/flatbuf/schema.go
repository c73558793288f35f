package flatbuf

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// Type union tags from the format's Type union, in declaration order.
const (
	TypeNONE            byte = 0
	TypeNull            byte = 1
	TypeInt             byte = 2
	TypeFloatingPoint   byte = 3
	TypeBinary          byte = 4
	TypeUtf8            byte = 5
	TypeBool            byte = 6
	TypeDecimal         byte = 7
	TypeDate            byte = 8
	TypeTime            byte = 9
	TypeTimestamp       byte = 10
	TypeInterval        byte = 11
	TypeList            byte = 12
	TypeStruct          byte = 13
	TypeUnion           byte = 14
	TypeFixedSizeBinary byte = 15
	TypeFixedSizeList   byte = 16
	TypeMap             byte = 17
	TypeDuration        byte = 18
	TypeLargeBinary     byte = 19
	TypeLargeUtf8       byte = 20
	TypeLargeList       byte = 21
)

var typeNames = map[byte]string{
	TypeNONE:            "NONE",
	TypeNull:            "Null",
	TypeInt:             "Int",
	TypeFloatingPoint:   "FloatingPoint",
	TypeBinary:          "Binary",
	TypeUtf8:            "Utf8",
	TypeBool:            "Bool",
	TypeDecimal:         "Decimal",
	TypeDate:            "Date",
	TypeTime:            "Time",
	TypeTimestamp:       "Timestamp",
	TypeInterval:        "Interval",
	TypeList:            "List",
	TypeStruct:          "Struct",
	TypeUnion:           "Union",
	TypeFixedSizeBinary: "FixedSizeBinary",
	TypeFixedSizeList:   "FixedSizeList",
	TypeMap:             "Map",
	TypeDuration:        "Duration",
	TypeLargeBinary:     "LargeBinary",
	TypeLargeUtf8:       "LargeUtf8",
	TypeLargeList:       "LargeList",
}

// TypeName returns a printable name for a type union tag.
func TypeName(tag byte) string {
	if name, ok := typeNames[tag]; ok {
		return name
	}
	return "unknown"
}

// TimeUnit values for Timestamp.unit.
const (
	TimeUnitSecond      int16 = 0
	TimeUnitMillisecond int16 = 1
	TimeUnitMicrosecond int16 = 2
	TimeUnitNanosecond  int16 = 3
)

// FloatingPoint precision values.
const (
	PrecisionHalf   int16 = 0
	PrecisionSingle int16 = 1
	PrecisionDouble int16 = 2
)

// Schema is the header of the stream's first message.
//
//	table Schema {
//	  endianness: Endianness;  (slot 4)
//	  fields: [Field];         (slot 6)
//	}
type Schema struct {
	tab flatbuffers.Table
}

// Init positions the Schema at a union value resolved by Message.Header.
func (s *Schema) Init(buf []byte, pos flatbuffers.UOffsetT) {
	s.tab.Bytes = buf
	s.tab.Pos = pos
}

// FieldsLength returns the number of top-level fields.
func (s *Schema) FieldsLength() int {
	if o := flatbuffers.UOffsetT(s.tab.Offset(6)); o != 0 {
		return s.tab.VectorLen(o)
	}
	return 0
}

// Fields positions obj at field j and reports whether it exists.
func (s *Schema) Fields(obj *Field, j int) bool {
	if o := flatbuffers.UOffsetT(s.tab.Offset(6)); o != 0 {
		x := s.tab.Vector(o)
		x += flatbuffers.UOffsetT(j) * 4
		x = s.tab.Indirect(x)
		obj.tab.Bytes = s.tab.Bytes
		obj.tab.Pos = x
		return true
	}
	return false
}

// Field describes one column: name, nullability, type union, children.
//
//	table Field {
//	  name: string;              (slot 4)
//	  nullable: bool;            (slot 6)
//	  type: Type (union)         (type slot 8, value slot 10)
//	  dictionary: DictionaryEncoding;  (slot 12)
//	  children: [Field];         (slot 14)
//	}
type Field struct {
	tab flatbuffers.Table
}

// Name returns the field name, empty when absent.
func (f *Field) Name() string {
	if o := flatbuffers.UOffsetT(f.tab.Offset(4)); o != 0 {
		return string(f.tab.ByteVector(o + f.tab.Pos))
	}
	return ""
}

// Nullable reports the declared nullability.
func (f *Field) Nullable() bool {
	if o := flatbuffers.UOffsetT(f.tab.Offset(6)); o != 0 {
		return f.tab.GetBool(o + f.tab.Pos)
	}
	return false
}

// TypeType returns the type union tag.
func (f *Field) TypeType() byte {
	if o := flatbuffers.UOffsetT(f.tab.Offset(8)); o != 0 {
		return f.tab.GetByte(o + f.tab.Pos)
	}
	return TypeNONE
}

// Type positions tbl at the type union value table.
func (f *Field) Type(tbl *flatbuffers.Table) bool {
	if o := flatbuffers.UOffsetT(f.tab.Offset(10)); o != 0 {
		f.tab.Union(tbl, o)
		return true
	}
	return false
}

// Dictionary reports whether the field declares a dictionary encoding.
// Dictionary-encoded columns are not decoded here, so presence is all the
// mapper needs.
func (f *Field) Dictionary() bool {
	return flatbuffers.UOffsetT(f.tab.Offset(12)) != 0
}

// ChildrenLength returns the number of child fields.
func (f *Field) ChildrenLength() int {
	if o := flatbuffers.UOffsetT(f.tab.Offset(14)); o != 0 {
		return f.tab.VectorLen(o)
	}
	return 0
}

// Children positions obj at child j and reports whether it exists.
func (f *Field) Children(obj *Field, j int) bool {
	if o := flatbuffers.UOffsetT(f.tab.Offset(14)); o != 0 {
		x := f.tab.Vector(o)
		x += flatbuffers.UOffsetT(j) * 4
		x = f.tab.Indirect(x)
		obj.tab.Bytes = f.tab.Bytes
		obj.tab.Pos = x
		return true
	}
	return false
}

// Int is the type table for integer columns.
//
//	table Int { bitWidth: int; is_signed: bool; }
type Int struct {
	tab flatbuffers.Table
}

// Init positions the Int table at a resolved type union value.
func (t *Int) Init(buf []byte, pos flatbuffers.UOffsetT) {
	t.tab.Bytes = buf
	t.tab.Pos = pos
}

// BitWidth returns the declared bit width.
func (t *Int) BitWidth() int32 {
	if o := flatbuffers.UOffsetT(t.tab.Offset(4)); o != 0 {
		return t.tab.GetInt32(o + t.tab.Pos)
	}
	return 0
}

// IsSigned reports signedness.
func (t *Int) IsSigned() bool {
	if o := flatbuffers.UOffsetT(t.tab.Offset(6)); o != 0 {
		return t.tab.GetBool(o + t.tab.Pos)
	}
	return false
}

// FloatingPoint is the type table for float columns.
//
//	table FloatingPoint { precision: Precision; }
type FloatingPoint struct {
	tab flatbuffers.Table
}

// Init positions the FloatingPoint table at a resolved type union value.
func (t *FloatingPoint) Init(buf []byte, pos flatbuffers.UOffsetT) {
	t.tab.Bytes = buf
	t.tab.Pos = pos
}

// Precision returns the declared precision.
func (t *FloatingPoint) Precision() int16 {
	if o := flatbuffers.UOffsetT(t.tab.Offset(4)); o != 0 {
		return t.tab.GetInt16(o + t.tab.Pos)
	}
	return 0
}

// Timestamp is the type table for timestamp columns.
//
//	table Timestamp { unit: TimeUnit; timezone: string; }
type Timestamp struct {
	tab flatbuffers.Table
}

// Init positions the Timestamp table at a resolved type union value.
func (t *Timestamp) Init(buf []byte, pos flatbuffers.UOffsetT) {
	t.tab.Bytes = buf
	t.tab.Pos = pos
}

// Unit returns the epoch unit.
func (t *Timestamp) Unit() int16 {
	if o := flatbuffers.UOffsetT(t.tab.Offset(4)); o != 0 {
		return t.tab.GetInt16(o + t.tab.Pos)
	}
	return TimeUnitSecond
}

// Timezone returns the timezone string; empty means no explicit zone.
func (t *Timestamp) Timezone() string {
	if o := flatbuffers.UOffsetT(t.tab.Offset(6)); o != 0 {
		return string(t.tab.ByteVector(o + t.tab.Pos))
	}
	return ""
}
