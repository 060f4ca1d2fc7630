package core

import (
	"math"
	"strconv"
)

type FieldType int

const (
	NullType FieldType = iota
	IntType
	DoubleType
	StrType
	CharType
	RecordType
	BlobType
)

// IllegalType marks a stored field that could not be decoded.
const IllegalType FieldType = -1

var fieldTypeNames = map[FieldType]string{
	NullType:   "null",
	IntType:    "int",
	DoubleType: "double",
	StrType:    "str",
	CharType:   "char",
	RecordType: "record",
	BlobType:   "blob",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "illegal"
}

// ParseFieldType maps a query type name to a field type. Blobs cannot be
// queried by value, so "blob" is not accepted here.
func ParseFieldType(name string) (FieldType, bool) {
	switch name {
	case "null":
		return NullType, true
	case "int":
		return IntType, true
	case "double":
		return DoubleType, true
	case "str":
		return StrType, true
	case "char":
		return CharType, true
	case "record":
		return RecordType, true
	}
	return NullType, false
}

// Value is a single decoded field value.
type Value struct {
	Type   FieldType
	Int    int64   // IntType, RecordType (referenced id)
	Double float64 // DoubleType
	Str    string  // StrType, CharType, BlobType
}

func Null() Value { return Value{Type: NullType} }
func Int(i int64) Value { return Value{Type: IntType, Int: i} }
func Double(d float64) Value { return Value{Type: DoubleType, Double: d} }
func Str(s string) Value { return Value{Type: StrType, Str: s} }
func Char(c rune) Value { return Value{Type: CharType, Str: string(c)} }
func Ref(id int64) Value { return Value{Type: RecordType, Int: id} }
func Blob(b []byte) Value { return Value{Type: BlobType, Str: string(b)} }
func (v Value) IsNull() bool { return v.Type == NullType }
func (v Value) IsRecord() bool { return v.Type == RecordType }

// Size approximates the storage footprint of the value in bytes.
func (v Value) Size() int64 {
	switch v.Type {
	case StrType, CharType, BlobType:
		return int64(len(v.Str)) + 8
	default:
		return 8
	}
}

func (v Value) String() string {
	switch v.Type {
	case IntType, RecordType:
		return strconv.FormatInt(v.Int, 10)
	case DoubleType:
		return strconv.FormatFloat(v.Double, 'g', -1, 64)
	case StrType, CharType, BlobType:
		return v.Str
	default:
		return ""
	}
}

// Record is an ordered list of fields stored under a database-assigned id.
type Record struct {
	ID     int64
	Fields []Value
}

// Size approximates the storage footprint of the record in bytes.
func (r Record) Size() int64 {
	size := int64(16)
	for _, f := range r.Fields {
		size += f.Size()
	}
	return size
}

// compare orders two values of comparable types. ok is false when the types
// cannot be compared (e.g. a string against an int).
func compare(a, b Value) (cmp int, ok bool) {
	switch {
	case a.Type == NullType || b.Type == NullType:
		if a.Type == b.Type {
			return 0, true
		}
		return 0, false
	case isNumeric(a.Type) && isNumeric(b.Type):
		if a.Type == IntType && b.Type == IntType {
			return cmpInt(a.Int, b.Int), true
		}
		af, bf := a.float(), b.float()
		if math.IsNaN(af) || math.IsNaN(bf) {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	case a.Type == RecordType && b.Type == RecordType:
		return cmpInt(a.Int, b.Int), true
	case isText(a.Type) && isText(b.Type) && (a.Type == b.Type || a.Type != BlobType && b.Type != BlobType):
		switch {
		case a.Str < b.Str:
			return -1, true
		case a.Str > b.Str:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isNumeric(t FieldType) bool { return t == IntType || t == DoubleType }
func isText(t FieldType) bool { return t == StrType || t == CharType || t == BlobType }

func (v Value) float() float64 {
	if v.Type == IntType {
		return float64(v.Int)
	}
	return v.Double
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
