package rowcodec

import (
	"reflect"
	"slices"
)

// Kind identifies the layout of a field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUint64
	KindInt64
	KindFloat32
	KindString
	KindListFloat32
	KindListString
	KindEnum
)

// String returns the canonical type name.
func (k Kind) String() string {
	switch k {
	case KindUint64:
		return "uint64"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindString:
		return "string"
	case KindListFloat32:
		return "list_float32"
	case KindListString:
		return "list_string"
	case KindEnum:
		return "enum"
	default:
		return "invalid"
	}
}

// lenPrefixSize is the width of string lengths and list counts.
const lenPrefixSize = 4

// FieldType describes how one field is laid out in a row.
//
// FieldType values are immutable; enum types carry their sorted set of
// valid tags.
type FieldType struct {
	kind Kind
	tags []uint32
}

// The fixed catalog of non-enum field types.
var (
	Uint64      = FieldType{kind: KindUint64}
	Int64       = FieldType{kind: KindInt64}
	Float32     = FieldType{kind: KindFloat32}
	String      = FieldType{kind: KindString}
	ListFloat32 = FieldType{kind: KindListFloat32}
	ListString  = FieldType{kind: KindListString}
)

// EnumOf returns an enum type whose valid tags are values.
func EnumOf(values ...uint32) FieldType {
	tags := slices.Clone(values)
	slices.Sort(tags)
	return FieldType{kind: KindEnum, tags: slices.Compact(tags)}
}

// Name returns the canonical type name ("uint64", "list_float32", ...).
func (t FieldType) Name() string { return t.kind.String() }

// Kind returns the layout kind.
func (t FieldType) Kind() Kind { return t.kind }

// String implements fmt.Stringer.
func (t FieldType) String() string { return t.Name() }

// Fixed reports whether the field always occupies Width bytes.
func (t FieldType) Fixed() bool { return t.Width() > 0 }

// Width returns the encoded size of a fixed-width field, or 0 for
// variable-width types.
func (t FieldType) Width() int {
	switch t.kind {
	case KindUint64, KindInt64:
		return 8
	case KindFloat32, KindEnum:
		return 4
	default:
		return 0
	}
}

// Elem returns the element type of a list type.
func (t FieldType) Elem() (FieldType, bool) {
	switch t.kind {
	case KindListFloat32:
		return Float32, true
	case KindListString:
		return String, true
	default:
		return FieldType{}, false
	}
}

// EnumValues returns the valid tags of an enum type in ascending order.
func (t FieldType) EnumValues() []uint32 {
	return slices.Clone(t.tags)
}

func (t FieldType) validTag(tag uint32) bool {
	_, ok := slices.BinarySearch(t.tags, tag)
	return ok
}

// Enumeration is implemented by closed integer enumerations stored as enum
// fields. EnumValues must list every enumerant's tag; tags are persisted and
// must never be renumbered.
type Enumeration interface {
	EnumValues() []uint32
}

var (
	enumerationType  = reflect.TypeFor[Enumeration]()
	float32SliceType = reflect.TypeFor[[]float32]()
	stringSliceType  = reflect.TypeFor[[]string]()
)

// TypeOf resolves the field type for a Go type. Named types resolve through
// their underlying kind; uint32- and int32-backed types implementing
// Enumeration resolve to enum.
func TypeOf(rt reflect.Type) (FieldType, error) {
	if rt.Implements(enumerationType) {
		switch rt.Kind() {
		case reflect.Uint32, reflect.Int32:
			e := reflect.Zero(rt).Interface().(Enumeration)
			return EnumOf(e.EnumValues()...), nil
		}
	}

	switch rt.Kind() {
	case reflect.Uint64:
		return Uint64, nil
	case reflect.Int64:
		return Int64, nil
	case reflect.Float32:
		return Float32, nil
	case reflect.String:
		return String, nil
	case reflect.Slice:
		switch rt.Elem().Kind() {
		case reflect.Float32:
			return ListFloat32, nil
		case reflect.String:
			return ListString, nil
		}
	}
	return FieldType{}, &ErrUnsupportedFieldType{Type: rt.String()}
}

// goType returns the canonical Go type used for untyped values of t.
func (t FieldType) goType() reflect.Type {
	switch t.kind {
	case KindUint64:
		return reflect.TypeFor[uint64]()
	case KindInt64:
		return reflect.TypeFor[int64]()
	case KindFloat32:
		return reflect.TypeFor[float32]()
	case KindString:
		return reflect.TypeFor[string]()
	case KindListFloat32:
		return float32SliceType
	case KindListString:
		return stringSliceType
	case KindEnum:
		return reflect.TypeFor[uint32]()
	default:
		return nil
	}
}

// accepts reports whether a Go value of type rt can be stored in a field of type t.
func (t FieldType) accepts(rt reflect.Type) bool {
	switch t.kind {
	case KindUint64:
		return rt.Kind() == reflect.Uint64
	case KindInt64:
		return rt.Kind() == reflect.Int64
	case KindFloat32:
		return rt.Kind() == reflect.Float32
	case KindString:
		return rt.Kind() == reflect.String
	case KindListFloat32:
		return rt.Kind() == reflect.Slice && rt.Elem().Kind() == reflect.Float32
	case KindListString:
		return rt.Kind() == reflect.Slice && rt.Elem().Kind() == reflect.String
	case KindEnum:
		return rt.Kind() == reflect.Uint32 || rt.Kind() == reflect.Int32
	default:
		return false
	}
}
