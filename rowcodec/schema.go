package rowcodec

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"reflect"
	"slices"
	"strings"
)

// FieldDecl declares one field: its name, type and default value.
// A nil Default selects the type's zero value.
type FieldDecl struct {
	Name    string
	Type    FieldType
	Default any
}

// FieldMeta is the derived, immutable description of one field.
type FieldMeta struct {
	name     string
	dataType FieldType
	def      any // canonical Go value, see FieldType.goType
}

// Name returns the field name.
func (m FieldMeta) Name() string { return m.name }

// DataType returns the field type.
func (m FieldMeta) DataType() FieldType { return m.dataType }

// Default returns the declared default as its canonical Go value
// (uint64, int64, float32, string, []float32, []string or uint32 for enums).
// List defaults are returned as copies.
func (m FieldMeta) Default() any {
	switch d := m.def.(type) {
	case []float32:
		return slices.Clone(d)
	case []string:
		return slices.Clone(d)
	default:
		return d
	}
}

// Schema is an ordered, immutable table of field metadata. Declaration order
// is encoding order.
type Schema struct {
	metas []FieldMeta
	index map[string]int
}

// Derive builds a schema from ordered field declarations.
//
// It fails with ErrDuplicateField, ErrUnsupportedFieldType or
// ErrInvalidDefault; all of them match ErrSchema.
func Derive(decls []FieldDecl) (*Schema, error) {
	s := &Schema{
		metas: make([]FieldMeta, 0, len(decls)),
		index: make(map[string]int, len(decls)),
	}
	for _, d := range decls {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrSchema)
		}
		if _, dup := s.index[d.Name]; dup {
			return nil, &ErrDuplicateField{Field: d.Name}
		}
		if d.Type.kind == KindInvalid || d.Type.kind > KindEnum {
			return nil, &ErrUnsupportedFieldType{Field: d.Name, Type: d.Type.Name()}
		}
		def, err := normalizeDefault(d.Type, d.Default)
		if err != nil {
			return nil, &ErrInvalidDefault{Field: d.Name, Type: d.Type.Name(), Value: d.Default, cause: err}
		}
		s.index[d.Name] = len(s.metas)
		s.metas = append(s.metas, FieldMeta{name: d.Name, dataType: d.Type, def: def})
	}
	return s, nil
}

// MustDerive is like Derive but panics on error.
func MustDerive(decls []FieldDecl) *Schema {
	s, err := Derive(decls)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.metas) }

// Field returns the metadata of the named field.
func (s *Schema) Field(name string) (FieldMeta, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldMeta{}, false
	}
	return s.metas[i], true
}

// FieldAt returns the metadata of the i-th field in encoding order.
func (s *Schema) FieldAt(i int) FieldMeta { return s.metas[i] }

// Fields returns all field metadata in encoding order.
func (s *Schema) Fields() []FieldMeta { return slices.Clone(s.metas) }

// Names returns the field names in encoding order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.metas))
	for i, m := range s.metas {
		names[i] = m.name
	}
	return names
}

// All iterates over name/metadata pairs in encoding order.
func (s *Schema) All() iter.Seq2[string, FieldMeta] {
	return func(yield func(string, FieldMeta) bool) {
		for _, m := range s.metas {
			if !yield(m.name, m) {
				return
			}
		}
	}
}

// String renders the schema as "name:type, ...".
func (s *Schema) String() string {
	var sb strings.Builder
	for i, m := range s.metas {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(m.name)
		sb.WriteByte(':')
		sb.WriteString(m.dataType.Name())
	}
	return sb.String()
}

var errNegative = errors.New("negative value")

// normalizeDefault converts a declared default to the canonical Go value of t.
func normalizeDefault(t FieldType, v any) (any, error) {
	if v == nil {
		if t.kind == KindEnum {
			if !t.validTag(0) {
				return nil, errors.New("zero is not an enumerant; declare a default")
			}
			return uint32(0), nil
		}
		return reflect.Zero(t.goType()).Interface(), nil
	}

	rv := reflect.ValueOf(v)
	switch t.kind {
	case KindUint64:
		return toUint64(rv)
	case KindInt64:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxInt64 {
				return nil, errors.New("out of range")
			}
			return int64(rv.Uint()), nil
		}
	case KindFloat32:
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
				return nil, errors.New("out of float32 range")
			}
			return float32(f), nil
		}
	case KindString:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case KindListFloat32:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Float32 {
			out := make([]float32, rv.Len())
			for i := range out {
				out[i] = float32(rv.Index(i).Float())
			}
			if len(out) == 0 {
				out = nil
			}
			return out, nil
		}
	case KindListString:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.String {
			out := make([]string, rv.Len())
			for i := range out {
				out[i] = rv.Index(i).String()
			}
			if len(out) == 0 {
				out = nil
			}
			return out, nil
		}
	case KindEnum:
		var tag uint32
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if rv.Int() < math.MinInt32 || rv.Int() > math.MaxUint32 {
				return nil, errors.New("out of range")
			}
			tag = uint32(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxUint32 {
				return nil, errors.New("out of range")
			}
			tag = uint32(rv.Uint())
		default:
			return nil, fmt.Errorf("type %s is not an integer", rv.Type())
		}
		if !t.validTag(tag) {
			return nil, fmt.Errorf("tag %d is not an enumerant", tag)
		}
		return tag, nil
	}
	return nil, fmt.Errorf("type %s does not match", rv.Type())
}

func toUint64(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return nil, errNegative
		}
		return uint64(rv.Int()), nil
	}
	return nil, fmt.Errorf("type %s does not match", rv.Type())
}
