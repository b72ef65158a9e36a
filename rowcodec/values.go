package rowcodec

import (
	"fmt"
	"reflect"
)

// EncodeValues encodes an untyped row, one value per field in schema order.
// Missing trailing values and nil values encode the field default.
func (s *Schema) EncodeValues(values []any) ([]byte, error) {
	if len(values) > len(s.metas) {
		return nil, fmt.Errorf("rowcodec: %d values for %d fields", len(values), len(s.metas))
	}
	rvs := make([]reflect.Value, len(s.metas))
	for i := range s.metas {
		m := &s.metas[i]
		if i >= len(values) || values[i] == nil {
			rvs[i] = reflect.ValueOf(m.def)
			continue
		}
		rv := reflect.ValueOf(values[i])
		if !m.dataType.accepts(rv.Type()) {
			return nil, &ErrTypeMismatch{Field: m.name, Want: m.dataType.Name(), Got: rv.Type().String()}
		}
		rvs[i] = rv
	}
	field := func(i int) reflect.Value { return rvs[i] }
	return s.encode(make([]byte, 0, s.size(field)), field)
}

// DecodeValues decodes a row into untyped values in schema order, using the
// canonical Go type of each field (see FieldMeta.Default).
func (s *Schema) DecodeValues(data []byte) ([]any, error) {
	rvs := make([]reflect.Value, len(s.metas))
	for i := range s.metas {
		rvs[i] = reflect.New(s.metas[i].dataType.goType()).Elem()
	}
	if err := s.decode(data, func(i int) reflect.Value { return rvs[i] }); err != nil {
		return nil, err
	}
	out := make([]any, len(rvs))
	for i, rv := range rvs {
		out[i] = rv.Interface()
	}
	return out, nil
}

// Defaults returns the default value of every field in schema order.
func (s *Schema) Defaults() []any {
	out := make([]any, len(s.metas))
	for i := range s.metas {
		out[i] = s.metas[i].Default()
	}
	return out
}
