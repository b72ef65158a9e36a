package rowcodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// maxPrefixLen is the largest length or count a 4-byte prefix can carry.
var maxPrefixLen uint64 = math.MaxUint32

// encode appends every field in schema order. field returns the value of the
// i-th field; its kind is guaranteed to match the field type.
func (s *Schema) encode(dst []byte, field func(i int) reflect.Value) ([]byte, error) {
	for i := range s.metas {
		var err error
		dst, err = s.metas[i].append(dst, field(i))
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// size returns the exact encoded size of a row.
func (s *Schema) size(field func(i int) reflect.Value) int {
	n := 0
	for i := range s.metas {
		n += s.metas[i].size(field(i))
	}
	return n
}

func (m *FieldMeta) append(dst []byte, v reflect.Value) ([]byte, error) {
	switch m.dataType.kind {
	case KindUint64:
		return binary.LittleEndian.AppendUint64(dst, v.Uint()), nil
	case KindInt64:
		return binary.LittleEndian.AppendUint64(dst, uint64(v.Int())), nil
	case KindFloat32:
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.Float()))), nil
	case KindEnum:
		tag := enumTag(v)
		if !m.dataType.validTag(tag) {
			return nil, &ErrInvalidEnumTag{Field: m.name, Tag: tag}
		}
		return binary.LittleEndian.AppendUint32(dst, tag), nil
	case KindString:
		return m.appendString(dst, v.String())
	case KindListFloat32:
		n, err := m.checkLen(v.Len())
		if err != nil {
			return nil, err
		}
		dst = binary.LittleEndian.AppendUint32(dst, n)
		if v.Type() == float32SliceType {
			for _, f := range v.Interface().([]float32) {
				dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
			}
			return dst, nil
		}
		for i := range v.Len() {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.Index(i).Float())))
		}
		return dst, nil
	case KindListString:
		n, err := m.checkLen(v.Len())
		if err != nil {
			return nil, err
		}
		dst = binary.LittleEndian.AppendUint32(dst, n)
		for i := range v.Len() {
			if dst, err = m.appendString(dst, v.Index(i).String()); err != nil {
				return nil, err
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("%w: field %q has invalid type", ErrSchema, m.name)
}

func (m *FieldMeta) appendString(dst []byte, s string) ([]byte, error) {
	n, err := m.checkLen(len(s))
	if err != nil {
		return nil, err
	}
	dst = binary.LittleEndian.AppendUint32(dst, n)
	return append(dst, s...), nil
}

func (m *FieldMeta) checkLen(n int) (uint32, error) {
	if uint64(n) > maxPrefixLen {
		return 0, &ErrEncodingOverflow{Field: m.name, Length: n}
	}
	return uint32(n), nil
}

func (m *FieldMeta) size(v reflect.Value) int {
	if w := m.dataType.Width(); w > 0 {
		return w
	}
	switch m.dataType.kind {
	case KindString:
		return lenPrefixSize + v.Len()
	case KindListFloat32:
		return lenPrefixSize + 4*v.Len()
	case KindListString:
		n := lenPrefixSize
		for i := range v.Len() {
			n += lenPrefixSize + v.Index(i).Len()
		}
		return n
	}
	return 0
}

func enumTag(v reflect.Value) uint32 {
	if v.Kind() == reflect.Int32 {
		return uint32(int32(v.Int()))
	}
	return uint32(v.Uint())
}
