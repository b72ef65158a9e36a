package rowcodec

import (
	"encoding/binary"
	"math"
	"reflect"
	"slices"
)

// cursor reads a row front to back. Every read reports whether the row held
// enough bytes; a failed read leaves the cursor unusable.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() uint64 { return uint64(len(c.buf) - c.off) }

func (c *cursor) take(n uint64) ([]byte, bool) {
	if n > c.remaining() {
		return nil, false
	}
	b := c.buf[c.off : c.off+int(n)]
	c.off += int(n)
	return b, true
}

func (c *cursor) uint32() (uint32, bool) {
	b, ok := c.take(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (c *cursor) uint64() (uint64, bool) {
	b, ok := c.take(8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (c *cursor) string() (string, bool) {
	n, ok := c.uint32()
	if !ok {
		return "", false
	}
	b, ok := c.take(uint64(n))
	if !ok {
		return "", false
	}
	return string(b), true
}

// decode fills every field in schema order. Once the row runs out, the
// current field and all following fields take their defaults.
func (s *Schema) decode(data []byte, field func(i int) reflect.Value) error {
	c := cursor{buf: data}
	for i := range s.metas {
		ok, err := s.metas[i].read(&c, field(i))
		if err != nil {
			return err
		}
		if !ok {
			for j := i; j < len(s.metas); j++ {
				s.metas[j].setDefault(field(j))
			}
			return nil
		}
	}
	return nil
}

// read decodes one field into dst. It reports false, leaving dst untouched,
// when the row ends before the field does.
func (m *FieldMeta) read(c *cursor, dst reflect.Value) (bool, error) {
	switch m.dataType.kind {
	case KindUint64:
		u, ok := c.uint64()
		if !ok {
			return false, nil
		}
		dst.SetUint(u)
	case KindInt64:
		u, ok := c.uint64()
		if !ok {
			return false, nil
		}
		dst.SetInt(int64(u))
	case KindFloat32:
		u, ok := c.uint32()
		if !ok {
			return false, nil
		}
		dst.SetFloat(float64(math.Float32frombits(u)))
	case KindEnum:
		tag, ok := c.uint32()
		if !ok {
			return false, nil
		}
		if !m.dataType.validTag(tag) {
			return false, &ErrInvalidEnumTag{Field: m.name, Tag: tag}
		}
		setEnum(dst, tag)
	case KindString:
		s, ok := c.string()
		if !ok {
			return false, nil
		}
		dst.SetString(s)
	case KindListFloat32:
		n, ok := c.uint32()
		if !ok {
			return false, nil
		}
		b, ok := c.take(uint64(n) * 4)
		if !ok {
			return false, nil
		}
		var vals []float32
		if n > 0 {
			vals = make([]float32, n)
			for i := range vals {
				vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
			}
		}
		setFloats(dst, vals)
	case KindListString:
		n, ok := c.uint32()
		if !ok {
			return false, nil
		}
		// Every element needs at least its length prefix.
		if uint64(n)*lenPrefixSize > c.remaining() {
			return false, nil
		}
		var vals []string
		if n > 0 {
			vals = make([]string, n)
			for i := range vals {
				if vals[i], ok = c.string(); !ok {
					return false, nil
				}
			}
		}
		setStrings(dst, vals)
	}
	return true, nil
}

func (m *FieldMeta) setDefault(dst reflect.Value) {
	switch d := m.def.(type) {
	case uint64:
		dst.SetUint(d)
	case int64:
		dst.SetInt(d)
	case float32:
		dst.SetFloat(float64(d))
	case string:
		dst.SetString(d)
	case uint32:
		setEnum(dst, d)
	case []float32:
		setFloats(dst, slices.Clone(d))
	case []string:
		setStrings(dst, slices.Clone(d))
	}
}

func setEnum(dst reflect.Value, tag uint32) {
	if dst.Kind() == reflect.Int32 {
		dst.SetInt(int64(int32(tag)))
		return
	}
	dst.SetUint(uint64(tag))
}

// setFloats stores vals into a slice of any float32-kinded element type.
// An empty list is stored as nil.
func setFloats(dst reflect.Value, vals []float32) {
	if len(vals) == 0 {
		dst.SetZero()
		return
	}
	rv := reflect.ValueOf(vals)
	if rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return
	}
	out := reflect.MakeSlice(dst.Type(), len(vals), len(vals))
	for i, f := range vals {
		out.Index(i).SetFloat(float64(f))
	}
	dst.Set(out)
}

// setStrings stores vals into a slice of any string-kinded element type.
// An empty list is stored as nil.
func setStrings(dst reflect.Value, vals []string) {
	if len(vals) == 0 {
		dst.SetZero()
		return
	}
	rv := reflect.ValueOf(vals)
	if rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return
	}
	out := reflect.MakeSlice(dst.Type(), len(vals), len(vals))
	for i, s := range vals {
		out.Index(i).SetString(s)
	}
	dst.Set(out)
}
