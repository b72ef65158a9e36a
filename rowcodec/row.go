package rowcodec

import (
	"reflect"
)

// Row is the codec of one record shape T. It is derived once per type and
// safe for concurrent use.
type Row[T any] struct {
	plan *structPlan
}

// For returns the codec of struct type T, deriving its schema on first use.
// Later calls for the same type reuse the cached derivation.
func For[T any]() (*Row[T], error) {
	p, err := planFor(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return &Row[T]{plan: p}, nil
}

// MustFor is like For but panics on a malformed declaration. It is meant for
// package-level variables, so a bad shape fails when its package loads.
func MustFor[T any]() *Row[T] {
	r, err := For[T]()
	if err != nil {
		panic(err)
	}
	return r
}

// Schema returns the derived schema.
func (r *Row[T]) Schema() *Schema { return r.plan.schema }

// New returns a record with every field set to its declared default.
func (r *Row[T]) New() T {
	var v T
	rv := r.fields(&v)
	for i := range r.plan.schema.metas {
		r.plan.schema.metas[i].setDefault(rv(i))
	}
	return v
}

// Size returns the encoded size of v.
func (r *Row[T]) Size(v *T) int {
	return r.plan.schema.size(r.fields(v))
}

// Serialize encodes v. A nil v encodes the all-defaults record.
func (r *Row[T]) Serialize(v *T) ([]byte, error) {
	if v == nil {
		d := r.New()
		v = &d
	}
	return r.Append(make([]byte, 0, r.Size(v)), v)
}

// Append encodes v and appends it to dst.
func (r *Row[T]) Append(dst []byte, v *T) ([]byte, error) {
	return r.plan.schema.encode(dst, r.fields(v))
}

// Deserialize decodes a row. Short or empty input yields defaults for the
// missing fields; only a corrupt enum tag is an error.
func (r *Row[T]) Deserialize(data []byte) (T, error) {
	var v T
	if err := r.DeserializeInto(data, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// DeserializeInto decodes a row into v, overwriting every schema field.
func (r *Row[T]) DeserializeInto(data []byte, v *T) error {
	return r.plan.schema.decode(data, r.fields(v))
}

func (r *Row[T]) fields(v *T) func(i int) reflect.Value {
	rv := reflect.ValueOf(v).Elem()
	idx := r.plan.fields
	return func(i int) reflect.Value { return rv.Field(idx[i]) }
}
