// Package codec encodes the scalar attribute document carried in the
// "fields" and "old_fields" columns of candidate and delta rows.
//
// A row stores the document as an opaque string; the codec only matters to
// callers that want to read or build it as a Go value. Switching codecs does
// not change the row layout, but every codec must produce JSON so documents
// written by one codec decode with another.
package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownCodec is returned by Lookup for a name no built-in codec carries.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec marshals attribute documents.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Lookup is like ByName but reports an error naming the codec.
func Lookup(name string) (Codec, error) {
	c, ok := ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// MarshalString encodes v with c (Default when nil) as a document string.
// A nil v encodes as the empty document "".
func MarshalString(c Codec, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("codec %s: marshal: %w", c.Name(), err)
	}
	return string(b), nil
}

// UnmarshalString decodes a document string into v. The empty document
// leaves v untouched.
func UnmarshalString(c Codec, doc string, v any) error {
	if doc == "" {
		return nil
	}
	if c == nil {
		c = Default
	}
	if err := c.Unmarshal([]byte(doc), v); err != nil {
		return fmt.Errorf("codec %s: unmarshal: %w", c.Name(), err)
	}
	return nil
}

// MustMarshal is a helper for tests and benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
