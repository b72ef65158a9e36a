package rowcodec

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema is matched by every error raised while deriving a schema.
	ErrSchema = errors.New("rowcodec: invalid schema")

	// ErrCorrupt is matched by decode errors for bytes that are present but invalid.
	ErrCorrupt = errors.New("rowcodec: corrupt row")

	// ErrOverflow is matched by encode errors for values too large for the layout.
	ErrOverflow = errors.New("rowcodec: encoding overflow")
)

// ErrUnsupportedFieldType indicates a declared field whose type has no row encoding.
type ErrUnsupportedFieldType struct {
	Field string
	Type  string
}

func (e *ErrUnsupportedFieldType) Error() string {
	return fmt.Sprintf("unsupported field type: field %q has type %s", e.Field, e.Type)
}

func (e *ErrUnsupportedFieldType) Is(target error) bool { return target == ErrSchema }

// ErrDuplicateField indicates two declarations with the same field name.
type ErrDuplicateField struct {
	Field string
}

func (e *ErrDuplicateField) Error() string {
	return fmt.Sprintf("duplicate field %q", e.Field)
}

func (e *ErrDuplicateField) Is(target error) bool { return target == ErrSchema }

// ErrInvalidDefault indicates a default value the field type cannot represent.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidDefault struct {
	Field string
	Type  string
	Value any
	cause error
}

func (e *ErrInvalidDefault) Error() string {
	msg := fmt.Sprintf("invalid default for field %q (%s): %v", e.Field, e.Type, e.Value)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ErrInvalidDefault) Unwrap() error { return e.cause }

func (e *ErrInvalidDefault) Is(target error) bool { return target == ErrSchema }

// ErrInvalidEnumTag indicates a stored enum tag that matches no enumerant.
type ErrInvalidEnumTag struct {
	Field string
	Tag   uint32
}

func (e *ErrInvalidEnumTag) Error() string {
	return fmt.Sprintf("invalid enum tag %d for field %q", e.Tag, e.Field)
}

func (e *ErrInvalidEnumTag) Is(target error) bool { return target == ErrCorrupt }

// ErrEncodingOverflow indicates a string or list longer than a 4-byte count.
type ErrEncodingOverflow struct {
	Field  string
	Length int
}

func (e *ErrEncodingOverflow) Error() string {
	return fmt.Sprintf("field %q: length %d exceeds the 4-byte length prefix", e.Field, e.Length)
}

func (e *ErrEncodingOverflow) Is(target error) bool { return target == ErrOverflow }

// ErrTypeMismatch indicates an untyped value that does not match its field type.
type ErrTypeMismatch struct {
	Field string
	Want  string
	Got   string
}

func (e *ErrTypeMismatch) Error() string {
	return fmt.Sprintf("field %q: cannot encode %s as %s", e.Field, e.Got, e.Want)
}
