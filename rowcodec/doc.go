// Package rowcodec derives binary row layouts from declared record fields.
//
// A record shape is a plain Go struct. Its exported fields, in declaration
// order, form a Schema: an ordered table of FieldMeta (name, type, default).
// The schema is derived once per type and drives a positional codec with no
// field tags, no header and no framing:
//
//	uint64, int64   8 bytes little-endian
//	float32         4 bytes little-endian IEEE-754
//	enum            4 bytes little-endian uint32 tag
//	string          [len uint32][utf-8 bytes]
//	list_float32    [count uint32][count x 4 bytes]
//	list_string     [count uint32][count x string]
//
// # Declaring a shape
//
//	type TTLData struct {
//	    Label uint64 `row:"label"`
//	}
//
//	var ttlRow = rowcodec.MustFor[TTLData]()
//
//	b, _ := ttlRow.Serialize(&TTLData{Label: 789})
//	v, _ := ttlRow.Deserialize(b)
//
// The `row` tag names the field (defaulting to the snake_case Go name) and may
// carry a default literal: `row:"score,default=0.5"`. A tag of "-" excludes the
// field. Enumerations are uint32- or int32-backed types implementing
// Enumeration.
//
// # Truncated input
//
// Decoding never fails because input is short. When the bytes for a field run
// out, that field and every field after it take their declared defaults, so an
// empty slice decodes to the all-defaults record and rows written before a
// field was appended stay readable. Bytes beyond the last field are ignored.
// A present enum tag that names no enumerant fails with ErrInvalidEnumTag.
//
// # Concurrency
//
// Schemas and Row codecs are immutable after derivation and safe for
// concurrent use.
package rowcodec
