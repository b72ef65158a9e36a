package data

import "github.com/openviking/rowstore/rowcodec"

// TTLData marks a label whose expiry has fired.
type TTLData struct {
	Label uint64 `row:"label"`
}

var ttlRow = rowcodec.MustFor[TTLData]()

// TTLSchema returns the schema shared by all TTL rows.
func TTLSchema() *rowcodec.Schema { return ttlRow.Schema() }

// Serialize encodes t as a TTL row.
func (t *TTLData) Serialize() ([]byte, error) { return ttlRow.Serialize(t) }

// AppendRow appends the row encoding of t to dst.
func (t *TTLData) AppendRow(dst []byte) ([]byte, error) { return ttlRow.Append(dst, t) }

// TTLFromBytes decodes a TTL row.
func TTLFromBytes(b []byte) (TTLData, error) { return ttlRow.Deserialize(b) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (t TTLData) MarshalBinary() ([]byte, error) { return ttlRow.Serialize(&t) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *TTLData) UnmarshalBinary(b []byte) error { return ttlRow.DeserializeInto(b, t) }
