package data

import (
	"time"

	"github.com/openviking/rowstore/codec"
	"github.com/openviking/rowstore/rowcodec"
)

// CandidateData is a stored vector entry.
type CandidateData struct {
	Label          uint64    `row:"label"`
	Vector         []float32 `row:"vector"`
	SparseRawTerms []string  `row:"sparse_raw_terms"`
	SparseValues   []float32 `row:"sparse_values"`
	Fields         string    `row:"fields"`
	ExpireNsTs     uint64    `row:"expire_ns_ts"` // unix nanoseconds, 0 = never
}

var candidateRow = rowcodec.MustFor[CandidateData]()

// CandidateSchema returns the schema shared by all candidate rows.
func CandidateSchema() *rowcodec.Schema { return candidateRow.Schema() }

// Serialize encodes c as a candidate row.
func (c *CandidateData) Serialize() ([]byte, error) { return candidateRow.Serialize(c) }

// AppendRow appends the row encoding of c to dst.
func (c *CandidateData) AppendRow(dst []byte) ([]byte, error) { return candidateRow.Append(dst, c) }

// CandidateFromBytes decodes a candidate row. Short input yields defaults for
// the missing fields.
func CandidateFromBytes(b []byte) (CandidateData, error) { return candidateRow.Deserialize(b) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (c CandidateData) MarshalBinary() ([]byte, error) { return candidateRow.Serialize(&c) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *CandidateData) UnmarshalBinary(b []byte) error { return candidateRow.DeserializeInto(b, c) }

// Expired reports whether c carries an expiry at or before now.
func (c *CandidateData) Expired(now time.Time) bool {
	return c.ExpireNsTs != 0 && uint64(now.UnixNano()) >= c.ExpireNsTs
}

// ExpiresAt returns the expiry as a time and whether one is set.
func (c *CandidateData) ExpiresAt() (time.Time, bool) {
	if c.ExpireNsTs == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, int64(c.ExpireNsTs)), true
}

// SetTTL sets the expiry to now plus ttl. A non-positive ttl clears it.
func (c *CandidateData) SetTTL(now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		c.ExpireNsTs = 0
		return
	}
	c.ExpireNsTs = uint64(now.Add(ttl).UnixNano())
}

// Delta returns the upsert delta that writes c over a row whose previous
// attribute document was oldFields.
func (c *CandidateData) Delta(oldFields string) DeltaRecord {
	return DeltaRecord{
		Type:           DeltaUpsert,
		Label:          c.Label,
		Vector:         c.Vector,
		SparseRawTerms: c.SparseRawTerms,
		SparseValues:   c.SparseValues,
		Fields:         c.Fields,
		OldFields:      oldFields,
	}
}

// TTL returns the expiry marker of c.
func (c *CandidateData) TTL() TTLData { return TTLData{Label: c.Label} }

// SetFields encodes v with codec.Default into the attribute document.
func (c *CandidateData) SetFields(v any) error {
	doc, err := codec.MarshalString(codec.Default, v)
	if err != nil {
		return err
	}
	c.Fields = doc
	return nil
}

// DecodeFields decodes the attribute document into v.
func (c *CandidateData) DecodeFields(v any) error {
	return codec.UnmarshalString(codec.Default, c.Fields, v)
}
