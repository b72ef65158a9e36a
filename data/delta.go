package data

import (
	"fmt"

	"github.com/openviking/rowstore/codec"
	"github.com/openviking/rowstore/rowcodec"
)

// DeltaType is the operation a DeltaRecord applies.
//
// The values are persisted as 4-byte tags. Never renumber them; add new
// operations with new values and list them in EnumValues.
type DeltaType uint32

const (
	DeltaUpsert DeltaType = 0
	DeltaDelete DeltaType = 1
)

// EnumValues implements rowcodec.Enumeration.
func (DeltaType) EnumValues() []uint32 {
	return []uint32{uint32(DeltaUpsert), uint32(DeltaDelete)}
}

func (t DeltaType) String() string {
	switch t {
	case DeltaUpsert:
		return "UPSERT"
	case DeltaDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("DeltaType(%d)", uint32(t))
	}
}

// ParseDeltaType returns the DeltaType named s ("UPSERT" or "DELETE").
func ParseDeltaType(s string) (DeltaType, error) {
	switch s {
	case "UPSERT":
		return DeltaUpsert, nil
	case "DELETE":
		return DeltaDelete, nil
	default:
		return 0, fmt.Errorf("data: unknown delta type %q", s)
	}
}

// DeltaRecord is one change to a candidate: an upsert carrying the new
// contents, or a delete of Label. OldFields holds the attribute document the
// change replaced.
type DeltaRecord struct {
	Type           DeltaType `row:"type"`
	Label          uint64    `row:"label"`
	Vector         []float32 `row:"vector"`
	SparseRawTerms []string  `row:"sparse_raw_terms"`
	SparseValues   []float32 `row:"sparse_values"`
	Fields         string    `row:"fields"`
	OldFields      string    `row:"old_fields"`
}

var deltaRow = rowcodec.MustFor[DeltaRecord]()

// DeltaSchema returns the schema shared by all delta rows.
func DeltaSchema() *rowcodec.Schema { return deltaRow.Schema() }

// NewDeleteDelta returns a delete of label whose last attribute document
// was oldFields.
func NewDeleteDelta(label uint64, oldFields string) DeltaRecord {
	return DeltaRecord{Type: DeltaDelete, Label: label, OldFields: oldFields}
}

// Serialize encodes d as a delta row.
func (d *DeltaRecord) Serialize() ([]byte, error) { return deltaRow.Serialize(d) }

// AppendRow appends the row encoding of d to dst.
func (d *DeltaRecord) AppendRow(dst []byte) ([]byte, error) { return deltaRow.Append(dst, d) }

// DeltaFromBytes decodes a delta row. A tag that names no DeltaType fails
// with *rowcodec.ErrInvalidEnumTag.
func DeltaFromBytes(b []byte) (DeltaRecord, error) { return deltaRow.Deserialize(b) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (d DeltaRecord) MarshalBinary() ([]byte, error) { return deltaRow.Serialize(&d) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *DeltaRecord) UnmarshalBinary(b []byte) error { return deltaRow.DeserializeInto(b, d) }

// Candidate returns the candidate an upsert delta writes. expireNs is the
// expiry to carry, since delta rows do not store one.
func (d *DeltaRecord) Candidate(expireNs uint64) CandidateData {
	return CandidateData{
		Label:          d.Label,
		Vector:         d.Vector,
		SparseRawTerms: d.SparseRawTerms,
		SparseValues:   d.SparseValues,
		Fields:         d.Fields,
		ExpireNsTs:     expireNs,
	}
}

// DecodeOldFields decodes the replaced attribute document into v.
func (d *DeltaRecord) DecodeOldFields(v any) error {
	return codec.UnmarshalString(codec.Default, d.OldFields, v)
}
